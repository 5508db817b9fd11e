package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-food/internal/resilience"
)

// Doer sends one HTTP request; resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Forwarder posts notify payloads to the notification collaborator's endpoint.
type Forwarder struct {
	URL    string
	Secret string
	HTTP   Doer
	Now    func() time.Time
}

// ErrRejected marks a 4xx answer; retrying the same payload will not help.
var ErrRejected = errors.New("notification endpoint rejected event")

// Forward delivers p. Each request carries X-Event-ID and an HMAC-SHA256
// X-Signature over "<ts>.<eventID>.<body>".
func (f *Forwarder) Forward(ctx context.Context, p NotifyPayload) error {
	if f == nil || f.URL == "" || f.HTTP == nil {
		return nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	ts := f.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "backend-food-events/1.0")
	req.Header.Set("X-Event-ID", p.EventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if f.Secret != "" {
		req.Header.Set("X-Signature", Signature(f.Secret, ts, p.EventID, body))
	}
	resp, err := f.HTTP.Do(ctx, req)
	if err != nil {
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return fmt.Errorf("notification endpoint unavailable: %w", err)
		}
		return fmt.Errorf("post notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

func (f *Forwarder) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// Signature is the hex HMAC-SHA256 of "<ts>.<eventID>.<body>" under secret.
func Signature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
