package common

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultIdemTTL    = 24 * time.Hour
)

// Idem guards write endpoints with the Idempotency-Key header. The first
// request with a key claims it and records a fingerprint of its body:
//   - a repeat with the same body gets 409 IDEMPOTENT_REPLAY
//   - a repeat with a different body gets 422 IDEMPOTENCY_KEY_REUSED
//
// A claim whose handler answered 5xx is dropped so the client can retry.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(idempotencyHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		fingerprint, err := bodyFingerprint(r)
		if err != nil {
			if tooLarge(err) {
				err = ErrBodyTooLarge
			}
			WriteDecodeError(w, err)
			return
		}

		ctx := r.Context()
		key := i.key(r, header)
		claimed, err := i.R.SetNX(ctx, key, fingerprint, i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "idempotency store unavailable", nil)
			return
		}
		if !claimed {
			prior, err := i.R.Get(ctx, key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "request is being retried, try again", nil)
			case err != nil:
				JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "idempotency store unavailable", nil)
			case prior != fingerprint:
				JSONError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key was used with a different request", nil)
			default:
				JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			}
			return
		}

		sw := &statusSniffer{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if sw.status >= http.StatusInternalServerError {
			_ = i.R.Del(ctx, key).Err()
		}
	})
}

// key scopes the client's header to the caller and route.
func (i Idem) key(r *http.Request, header string) string {
	userID, _ := UserID(r.Context())
	sum := sha256.Sum256([]byte(userID + "|" + r.Method + "|" + r.URL.Path + "|" + header))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return defaultIdemTTL
	}
	return i.TTL
}

// bodyFingerprint hashes the body and restores it for the next handler.
func bodyFingerprint(r *http.Request) (string, error) {
	h := sha256.New()
	if r.Body != nil && r.Body != http.NoBody {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		_ = r.Body.Close()
		h.Write(raw)
		r.Body = io.NopCloser(bytes.NewReader(raw))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type statusSniffer struct {
	http.ResponseWriter
	status int
}

func (s *statusSniffer) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
