package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-food/internal/common"
)

// ByClientIP keys requests by prefix and caller address.
func ByClientIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		return prefix + ":" + common.ClientIP(r)
	}
}

// Handler throttles requests per key. When the limiter itself fails the
// request is let through and OnError is told.
type Handler struct {
	Limiter Limiter
	Key     func(*http.Request) string
	Rule    Rule
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), h.Key(r), h.Rule)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		wait := math.Ceil(time.Until(d.ResetAt).Seconds())
		hdr.Set("Retry-After", strconv.Itoa(max(int(wait), 1)))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
	})
}
