package security

import (
	"net/http"

	"github.com/noah-isme/backend-food/internal/common"
)

// BodyLimit caps request bodies at Max bytes. Bodies that declare a larger
// Content-Length are refused up front; the rest are wrapped so the decoder
// fails with common.ErrBodyTooLarge once the cap is crossed.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	if b.Max <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > b.Max {
			common.WriteDecodeError(w, common.ErrBodyTooLarge)
			return
		}
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		}
		next.ServeHTTP(w, r)
	})
}
