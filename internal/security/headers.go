// Package security holds response hardening and request size middleware.
package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// apiHeaders suit a JSON-only API: nothing is framed, sniffed or rendered.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=(), payment=()"},
}

// Headers hardens every response. HSTS is only sent on HTTPS requests; with
// TrustForwardedProto a terminating proxy's X-Forwarded-Proto counts.
type Headers struct {
	Enable              bool
	HSTS                bool
	HSTSMaxAge          time.Duration
	HSTSSubdomains      bool
	TrustForwardedProto bool
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		for _, kv := range apiHeaders {
			hdr.Set(kv[0], kv[1])
		}
		if hsts != "" && h.secure(r) {
			hdr.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if !h.HSTS {
		return ""
	}
	age := h.HSTSMaxAge
	if age <= 0 {
		age = 365 * 24 * time.Hour
	}
	v := "max-age=" + strconv.FormatInt(int64(age/time.Second), 10)
	if h.HSTSSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

func (h Headers) secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return h.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// NoStore keeps payment redirects and gateway callbacks out of caches.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
