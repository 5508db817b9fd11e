package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-food/internal/common"
	"github.com/noah-isme/backend-food/internal/obs"
)

// Middleware authenticates bearer tokens against Verifier.
type Middleware struct {
	Verifier *Verifier
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id and roles on the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || m.Verifier == nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		principal, err := m.Verifier.ParseAccessToken(token)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				obs.Logger(r.Context()).Debug().Err(appErr.Err).Str("reason", appErr.Message).Msg("access token rejected")
			}
			common.WriteError(w, err)
			return
		}
		ctx := common.WithRoles(common.WithUserID(r.Context(), principal.UserID), principal.Roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits only callers holding role. Mount it behind RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch _, authed := common.UserID(r.Context()); {
			case !authed:
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			case !common.HasRole(r.Context(), role):
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "requires the "+role+" role", nil)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
