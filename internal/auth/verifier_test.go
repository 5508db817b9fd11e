package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/common"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret", "food-identity", "food-api")
	require.NoError(t, err)
	return v
}

func TestVerifierRoundTrip(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Issue("0b6f2a3e-5d5e-4a43-9f6e-8a1b2c3d4e5f", []string{"customer", "admin"}, time.Hour)
	require.NoError(t, err)

	p, err := v.ParseAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "0b6f2a3e-5d5e-4a43-9f6e-8a1b2c3d4e5f", p.UserID)
	require.Equal(t, []string{"customer", "admin"}, p.Roles)
}

func TestVerifierRejections(t *testing.T) {
	v := newTestVerifier(t)

	other, err := NewVerifier("another-secret", "food-identity", "food-api")
	require.NoError(t, err)
	forged, err := other.Issue("u-1", nil, time.Hour)
	require.NoError(t, err)

	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := v.Issue("u-1", nil, time.Hour)
	require.NoError(t, err)
	v.now = time.Now

	foreignAudience, err := jwt.NewBuilder().Subject("u-1").Issuer("food-identity").Audience([]string{"shop"}).Expiration(time.Now().Add(time.Hour)).Build()
	require.NoError(t, err)
	wrongAud, err := jwt.Sign(foreignAudience, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	noSubject, err := jwt.NewBuilder().Issuer("food-identity").Audience([]string{"food-api"}).Expiration(time.Now().Add(time.Hour)).Build()
	require.NoError(t, err)
	anonymous, err := jwt.Sign(noSubject, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	stronger, err := jwt.NewBuilder().Subject("u-1").Issuer("food-identity").Audience([]string{"food-api"}).Expiration(time.Now().Add(time.Hour)).Build()
	require.NoError(t, err)
	hs512, err := jwt.Sign(stronger, jwt.WithKey(jwa.HS512, []byte("test-secret")))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not.a.token",
		"forged":     forged,
		"expired":    expired,
		"wrong aud":  string(wrongAud),
		"no subject": string(anonymous),
		"wrong alg":  string(hs512),
	} {
		_, err := v.ParseAccessToken(token)
		var appErr *common.AppError
		require.ErrorAs(t, err, &appErr, name)
		require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus, name)
	}
}

func TestVerifierExpiredMessage(t *testing.T) {
	v := newTestVerifier(t)
	v.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := v.Issue("u-1", nil, time.Minute)
	require.NoError(t, err)
	v.now = time.Now

	_, err = v.ParseAccessToken(token)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "token expired", appErr.Message)
}

func TestVerifierToleratesClockSkew(t *testing.T) {
	v := newTestVerifier(t)
	issuedAt := time.Now()
	v.now = func() time.Time { return issuedAt.Add(10 * time.Second) }
	token, err := v.Issue("u-1", nil, time.Hour)
	require.NoError(t, err)
	v.now = func() time.Time { return issuedAt }

	_, err = v.ParseAccessToken(token)
	require.NoError(t, err, "nbf 10s in the future is inside the skew window")
}

func TestRolesOfAcceptsStringClaim(t *testing.T) {
	tok, err := jwt.NewBuilder().Claim(rolesClaim, "admin, customer").Build()
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "customer"}, rolesOf(tok))
}

func TestRequireAuthAndRole(t *testing.T) {
	v := newTestVerifier(t)
	mw := Middleware{Verifier: v}
	var seenUser string
	admin := mw.RequireAuth(RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/x/status", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		admin.ServeHTTP(rr, req)
		return rr.Code
	}

	customer, err := v.Issue("u-customer", []string{"customer"}, time.Hour)
	require.NoError(t, err)
	operator, err := v.Issue("u-admin", []string{"admin"}, time.Hour)
	require.NoError(t, err)

	require.Equal(t, http.StatusUnauthorized, call(""))
	require.Equal(t, http.StatusUnauthorized, call("junk"))
	require.Equal(t, http.StatusForbidden, call(customer))
	require.Equal(t, http.StatusNoContent, call(operator))
	require.Equal(t, "u-admin", seenUser)
}
