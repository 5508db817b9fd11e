package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-food/internal/common"
)

const (
	rolesClaim = "roles"
	clockSkew  = 30 * time.Second
)

// Principal is the caller identity carried by a verified access token.
type Principal struct {
	UserID string
	Roles  []string
}

// Verifier checks HS256 access tokens minted by the identity service. Tokens
// signed with any other algorithm, including "none", fail key verification.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewVerifier(secret, issuer, audience string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

func (v *Verifier) parseOptions() []jwt.ParseOption {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(clockSkew),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return opts
}

// ParseAccessToken verifies token and returns its principal. Every failure is
// an UNAUTHORIZED AppError; expired tokens get their own message so clients
// know to refresh.
func (v *Verifier) ParseAccessToken(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, unauthorized("missing token", nil)
	}
	parsed, err := jwt.ParseString(token, v.parseOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return Principal{}, unauthorized("token expired", err)
		}
		return Principal{}, unauthorized("invalid token", err)
	}
	if strings.TrimSpace(parsed.Subject()) == "" {
		return Principal{}, unauthorized("invalid token", errors.New("auth: blank subject"))
	}
	return Principal{UserID: parsed.Subject(), Roles: rolesOf(parsed)}, nil
}

// Issue signs an access token for subject. Only the seeder mints tokens.
func (v *Verifier) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	b := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if len(roles) > 0 {
		b = b.Claim(rolesClaim, roles)
	}
	if v.issuer != "" {
		b = b.Issuer(v.issuer)
	}
	if v.audience != "" {
		b = b.Audience([]string{v.audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("auth: build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return string(signed), nil
}

func unauthorized(msg string, cause error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", msg, http.StatusUnauthorized, cause)
}

// rolesOf accepts the roles claim as a JSON array or a comma separated string.
func rolesOf(tok jwt.Token) []string {
	raw, ok := tok.Get(rolesClaim)
	if !ok {
		return nil
	}
	switch vals := raw.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(strings.ReplaceAll(vals, ",", " "))
	}
	return nil
}
