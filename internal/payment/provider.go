package payment

import (
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/backend-food/internal/money"
)

// RedirectRequest carries the data required to sign a gateway redirect.
type RedirectRequest struct {
	TransactionRef string
	Amount         money.Money
	OrderInfo      string
	ClientIP       string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// CallbackResult is a verified, normalised gateway callback.
type CallbackResult struct {
	TransactionRef       string
	Amount               money.Money
	Success              bool
	ResponseCode         string
	TransactionStatus    string
	GatewayTransactionNo string
	BankCode             string
	PayDate              string
	Fields               map[string]string
}

// Provider abstracts an online payment gateway.
type Provider interface {
	Name() string
	BuildRedirect(req RedirectRequest) (string, error)
	VerifyCallback(params url.Values) (CallbackResult, error)
}

// Registry resolves providers by name.
type Registry map[string]Provider

// NewRegistry indexes providers by their lower-cased name.
func NewRegistry(providers ...Provider) Registry {
	reg := make(Registry, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		reg[strings.ToLower(p.Name())] = p
	}
	return reg
}

// Get looks up a provider by name.
func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}
