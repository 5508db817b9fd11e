package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-food/internal/store"
)

var (
	// ErrUnsupportedPaymentMethod is returned for method names outside the known set.
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	// ErrOrderNotPayable is returned when the order no longer accepts a payment attempt.
	ErrOrderNotPayable = errors.New("order is not payable")
	// ErrCashOrder is returned when a gateway redirect is requested for a cash order.
	ErrCashOrder = errors.New("order is paid in cash")
	// ErrUnknownProvider is returned when no gateway is registered under a name.
	ErrUnknownProvider = errors.New("unknown payment provider")
	// ErrOrderNotFound is returned when the order behind a payment request is missing.
	ErrOrderNotFound = errors.New("order not found")
)

// ProviderVNPay names the only online gateway wired today.
const ProviderVNPay = "vnpay"

// Kind separates methods settled on delivery from methods settled by a gateway.
type Kind int

const (
	KindCash Kind = iota
	KindGateway
)

func (k Kind) String() string {
	if k == KindGateway {
		return "gateway"
	}
	return "cash"
}

// Method is a parsed payment method.
type Method struct {
	Kind     Kind
	Provider string
	Stored   store.PaymentMethod
}

// Online reports whether the method needs a gateway redirect.
func (m Method) Online() bool { return m.Kind == KindGateway }

// ParseMethod maps a method name onto its dispatch kind. Card, bank transfer
// and e-wallet payments all go through the VNPay gateway.
func ParseMethod(value string) (Method, error) {
	stored := store.PaymentMethod(strings.ToUpper(strings.TrimSpace(value)))
	switch stored {
	case store.PaymentMethodCASH:
		return Method{Kind: KindCash, Stored: stored}, nil
	case store.PaymentMethodCARD, store.PaymentMethodBANKTRANSFER, store.PaymentMethodEWALLET:
		return Method{Kind: KindGateway, Provider: ProviderVNPay, Stored: stored}, nil
	}
	return Method{}, fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, value)
}

// Payable returns ErrOrderNotPayable unless the order is PENDING and its
// payment has neither completed nor been refunded.
func Payable(order store.Order) error {
	if order.Status != store.OrderStatusPENDING {
		return fmt.Errorf("%w: order is %s", ErrOrderNotPayable, order.Status)
	}
	switch order.PaymentStatus {
	case store.PaymentStatusCOMPLETED, store.PaymentStatusREFUNDED:
		return fmt.Errorf("%w: payment is %s", ErrOrderNotPayable, order.PaymentStatus)
	}
	return nil
}
