package payment

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/store"
)

// DispatchQuerier is the slice of the store the dispatcher writes through.
type DispatchQuerier interface {
	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)
}

// Dispatch is the outcome of routing a freshly placed order to its payment method.
type Dispatch struct {
	Payment          store.Payment
	Method           Method
	RedirectRequired bool
}

// Dispatcher records the first payment attempt for an order.
type Dispatcher struct{}

// Dispatch inserts a PENDING payment for order using the caller's querier so
// it joins the placement transaction. Online methods come back with
// RedirectRequired set; the attempt is signed later by Service.CreateRedirect.
func (Dispatcher) Dispatch(ctx context.Context, q DispatchQuerier, order store.Order, method string) (Dispatch, error) {
	ctx, span := otel.Tracer("payment.Dispatcher").Start(ctx, "PaymentDispatcher.Dispatch")
	defer span.End()
	kind := "unknown"
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.dispatch.kind", kind), attribute.String("payment.dispatch.result", result))
		if obs.PaymentDispatchTotal != nil {
			obs.PaymentDispatchTotal.WithLabelValues(kind, result).Inc()
		}
	}()

	m, err := ParseMethod(method)
	if err != nil {
		result = "unsupported"
		return Dispatch{}, err
	}
	kind = m.Kind.String()
	if err := Payable(order); err != nil {
		result = "not_payable"
		return Dispatch{}, err
	}
	params := store.CreatePaymentParams{
		OrderID: order.ID,
		Method:  m.Stored,
		Amount:  order.FinalAmount,
	}
	if m.Online() {
		params.Provider = store.Text(m.Provider)
	}
	p, err := q.CreatePayment(ctx, params)
	if err != nil {
		return Dispatch{}, fmt.Errorf("create payment: %w", err)
	}
	result = "success"
	return Dispatch{Payment: p, Method: m, RedirectRequired: m.Online()}, nil
}
