package pricing

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-food/internal/coupon"
	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/shipping"
)

// Totals aggregates the rounded pricing components of a quote.
type Totals struct {
	Subtotal    money.Money
	Shipping    money.Money
	Discount    money.Money
	FinalAmount money.Money
}

// Compute rounds each component half-up to the currency's smallest unit,
// clamps the discount to the subtotal and keeps the final amount non-negative.
// FinalAmount == Subtotal + Shipping - Discount holds on the returned values.
func Compute(lines []OrderLine, shippingFee, discount money.Money, cur money.Currency) Totals {
	subtotal := money.Zero()
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	subtotal = cur.Round(subtotal).NonNegative()
	shippingFee = cur.Round(shippingFee).NonNegative()
	discount = cur.Round(discount).NonNegative()
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	final := subtotal.Add(shippingFee).Sub(discount)
	return Totals{Subtotal: subtotal, Shipping: shippingFee, Discount: discount, FinalAmount: final}
}

// Quote is the computed price breakdown shown before commit and persisted at commit.
type Quote struct {
	Lines             []OrderLine `json:"lines"`
	Subtotal          money.Money `json:"subtotal"`
	ShippingFee       money.Money `json:"shippingFee"`
	ShippingRationale string      `json:"shippingRationale"`
	ShippingTierID    string      `json:"shippingTierId,omitempty"`
	CouponCode        string      `json:"couponCode,omitempty"`
	CouponDiscount    money.Money `json:"couponDiscount"`
	FinalAmount       money.Money `json:"finalAmount"`
	Currency          string      `json:"currency"`
	PricedAt          time.Time   `json:"pricedAt"`
}

// QuoteInput carries everything a quote depends on besides catalog, tiers and coupons.
type QuoteInput struct {
	Lines      []CartLine
	CouponCode string
	UserID     string
	Area       shipping.Area
	At         time.Time
}

// CatalogSource loads a snapshot covering the given product ids.
type CatalogSource interface {
	Snapshot(ctx context.Context, productIDs []string) (Snapshot, error)
}

// ShippingResolver resolves the delivery fee for a subtotal.
type ShippingResolver interface {
	Resolve(ctx context.Context, subtotal money.Money, area shipping.Area) shipping.Result
}

// CouponEvaluator computes a coupon discount without recording usage.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, req coupon.EvaluateRequest) (coupon.Evaluation, error)
}

// Engine aggregates line pricing, shipping and coupons into a Quote.
type Engine struct {
	Catalog  CatalogSource
	Shipping ShippingResolver
	Coupons  CouponEvaluator
	Currency money.Currency
	Now      func() time.Time
}

// ErrEmptyOrder is returned when a quote is requested without lines.
var ErrEmptyOrder = errors.New("order has no lines")

// Quote prices the input. It reads but never mutates catalog, tiers or coupons,
// so identical inputs evaluated at the same instant yield identical quotes.
func (e *Engine) Quote(ctx context.Context, in QuoteInput) (Quote, error) {
	if e == nil || e.Catalog == nil || e.Shipping == nil {
		return Quote{}, errors.New("pricing engine not configured")
	}
	ctx, span := otel.Tracer("pricing.Engine").Start(ctx, "PricingEngine.Quote")
	defer span.End()
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("pricing.quote.result", result))
		if obs.QuoteTotal != nil {
			obs.QuoteTotal.WithLabelValues(result).Inc()
		}
	}()

	if len(in.Lines) == 0 {
		result = "invalid"
		return Quote{}, ErrEmptyOrder
	}
	at := in.At
	if at.IsZero() {
		at = e.now()
	}

	ids := make([]string, 0, len(in.Lines))
	for _, l := range in.Lines {
		ids = append(ids, strings.TrimSpace(l.ProductID))
	}
	snapshot, err := e.Catalog.Snapshot(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return Quote{}, err
	}

	lines := make([]OrderLine, 0, len(in.Lines))
	subtotal := money.Zero()
	for _, cl := range in.Lines {
		priced, err := PriceLine(cl, snapshot, at)
		if err != nil {
			result = "invalid"
			return Quote{}, err
		}
		lines = append(lines, priced)
		subtotal = subtotal.Add(priced.LineTotal)
	}
	subtotal = e.currency().Round(subtotal)

	ship := e.Shipping.Resolve(ctx, subtotal, in.Area)

	discount := money.Zero()
	code := strings.TrimSpace(in.CouponCode)
	if code != "" {
		if e.Coupons == nil {
			return Quote{}, errors.New("coupon evaluator not configured")
		}
		eval, err := e.Coupons.Evaluate(ctx, coupon.EvaluateRequest{Code: code, Subtotal: subtotal, UserID: in.UserID, At: at})
		if err != nil {
			result = "rejected"
			return Quote{}, err
		}
		discount = eval.Discount
		code = eval.Code
	}

	totals := Compute(lines, ship.Fee, discount, e.currency())
	result = "success"
	span.SetAttributes(
		attribute.Int("pricing.lines", len(lines)),
		attribute.String("pricing.final_amount", totals.FinalAmount.String()),
	)
	return Quote{
		Lines:             lines,
		Subtotal:          totals.Subtotal,
		ShippingFee:       totals.Shipping,
		ShippingRationale: ship.Rationale,
		ShippingTierID:    ship.TierID,
		CouponCode:        code,
		CouponDiscount:    totals.Discount,
		FinalAmount:       totals.FinalAmount,
		Currency:          e.currency().Code,
		PricedAt:          at,
	}, nil
}

func (e *Engine) currency() money.Currency {
	if e.Currency.Code == "" {
		return money.VND
	}
	return e.Currency
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
