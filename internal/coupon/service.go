package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/store"
)

// Querier captures the database methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	CreateCoupon(ctx context.Context, arg store.CreateCouponParams) (store.Coupon, error)
	HasCouponUsage(ctx context.Context, arg store.HasCouponUsageParams) (bool, error)
	InsertCouponUsage(ctx context.Context, arg store.InsertCouponUsageParams) (bool, error)
	IncrementCouponUsage(ctx context.Context, id pgtype.UUID) (bool, error)
}

// EvaluateRequest is the input of a dry-run evaluation.
type EvaluateRequest struct {
	Code     string
	Subtotal money.Money
	UserID   string
	At       time.Time
}

// Evaluation describes the outcome of evaluating a coupon without mutating state.
type Evaluation struct {
	Code     string      `json:"code"`
	Kind     Kind        `json:"kind"`
	Discount money.Money `json:"discount"`
}

// Service encapsulates coupon evaluation and redemption.
type Service struct {
	Q      Querier
	Now    func() time.Time
	Logger zerolog.Logger
}

// Evaluate validates the coupon against the subtotal and returns the discount.
// Usage is not recorded here.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error) {
	if s == nil || s.Q == nil {
		return Evaluation{}, errors.New("coupon service not configured")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return Evaluation{}, ErrCouponNotFound
	}
	c, err := s.Q.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evaluation{}, ErrCouponNotFound
		}
		return Evaluation{}, fmt.Errorf("load coupon: %w", err)
	}
	rule := RuleFromModel(c)
	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	if err := rule.Check(at, req.Subtotal); err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Code: rule.Code, Kind: rule.Kind, Discount: rule.Discount(req.Subtotal)}, nil
}

// Redemption is the result of recording coupon usage for an order.
type Redemption struct {
	CouponID  string
	Recorded  bool
	Duplicate bool
}

// Redeem records usage of code for orderID inside the caller's transaction.
// Replaying it for the same order is a no-op. When the usage limit was reached
// concurrently it returns ErrCouponUsageExhausted and writes nothing, so the
// usage log always matches used_count. Callers must hold the order row lock.
func (s *Service) Redeem(ctx context.Context, q Querier, code string, orderID, userID pgtype.UUID, discount money.Money) (Redemption, error) {
	code = strings.TrimSpace(code)
	if code == "" || !orderID.Valid {
		return Redemption{}, nil
	}
	if q == nil {
		return Redemption{}, errors.New("coupon querier not configured")
	}
	ctx, span := otel.Tracer("coupon.Service").Start(ctx, "CouponService.Redeem")
	defer span.End()
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("coupon.redeem.result", result))
		if obs.CouponRedemptionTotal != nil {
			obs.CouponRedemptionTotal.WithLabelValues(result).Inc()
		}
	}()

	c, err := q.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			result = "missing"
			s.logger().Warn().Str("coupon", code).Str("order_id", store.UUIDString(orderID)).Msg("coupon vanished before redemption")
			return Redemption{}, nil
		}
		return Redemption{}, fmt.Errorf("load coupon: %w", err)
	}
	out := Redemption{CouponID: store.UUIDString(c.ID)}

	seen, err := q.HasCouponUsage(ctx, store.HasCouponUsageParams{CouponID: c.ID, OrderID: orderID})
	if err != nil {
		return out, fmt.Errorf("check coupon usage: %w", err)
	}
	if seen {
		result = "duplicate"
		out.Duplicate = true
		return out, nil
	}

	ok, err := q.IncrementCouponUsage(ctx, c.ID)
	if err != nil {
		return out, fmt.Errorf("increment coupon usage: %w", err)
	}
	if !ok {
		result = "exhausted"
		return out, ErrCouponUsageExhausted
	}
	inserted, err := q.InsertCouponUsage(ctx, store.InsertCouponUsageParams{
		CouponID:       c.ID,
		OrderID:        orderID,
		UserID:         userID,
		DiscountAmount: discount,
	})
	if err != nil {
		return out, fmt.Errorf("record coupon usage: %w", err)
	}
	if !inserted {
		return out, errors.New("coupon usage recorded concurrently for this order")
	}
	result = "success"
	out.Recorded = true
	return out, nil
}

// CreateParams describes a new coupon.
type CreateParams struct {
	Code              string       `json:"code" validate:"required,min=3,max=40"`
	Kind              Kind         `json:"discountType" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Value             money.Money  `json:"discountValue"`
	MinOrderAmount    money.Money  `json:"minOrderAmount"`
	MaxDiscountAmount *money.Money `json:"maxDiscountAmount,omitempty"`
	UsageLimit        *int32       `json:"usageLimit,omitempty" validate:"omitempty,gte=1"`
	StartDate         time.Time    `json:"startDate" validate:"required"`
	EndDate           time.Time    `json:"endDate" validate:"required,gtfield=StartDate"`
	Active            *bool        `json:"isActive,omitempty"`
}

// ErrInvalidCoupon is returned when create parameters are inconsistent.
var ErrInvalidCoupon = errors.New("invalid coupon definition")

// ErrDuplicateCode is returned when the code is already taken.
var ErrDuplicateCode = errors.New("coupon code already exists")

// Create stores a new coupon.
func (s *Service) Create(ctx context.Context, p CreateParams) (store.Coupon, error) {
	if s == nil || s.Q == nil {
		return store.Coupon{}, errors.New("coupon service not configured")
	}
	if p.Kind == KindPercentage && !ValidatePercent(p.Value) {
		return store.Coupon{}, fmt.Errorf("%w: percentage must be in (0, 100]", ErrInvalidCoupon)
	}
	if p.Kind == KindFixed && !p.Value.IsPositive() {
		return store.Coupon{}, fmt.Errorf("%w: amount must be positive", ErrInvalidCoupon)
	}
	if p.MinOrderAmount.IsNegative() || (p.MaxDiscountAmount != nil && !p.MaxDiscountAmount.IsPositive()) {
		return store.Coupon{}, fmt.Errorf("%w: amounts must not be negative", ErrInvalidCoupon)
	}
	params := store.CreateCouponParams{
		Code:           strings.ToUpper(strings.TrimSpace(p.Code)),
		DiscountType:   store.DiscountType(p.Kind),
		DiscountValue:  p.Value,
		MinOrderAmount: p.MinOrderAmount,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		IsActive:       p.Active == nil || *p.Active,
	}
	if p.MaxDiscountAmount != nil {
		params.MaxDiscountAmount = money.Some(*p.MaxDiscountAmount)
	}
	if p.UsageLimit != nil {
		params.UsageLimit = pgtype.Int4{Int32: *p.UsageLimit, Valid: true}
	}
	c, err := s.Q.CreateCoupon(ctx, params)
	if err != nil {
		if store.IsUniqueViolation(err, "") {
			return store.Coupon{}, ErrDuplicateCode
		}
		return store.Coupon{}, fmt.Errorf("create coupon: %w", err)
	}
	return c, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zerolog.Logger {
	if s == nil {
		l := zerolog.Nop()
		return &l
	}
	return &s.Logger
}
