package coupon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/store"
)

var (
	// ErrCouponNotFound is returned when no active coupon matches the code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExpired is returned when the coupon is outside its window or used up.
	ErrCouponExpired = errors.New("coupon is no longer valid")
	// ErrCouponMinimumNotMet indicates the subtotal is below the coupon minimum.
	ErrCouponMinimumNotMet = errors.New("order does not meet the coupon minimum amount")
	// ErrCouponUsageExhausted is returned by Redeem when the usage limit was reached concurrently.
	ErrCouponUsageExhausted = errors.New("coupon usage limit reached")
)

// Kind is the discount flavour.
type Kind string

const (
	KindPercentage Kind = "PERCENTAGE"
	KindFixed      Kind = "FIXED_AMOUNT"
)

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	ID                string
	Code              string
	Kind              Kind
	Value             money.Money
	MinOrderAmount    money.Money
	MaxDiscountAmount *money.Money
	UsageLimit        *int32
	UsedCount         int32
	StartDate         time.Time
	EndDate           time.Time
	Active            bool
}

// IsValid reports whether the coupon is active, inside its window and not used up.
func (r Rule) IsValid(now time.Time) bool {
	if !r.Active {
		return false
	}
	if now.Before(r.StartDate) || now.After(r.EndDate) {
		return false
	}
	if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
		return false
	}
	return true
}

// CanBeUsedForOrder reports whether the coupon applies to an order of amount.
func (r Rule) CanBeUsedForOrder(now time.Time, amount money.Money) bool {
	return r.IsValid(now) && amount.GreaterThanOrEqual(r.MinOrderAmount)
}

// Check returns the rejection reason for subtotal at now, or nil.
func (r Rule) Check(now time.Time, subtotal money.Money) error {
	if !r.Active {
		return ErrCouponNotFound
	}
	if !r.IsValid(now) {
		if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
			return fmt.Errorf("%w: usage limit reached", ErrCouponExpired)
		}
		return ErrCouponExpired
	}
	if !r.CanBeUsedForOrder(now, subtotal) {
		return fmt.Errorf("%w (minimum %s)", ErrCouponMinimumNotMet, r.MinOrderAmount)
	}
	return nil
}

// Discount computes the raw discount and clamps it to the coupon maximum and to subtotal.
func (r Rule) Discount(subtotal money.Money) money.Money {
	if !subtotal.IsPositive() {
		return money.Zero()
	}
	var raw money.Money
	switch Kind(strings.ToUpper(string(r.Kind))) {
	case KindPercentage:
		raw = subtotal.Percent(r.Value.Decimal())
	default:
		raw = r.Value
	}
	if r.MaxDiscountAmount != nil {
		raw = money.Min(raw, *r.MaxDiscountAmount)
	}
	return money.Min(raw, subtotal).NonNegative()
}

// RuleFromModel converts a stored coupon into a Rule.
func RuleFromModel(c store.Coupon) Rule {
	rule := Rule{
		ID:                store.UUIDString(c.ID),
		Code:              c.Code,
		Kind:              Kind(c.DiscountType),
		Value:             c.DiscountValue,
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount.Ptr(),
		UsedCount:         c.UsedCount,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		Active:            c.IsActive,
	}
	if c.UsageLimit.Valid {
		limit := c.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	return rule
}

// ValidatePercent reports whether a percentage value lies in (0, 100].
func ValidatePercent(v money.Money) bool {
	return v.IsPositive() && v.Decimal().LessThanOrEqual(decimal.NewFromInt(100))
}
