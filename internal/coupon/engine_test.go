package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/money"
)

var (
	ruleStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ruleEnd   = time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	midYear   = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

func percentRule(pct int64, maxDiscount *money.Money) Rule {
	return Rule{Code: "PCT", Kind: KindPercentage, Value: money.New(pct), MinOrderAmount: money.Zero(),
		MaxDiscountAmount: maxDiscount, StartDate: ruleStart, EndDate: ruleEnd, Active: true}
}

func TestDiscountPercentClampedToMax(t *testing.T) {
	ceiling := money.New(10_000)
	rule := percentRule(10, &ceiling)

	require.True(t, rule.Discount(money.New(150_000)).Equal(money.New(10_000)))
	require.True(t, rule.Discount(money.New(50_000)).Equal(money.New(5_000)))
}

func TestDiscountNeverExceedsMaxOrSubtotal(t *testing.T) {
	ceiling := money.New(25_000)
	for _, pct := range []int64{1, 10, 50, 100} {
		rule := percentRule(pct, &ceiling)
		for _, subtotal := range []int64{0, 1, 999, 24_999, 25_000, 100_000, 10_000_000} {
			d := rule.Discount(money.New(subtotal))
			require.False(t, d.GreaterThan(ceiling), "pct=%d subtotal=%d", pct, subtotal)
			require.False(t, d.GreaterThan(money.New(subtotal)), "pct=%d subtotal=%d", pct, subtotal)
			require.False(t, d.IsNegative())
		}
	}
}

func TestFixedDiscountClampedToSubtotal(t *testing.T) {
	rule := Rule{Kind: KindFixed, Value: money.New(50_000), StartDate: ruleStart, EndDate: ruleEnd, Active: true}
	require.True(t, rule.Discount(money.New(30_000)).Equal(money.New(30_000)))
	require.True(t, rule.Discount(money.New(80_000)).Equal(money.New(50_000)))
}

func TestCheckRejections(t *testing.T) {
	rule := percentRule(10, nil)
	rule.MinOrderAmount = money.New(100_000)

	require.NoError(t, rule.Check(midYear, money.New(100_000)))
	require.ErrorIs(t, rule.Check(midYear, money.New(99_999)), ErrCouponMinimumNotMet)
	require.ErrorIs(t, rule.Check(ruleEnd.Add(time.Second), money.New(200_000)), ErrCouponExpired)
	require.ErrorIs(t, rule.Check(ruleStart.Add(-time.Second), money.New(200_000)), ErrCouponExpired)

	limit := int32(3)
	rule.UsageLimit = &limit
	rule.UsedCount = 3
	require.False(t, rule.IsValid(midYear))
	require.ErrorIs(t, rule.Check(midYear, money.New(200_000)), ErrCouponExpired)

	rule.Active = false
	require.ErrorIs(t, rule.Check(midYear, money.New(200_000)), ErrCouponNotFound)
}

func TestValidatePercent(t *testing.T) {
	require.True(t, ValidatePercent(money.New(100)))
	require.True(t, ValidatePercent(money.MustParse("0.5")))
	require.False(t, ValidatePercent(money.Zero()))
	require.False(t, ValidatePercent(money.New(101)))
}
