package money

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Money is an exact decimal amount. Intermediate arithmetic never rounds;
// callers round once with Round when a quote is finalised.
type Money struct {
	d decimal.Decimal
}

// Zero returns a zero amount. The zero value of Money is also zero.
func Zero() Money { return Money{} }

// New builds an amount from whole currency units.
func New(units int64) Money { return Money{d: decimal.NewFromInt(units)} }

// FromDecimal wraps a decimal value.
func FromDecimal(d decimal.Decimal) Money { return Money{d: d} }

// FromMinor converts an integer amount expressed in minor units (e.g. cents) at the given scale.
func FromMinor(minor int64, scale int32) Money {
	return Money{d: decimal.New(minor, -scale)}
}

// Parse reads a decimal string such as "12500" or "19.99".
func Parse(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Money{}, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", value, err)
	}
	return Money{d: d}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(value string) Money {
	m, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal exposes the underlying decimal.
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(q int64) Money { return Money{d: m.d.Mul(decimal.NewFromInt(q))} }

// MulRate multiplies by an arbitrary decimal factor.
func (m Money) MulRate(rate decimal.Decimal) Money { return Money{d: m.d.Mul(rate)} }

// Percent returns m * pct / 100.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(hundred)}
}

// Round rounds half-up to scale decimal places. Amounts handled by the
// engine are non-negative, where half-up and half-away-from-zero agree.
func (m Money) Round(scale int32) Money { return Money{d: m.d.Round(scale)} }

// MinorUnits returns the amount as an integer count of minor units at scale,
// rounding half-up first.
func (m Money) MinorUnits(scale int32) int64 {
	return m.d.Shift(scale).Round(0).IntPart()
}

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func (m Money) GreaterThanOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// NonNegative clamps negative amounts to zero.
func (m Money) NonNegative() Money {
	if m.IsNegative() {
		return Money{}
	}
	return m
}

func (m Money) String() string { return m.d.String() }

// StringFixed formats with exactly scale decimal places.
func (m Money) StringFixed(scale int32) string { return m.d.StringFixed(scale) }

// MarshalJSON encodes the amount as a JSON string to avoid float precision loss.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.d.String())
}

// UnmarshalJSON accepts both quoted decimals and bare JSON numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*m = Money{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	parsed, err := Parse(string(trimmed))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Scan implements sql.Scanner so NUMERIC columns decode without float conversion.
func (m *Money) Scan(value any) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("money: scan: %w", err)
	}
	m.d = d
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.d.String(), nil
}

// NullMoney is a Money that may be absent, such as an optional cap or sale price.
type NullMoney struct {
	Money Money
	Valid bool
}

// Some wraps a present amount.
func Some(m Money) NullMoney { return NullMoney{Money: m, Valid: true} }

// Ptr returns a pointer to the amount or nil when absent.
func (n NullMoney) Ptr() *Money {
	if !n.Valid {
		return nil
	}
	m := n.Money
	return &m
}

func (n *NullMoney) Scan(value any) error {
	if value == nil {
		*n = NullMoney{}
		return nil
	}
	if err := n.Money.Scan(value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n NullMoney) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Money.Value()
}

func (n NullMoney) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return n.Money.MarshalJSON()
}

func (n *NullMoney) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = NullMoney{}
		return nil
	}
	if err := n.Money.UnmarshalJSON(data); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
