package shipping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-food/internal/money"
)

var (
	// ErrMultipleDefaults is returned when more than one tier is flagged as default.
	ErrMultipleDefaults = errors.New("at most one shipping tier may be the default")
	// ErrInvalidBracket is returned when a tier's bounds are inverted or negative.
	ErrInvalidBracket = errors.New("invalid shipping tier bracket")
)

// Area describes the delivery destination. It is echoed in rationales but
// does not affect the fee in the tier model.
type Area struct {
	Province string `json:"province,omitempty"`
	District string `json:"district,omitempty"`
	Ward     string `json:"ward,omitempty"`
}

func (a Area) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Ward, a.District, a.Province} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Tier maps an order-amount bracket [MinOrderAmount, MaxOrderAmount) to a fee.
// A nil MaxOrderAmount leaves the bracket unbounded.
type Tier struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name" validate:"required,max=120"`
	MinOrderAmount        money.Money  `json:"minOrderAmount"`
	MaxOrderAmount        *money.Money `json:"maxOrderAmount,omitempty"`
	FeeAmount             money.Money  `json:"feeAmount"`
	FreeShippingThreshold *money.Money `json:"freeShippingThreshold,omitempty"`
	IsDefault             bool         `json:"isDefault"`
	SortOrder             int          `json:"sortOrder"`
}

// Contains reports whether subtotal falls inside the tier's bracket.
func (t Tier) Contains(subtotal money.Money) bool {
	if subtotal.LessThan(t.MinOrderAmount) {
		return false
	}
	if t.MaxOrderAmount != nil && !subtotal.LessThan(*t.MaxOrderAmount) {
		return false
	}
	return true
}

// FeeFor applies the free-shipping threshold to the tier fee.
func (t Tier) FeeFor(subtotal money.Money) (money.Money, bool) {
	if t.FreeShippingThreshold != nil && subtotal.GreaterThanOrEqual(*t.FreeShippingThreshold) {
		return money.Zero(), true
	}
	return t.FeeAmount, false
}

func (t Tier) bracket() string {
	upper := "∞"
	if t.MaxOrderAmount != nil {
		upper = t.MaxOrderAmount.String()
	}
	return fmt.Sprintf("[%s, %s)", t.MinOrderAmount.String(), upper)
}

// ValidateTiers checks a tier set before it is persisted.
func ValidateTiers(tiers []Tier) error {
	defaults := 0
	for _, t := range tiers {
		if t.IsDefault {
			defaults++
		}
		if t.MinOrderAmount.IsNegative() || t.FeeAmount.IsNegative() {
			return fmt.Errorf("tier %q: %w", t.Name, ErrInvalidBracket)
		}
		if t.MaxOrderAmount != nil && !t.MaxOrderAmount.GreaterThan(t.MinOrderAmount) {
			return fmt.Errorf("tier %q: %w", t.Name, ErrInvalidBracket)
		}
		if t.FreeShippingThreshold != nil && t.FreeShippingThreshold.IsNegative() {
			return fmt.Errorf("tier %q: %w", t.Name, ErrInvalidBracket)
		}
	}
	if defaults > 1 {
		return ErrMultipleDefaults
	}
	return nil
}
