package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-food/internal/money"
)

var (
	// ErrInvalidReference is returned when a line names a product or option missing from the catalog.
	ErrInvalidReference = errors.New("invalid product or option reference")
	// ErrInvalidQuantity is returned for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Option is a selectable add-on for a product.
type Option struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Surcharge money.Money `json:"surcharge"`
	Available bool        `json:"available"`
}

// Product is the catalog snapshot of a single item.
type Product struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	UnitPrice    money.Money       `json:"unitPrice"`
	SalePrice    *money.Money      `json:"salePrice,omitempty"`
	SaleStartsAt *time.Time        `json:"saleStartsAt,omitempty"`
	SaleEndsAt   *time.Time        `json:"saleEndsAt,omitempty"`
	Available    bool              `json:"available"`
	Options      map[string]Option `json:"options,omitempty"`
}

// ActiveSalePrice returns the sale price when it is set, inside its window at
// now, and not above the unit price.
func (p Product) ActiveSalePrice(now time.Time) *money.Money {
	if p.SalePrice == nil {
		return nil
	}
	if p.SaleStartsAt != nil && now.Before(*p.SaleStartsAt) {
		return nil
	}
	if p.SaleEndsAt != nil && now.After(*p.SaleEndsAt) {
		return nil
	}
	if p.SalePrice.GreaterThan(p.UnitPrice) || p.SalePrice.IsNegative() {
		return nil
	}
	sale := *p.SalePrice
	return &sale
}

// Catalog resolves products from a point-in-time snapshot.
type Catalog interface {
	Product(id string) (Product, bool)
}

// Snapshot is an in-memory Catalog keyed by product id.
type Snapshot map[string]Product

func (s Snapshot) Product(id string) (Product, bool) {
	p, ok := s[id]
	return p, ok
}

// CartLine is an unpriced line as submitted by the customer.
type CartLine struct {
	ProductID string   `json:"productId" validate:"required,uuid"`
	Quantity  int      `json:"quantity" validate:"gte=1,lte=999"`
	OptionIDs []string `json:"optionIds" validate:"omitempty,dive,uuid"`
}

// SelectedOption is an option as priced on a line, in request order.
type SelectedOption struct {
	OptionID  string      `json:"optionId"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Surcharge money.Money `json:"surcharge"`
}

// OrderLine is a priced line.
type OrderLine struct {
	ProductID          string           `json:"productId"`
	Name               string           `json:"name"`
	Quantity           int              `json:"quantity"`
	UnitPrice          money.Money      `json:"unitPrice"`
	EffectiveSalePrice *money.Money     `json:"effectiveSalePrice,omitempty"`
	SelectedOptions    []SelectedOption `json:"selectedOptions"`
	LineTotal          money.Money      `json:"lineTotal"`
}

// EffectiveUnitPrice returns the sale price when present, otherwise the unit price.
func (l OrderLine) EffectiveUnitPrice() money.Money {
	if l.EffectiveSalePrice != nil {
		return *l.EffectiveSalePrice
	}
	return l.UnitPrice
}

// PriceLine resolves the effective price and option surcharges for one line.
// lineTotal = (sale ?? unit) * quantity + sum(surcharge).
func PriceLine(line CartLine, catalog Catalog, now time.Time) (OrderLine, error) {
	if line.Quantity < 1 {
		return OrderLine{}, fmt.Errorf("product %s: %w", line.ProductID, ErrInvalidQuantity)
	}
	productID := strings.TrimSpace(line.ProductID)
	if catalog == nil {
		return OrderLine{}, fmt.Errorf("product %s: %w", productID, ErrInvalidReference)
	}
	product, ok := catalog.Product(productID)
	if !ok || !product.Available {
		return OrderLine{}, fmt.Errorf("product %s: %w", productID, ErrInvalidReference)
	}

	out := OrderLine{
		ProductID:          product.ID,
		Name:               product.Name,
		Quantity:           line.Quantity,
		UnitPrice:          product.UnitPrice,
		EffectiveSalePrice: product.ActiveSalePrice(now),
		SelectedOptions:    make([]SelectedOption, 0, len(line.OptionIDs)),
	}

	seen := make(map[string]struct{}, len(line.OptionIDs))
	surcharges := money.Zero()
	for _, raw := range line.OptionIDs {
		optionID := strings.TrimSpace(raw)
		if _, dup := seen[optionID]; dup {
			return OrderLine{}, fmt.Errorf("option %s selected twice: %w", optionID, ErrInvalidReference)
		}
		seen[optionID] = struct{}{}
		opt, ok := product.Options[optionID]
		if !ok || !opt.Available {
			return OrderLine{}, fmt.Errorf("option %s: %w", optionID, ErrInvalidReference)
		}
		out.SelectedOptions = append(out.SelectedOptions, SelectedOption{
			OptionID:  opt.ID,
			Name:      opt.Name,
			Type:      opt.Type,
			Surcharge: opt.Surcharge,
		})
		surcharges = surcharges.Add(opt.Surcharge)
	}

	out.LineTotal = out.EffectiveUnitPrice().MulInt(int64(line.Quantity)).Add(surcharges)
	return out, nil
}
