package shipping

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-food/internal/cache"
	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/store"
)

// Querier is the subset of store queries used for tier storage.
type Querier interface {
	ListShippingTiers(ctx context.Context) ([]store.ShippingTier, error)
	DeleteShippingTiers(ctx context.Context) error
	InsertShippingTier(ctx context.Context, arg store.InsertShippingTierParams) (store.ShippingTier, error)
}

// StoreSource loads tiers from Postgres behind a Redis read-through cache.
type StoreSource struct {
	Q      Querier
	InTx   func(ctx context.Context, fn func(Querier) error) error
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// Tiers returns the configured tiers ordered by sort order.
func (s *StoreSource) Tiers(ctx context.Context) ([]Tier, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("shipping tier store not configured")
	}
	var cached []Tier
	if hit, err := s.Cache.Get(ctx, cache.KeyShippingTiers(), &cached); err != nil {
		s.Logger.Warn().Err(err).Msg("shipping tier cache read failed")
	} else if hit {
		return cached, nil
	}

	rows, err := s.Q.ListShippingTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shipping tiers: %w", err)
	}
	tiers := make([]Tier, 0, len(rows))
	for _, row := range rows {
		tiers = append(tiers, fromRow(row))
	}
	if err := s.Cache.Set(ctx, cache.KeyShippingTiers(), tiers); err != nil {
		s.Logger.Warn().Err(err).Msg("shipping tier cache write failed")
	}
	return tiers, nil
}

// Replace swaps the whole tier set atomically and drops the cached copy.
func (s *StoreSource) Replace(ctx context.Context, tiers []Tier) ([]Tier, error) {
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	if s == nil || s.InTx == nil {
		return nil, fmt.Errorf("shipping tier store not configured")
	}
	saved := make([]Tier, 0, len(tiers))
	err := s.InTx(ctx, func(q Querier) error {
		if err := q.DeleteShippingTiers(ctx); err != nil {
			return fmt.Errorf("delete shipping tiers: %w", err)
		}
		for _, t := range tiers {
			row, err := q.InsertShippingTier(ctx, store.InsertShippingTierParams{
				Name:                  t.Name,
				MinOrderAmount:        t.MinOrderAmount,
				MaxOrderAmount:        nullMoney(t.MaxOrderAmount),
				FeeAmount:             t.FeeAmount,
				FreeShippingThreshold: nullMoney(t.FreeShippingThreshold),
				IsDefault:             t.IsDefault,
				SortOrder:             int32(t.SortOrder),
			})
			if err != nil {
				return fmt.Errorf("insert shipping tier %q: %w", t.Name, err)
			}
			saved = append(saved, fromRow(row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Delete(ctx, cache.KeyShippingTiers()); err != nil {
		s.Logger.Warn().Err(err).Msg("shipping tier cache invalidation failed")
	}
	return saved, nil
}

func fromRow(row store.ShippingTier) Tier {
	return Tier{
		ID:                    store.UUIDString(row.ID),
		Name:                  row.Name,
		MinOrderAmount:        row.MinOrderAmount,
		MaxOrderAmount:        row.MaxOrderAmount.Ptr(),
		FeeAmount:             row.FeeAmount,
		FreeShippingThreshold: row.FreeShippingThreshold.Ptr(),
		IsDefault:             row.IsDefault,
		SortOrder:             int(row.SortOrder),
	}
}

func nullMoney(m *money.Money) money.NullMoney {
	if m == nil {
		return money.NullMoney{}
	}
	return money.Some(*m)
}
