package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-food/internal/cache"
	"github.com/noah-isme/backend-food/internal/pricing"
	"github.com/noah-isme/backend-food/internal/store"
)

// Querier is the subset of store queries used to build snapshots.
type Querier interface {
	GetProductsByIDs(ctx context.Context, ids []pgtype.UUID) ([]store.Product, error)
	ListOptionsByProductIDs(ctx context.Context, ids []pgtype.UUID) ([]store.ProductOption, error)
}

// Service builds point-in-time catalog snapshots for pricing, reading
// through a per-product Redis cache.
type Service struct {
	Q      Querier
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// Snapshot returns the products named by ids together with their options.
// Unknown or malformed ids are left out so pricing reports them as invalid
// references.
func (s *Service) Snapshot(ctx context.Context, ids []string) (pricing.Snapshot, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("catalog service not configured")
	}
	snap := make(pricing.Snapshot, len(ids))
	var missing []pgtype.UUID
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id, err := store.ParseUUID(raw)
		if err != nil {
			continue
		}
		key := store.UUIDString(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		var cached pricing.Product
		hit, err := s.Cache.Get(ctx, cache.KeyProduct(key), &cached)
		if err != nil {
			s.Logger.Warn().Err(err).Str("product_id", key).Msg("catalog cache read failed")
		}
		if hit {
			snap[key] = cached
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return snap, nil
	}

	products, err := s.Q.GetProductsByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	options, err := s.Q.ListOptionsByProductIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("load product options: %w", err)
	}
	byProduct := make(map[string][]store.ProductOption, len(products))
	for _, o := range options {
		pid := store.UUIDString(o.ProductID)
		byProduct[pid] = append(byProduct[pid], o)
	}
	for _, p := range products {
		product := toPricing(p, byProduct[store.UUIDString(p.ID)])
		snap[product.ID] = product
		if err := s.Cache.Set(ctx, cache.KeyProduct(product.ID), product); err != nil {
			s.Logger.Warn().Err(err).Str("product_id", product.ID).Msg("catalog cache write failed")
		}
	}
	return snap, nil
}

// Invalidate drops cached snapshots for the given products.
func (s *Service) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			keys = append(keys, cache.KeyProduct(id))
		}
	}
	return s.Cache.Delete(ctx, keys...)
}

func toPricing(p store.Product, options []store.ProductOption) pricing.Product {
	out := pricing.Product{
		ID:        store.UUIDString(p.ID),
		Name:      p.Name,
		UnitPrice: p.Price,
		SalePrice: p.SalePrice.Ptr(),
		Available: p.IsAvailable,
		Options:   make(map[string]pricing.Option, len(options)),
	}
	if p.SaleStartsAt.Valid {
		start := p.SaleStartsAt.Time
		out.SaleStartsAt = &start
	}
	if p.SaleEndsAt.Valid {
		end := p.SaleEndsAt.Time
		out.SaleEndsAt = &end
	}
	for _, o := range options {
		id := store.UUIDString(o.ID)
		out.Options[id] = pricing.Option{
			ID:        id,
			Name:      o.Name,
			Type:      o.OptionType,
			Surcharge: o.Surcharge,
			Available: o.IsAvailable,
		}
	}
	return out
}
