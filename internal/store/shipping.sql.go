package store

import (
	"context"

	"github.com/noah-isme/backend-food/internal/money"
)

const shippingTierColumns = `id, name, min_order_amount, max_order_amount, fee_amount, free_shipping_threshold, is_default, sort_order, created_at`

const listShippingTiers = `SELECT ` + shippingTierColumns + ` FROM shipping_tiers ORDER BY sort_order, min_order_amount`

func (q *Queries) ListShippingTiers(ctx context.Context) ([]ShippingTier, error) {
	rows, err := q.db.Query(ctx, listShippingTiers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ShippingTier
	for rows.Next() {
		var t ShippingTier
		if err := rows.Scan(&t.ID, &t.Name, &t.MinOrderAmount, &t.MaxOrderAmount, &t.FeeAmount, &t.FreeShippingThreshold, &t.IsDefault, &t.SortOrder, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const deleteShippingTiers = `DELETE FROM shipping_tiers`

func (q *Queries) DeleteShippingTiers(ctx context.Context) error {
	_, err := q.db.Exec(ctx, deleteShippingTiers)
	return err
}

type InsertShippingTierParams struct {
	Name                  string
	MinOrderAmount        money.Money
	MaxOrderAmount        money.NullMoney
	FeeAmount             money.Money
	FreeShippingThreshold money.NullMoney
	IsDefault             bool
	SortOrder             int32
}

const insertShippingTier = `INSERT INTO shipping_tiers (name, min_order_amount, max_order_amount, fee_amount, free_shipping_threshold, is_default, sort_order)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING ` + shippingTierColumns

func (q *Queries) InsertShippingTier(ctx context.Context, arg InsertShippingTierParams) (ShippingTier, error) {
	var t ShippingTier
	err := q.db.QueryRow(ctx, insertShippingTier, arg.Name, arg.MinOrderAmount, arg.MaxOrderAmount, arg.FeeAmount, arg.FreeShippingThreshold, arg.IsDefault, arg.SortOrder).
		Scan(&t.ID, &t.Name, &t.MinOrderAmount, &t.MaxOrderAmount, &t.FeeAmount, &t.FreeShippingThreshold, &t.IsDefault, &t.SortOrder, &t.CreatedAt)
	return t, err
}
