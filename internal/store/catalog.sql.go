package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/money"
)

const productColumns = `id, name, price, sale_price, sale_starts_at, sale_ends_at, is_available, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.SalePrice, &p.SaleStartsAt, &p.SaleEndsAt, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const getProductsByIDs = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1::uuid[])`

func (q *Queries) GetProductsByIDs(ctx context.Context, ids []pgtype.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, getProductsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const listOptionsByProductIDs = `SELECT id, product_id, name, option_type, surcharge, is_available
FROM product_options WHERE product_id = ANY($1::uuid[]) ORDER BY product_id, name`

func (q *Queries) ListOptionsByProductIDs(ctx context.Context, ids []pgtype.UUID) ([]ProductOption, error) {
	rows, err := q.db.Query(ctx, listOptionsByProductIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProductOption
	for rows.Next() {
		var o ProductOption
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Name, &o.OptionType, &o.Surcharge, &o.IsAvailable); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

type CreateProductParams struct {
	Name         string
	Price        money.Money
	SalePrice    money.NullMoney
	SaleStartsAt pgtype.Timestamptz
	SaleEndsAt   pgtype.Timestamptz
}

const createProduct = `INSERT INTO products (name, price, sale_price, sale_starts_at, sale_ends_at)
VALUES ($1, $2, $3, $4, $5) RETURNING ` + productColumns

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, createProduct, arg.Name, arg.Price, arg.SalePrice, arg.SaleStartsAt, arg.SaleEndsAt))
}

type CreateProductOptionParams struct {
	ProductID  pgtype.UUID
	Name       string
	OptionType string
	Surcharge  money.Money
}

const createProductOption = `INSERT INTO product_options (product_id, name, option_type, surcharge)
VALUES ($1, $2, $3, $4) RETURNING id, product_id, name, option_type, surcharge, is_available`

func (q *Queries) CreateProductOption(ctx context.Context, arg CreateProductOptionParams) (ProductOption, error) {
	var o ProductOption
	err := q.db.QueryRow(ctx, createProductOption, arg.ProductID, arg.Name, arg.OptionType, arg.Surcharge).
		Scan(&o.ID, &o.ProductID, &o.Name, &o.OptionType, &o.Surcharge, &o.IsAvailable)
	return o, err
}
