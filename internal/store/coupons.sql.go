package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/money"
)

const couponColumns = `id, code, discount_type, discount_value, min_order_amount, max_discount_amount, usage_limit, used_count, start_date, end_date, is_active, created_at, updated_at`

func scanCoupon(row interface{ Scan(...any) error }) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MinOrderAmount, &c.MaxDiscountAmount,
		&c.UsageLimit, &c.UsedCount, &c.StartDate, &c.EndDate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const getCouponByCode = `SELECT ` + couponColumns + ` FROM coupons WHERE lower(code) = lower($1)`

func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, getCouponByCode, code))
}

type CreateCouponParams struct {
	Code              string
	DiscountType      DiscountType
	DiscountValue     money.Money
	MinOrderAmount    money.Money
	MaxDiscountAmount money.NullMoney
	UsageLimit        pgtype.Int4
	StartDate         time.Time
	EndDate           time.Time
	IsActive          bool
}

const createCoupon = `INSERT INTO coupons (code, discount_type, discount_value, min_order_amount, max_discount_amount, usage_limit, start_date, end_date, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING ` + couponColumns

func (q *Queries) CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error) {
	return scanCoupon(q.db.QueryRow(ctx, createCoupon, arg.Code, arg.DiscountType, arg.DiscountValue, arg.MinOrderAmount,
		arg.MaxDiscountAmount, arg.UsageLimit, arg.StartDate, arg.EndDate, arg.IsActive))
}

type InsertCouponUsageParams struct {
	CouponID       pgtype.UUID
	OrderID        pgtype.UUID
	UserID         pgtype.UUID
	DiscountAmount money.Money
}

type HasCouponUsageParams struct {
	CouponID pgtype.UUID
	OrderID  pgtype.UUID
}

const hasCouponUsage = `SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND order_id = $2)`

func (q *Queries) HasCouponUsage(ctx context.Context, arg HasCouponUsageParams) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, hasCouponUsage, arg.CouponID, arg.OrderID).Scan(&ok)
	return ok, err
}

const insertCouponUsage = `INSERT INTO coupon_usages (coupon_id, order_id, user_id, discount_amount)
VALUES ($1, $2, $3, $4) ON CONFLICT (coupon_id, order_id) DO NOTHING`

// InsertCouponUsage records a redemption and reports whether a new row was written.
func (q *Queries) InsertCouponUsage(ctx context.Context, arg InsertCouponUsageParams) (bool, error) {
	tag, err := q.db.Exec(ctx, insertCouponUsage, arg.CouponID, arg.OrderID, arg.UserID, arg.DiscountAmount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const incrementCouponUsage = `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

// IncrementCouponUsage bumps used_count only while it is below usage_limit.
// It returns false when the limit was already reached.
func (q *Queries) IncrementCouponUsage(ctx context.Context, id pgtype.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, incrementCouponUsage, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
