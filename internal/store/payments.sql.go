package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/money"
)

const paymentColumns = `id, order_id, method, provider, amount, status, transaction_ref, gateway_transaction_no,
response_code, notes, provider_payload, created_at, updated_at, settled_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Provider, &p.Amount, &p.Status, &p.TransactionRef, &p.GatewayTransactionNo,
		&p.ResponseCode, &p.Notes, &p.ProviderPayload, &p.CreatedAt, &p.UpdatedAt, &p.SettledAt)
	return p, err
}

func collectPayments(ctx context.Context, q *Queries, sql string, args ...any) ([]Payment, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

type CreatePaymentParams struct {
	OrderID        pgtype.UUID
	Method         PaymentMethod
	Provider       pgtype.Text
	Amount         money.Money
	TransactionRef pgtype.Text
}

const createPayment = `INSERT INTO payments (order_id, method, provider, amount, transaction_ref)
VALUES ($1, $2, $3, $4, $5) RETURNING ` + paymentColumns

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment, arg.OrderID, arg.Method, arg.Provider, arg.Amount, arg.TransactionRef))
}

const getPaymentByTransactionRefForUpdate = `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_ref = $1 FOR UPDATE`

func (q *Queries) GetPaymentByTransactionRefForUpdate(ctx context.Context, ref string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByTransactionRefForUpdate, ref))
}

const getUnsignedPendingPayment = `SELECT ` + paymentColumns + ` FROM payments
WHERE order_id = $1 AND status = 'PENDING' AND transaction_ref IS NULL
ORDER BY created_at DESC LIMIT 1 FOR UPDATE`

// GetUnsignedPendingPayment returns the newest pending attempt that has not been sent to a gateway yet.
func (q *Queries) GetUnsignedPendingPayment(ctx context.Context, orderID pgtype.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getUnsignedPendingPayment, orderID))
}

type SetPaymentTransactionRefParams struct {
	ID             pgtype.UUID
	Provider       pgtype.Text
	TransactionRef string
}

const setPaymentTransactionRef = `UPDATE payments SET transaction_ref = $3, provider = $2, updated_at = now()
WHERE id = $1 AND status = 'PENDING' RETURNING ` + paymentColumns

func (q *Queries) SetPaymentTransactionRef(ctx context.Context, arg SetPaymentTransactionRefParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, setPaymentTransactionRef, arg.ID, arg.Provider, arg.TransactionRef))
}

type SettlePaymentParams struct {
	ID                   pgtype.UUID
	Status               PaymentStatus
	GatewayTransactionNo pgtype.Text
	ResponseCode         pgtype.Text
	Notes                pgtype.Text
	ProviderPayload      []byte
}

const settlePayment = `UPDATE payments SET status = $2, gateway_transaction_no = $3, response_code = $4,
notes = COALESCE($5, notes), provider_payload = COALESCE($6, provider_payload), settled_at = now(), updated_at = now()
WHERE id = $1 AND status = 'PENDING' RETURNING ` + paymentColumns

// SettlePayment moves a pending payment to a terminal status. It returns
// pgx.ErrNoRows when the payment was no longer pending.
func (q *Queries) SettlePayment(ctx context.Context, arg SettlePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, settlePayment, arg.ID, arg.Status, arg.GatewayTransactionNo, arg.ResponseCode, arg.Notes, arg.ProviderPayload))
}

type RecordLatePaymentParams struct {
	ID                   pgtype.UUID
	GatewayTransactionNo pgtype.Text
	ResponseCode         pgtype.Text
	Notes                string
	ProviderPayload      []byte
}

const recordLatePayment = `UPDATE payments SET gateway_transaction_no = $2, response_code = $3, notes = $4,
provider_payload = COALESCE($5, provider_payload), updated_at = now()
WHERE id = $1 AND status = 'FAILED' RETURNING ` + paymentColumns

// RecordLatePayment annotates an already failed attempt with a success the
// gateway reported after the fact. The status stays FAILED.
func (q *Queries) RecordLatePayment(ctx context.Context, arg RecordLatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, recordLatePayment, arg.ID, arg.GatewayTransactionNo, arg.ResponseCode, arg.Notes, arg.ProviderPayload))
}

const listPaymentsByOrder = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID pgtype.UUID) ([]Payment, error) {
	return collectPayments(ctx, q, listPaymentsByOrder, orderID)
}

type ClaimStalePaymentsParams struct {
	Before time.Time
	Limit  int32
}

const claimStalePayments = `SELECT ` + paymentColumns + ` FROM payments
WHERE status = 'PENDING' AND transaction_ref IS NOT NULL AND updated_at < $1
ORDER BY updated_at LIMIT $2 FOR UPDATE SKIP LOCKED`

// ClaimStalePayments locks gateway attempts that have been waiting for a callback since before Before.
func (q *Queries) ClaimStalePayments(ctx context.Context, arg ClaimStalePaymentsParams) ([]Payment, error) {
	return collectPayments(ctx, q, claimStalePayments, arg.Before, arg.Limit)
}

type CountOpenPaymentsParams struct {
	OrderID   pgtype.UUID
	ExcludeID pgtype.UUID
}

const countOpenPayments = `SELECT count(*) FROM payments WHERE order_id = $1 AND id <> $2 AND status = 'PENDING'`

func (q *Queries) CountOpenPayments(ctx context.Context, arg CountOpenPaymentsParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOpenPayments, arg.OrderID, arg.ExcludeID).Scan(&n)
	return n, err
}
