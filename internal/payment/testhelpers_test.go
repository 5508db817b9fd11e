package payment_test

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/store"
)

var testGateway = payment.VNPay{
	TmnCode:    "FOODDEMO",
	HashSecret: "s3cr3t-hash-key",
	PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
	ReturnURL:  "https://food.example/api/v1/payments/vnpay/return",
}

type couponUsageKey struct {
	coupon pgtype.UUID
	order  pgtype.UUID
}

// memStore is an in-memory stand-in for the payment, order and coupon queries.
type memStore struct {
	orders     map[pgtype.UUID]*store.Order
	payments   []*store.Payment
	coupons    map[string]*store.Coupon
	usages     map[couponUsageKey]bool
	increments int
	clock      time.Time
}

func newMemStore() *memStore {
	return &memStore{
		orders:  map[pgtype.UUID]*store.Order{},
		coupons: map[string]*store.Coupon{},
		usages:  map[couponUsageKey]bool{},
		clock:   time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addOrder(method store.PaymentMethod, final int64, couponCode string) *store.Order {
	o := &store.Order{
		ID:            store.UUID(uuid.New()),
		OrderNumber:   "ORD-20260315-" + strconv.Itoa(len(m.orders)+1),
		UserID:        store.UUID(uuid.New()),
		Status:        store.OrderStatusPENDING,
		FinalAmount:   money.New(final),
		PaymentStatus: store.PaymentStatusPENDING,
		PaymentMethod: method,
		CouponCode:    store.Text(couponCode),
	}
	if couponCode != "" {
		o.DiscountAmount = money.New(10_000)
	}
	m.orders[o.ID] = o
	return o
}

func (m *memStore) addCoupon(code string, limit int32, used int32) *store.Coupon {
	c := &store.Coupon{
		ID:             store.UUID(uuid.New()),
		Code:           code,
		DiscountType:   store.DiscountTypePERCENTAGE,
		DiscountValue:  money.New(10),
		MinOrderAmount: money.Zero(),
		UsedCount:      used,
		StartDate:      m.clock.AddDate(0, -1, 0),
		EndDate:        m.clock.AddDate(0, 1, 0),
		IsActive:       true,
	}
	if limit > 0 {
		c.UsageLimit = pgtype.Int4{Int32: limit, Valid: true}
	}
	m.coupons[code] = c
	return c
}

func (m *memStore) addSignedPayment(o *store.Order, ref string, updated time.Time) *store.Payment {
	p := &store.Payment{
		ID:             store.UUID(uuid.New()),
		OrderID:        o.ID,
		Method:         o.PaymentMethod,
		Provider:       store.Text(payment.ProviderVNPay),
		Amount:         o.FinalAmount,
		Status:         store.PaymentStatusPENDING,
		TransactionRef: store.Text(ref),
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
	m.payments = append(m.payments, p)
	return p
}

func (m *memStore) paymentsFor(orderID pgtype.UUID) []*store.Payment {
	var out []*store.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

func (m *memStore) inTxSettle(ctx context.Context, fn func(payment.SettlementQuerier) error) error {
	return fn(m)
}

func (m *memStore) inTxRedirect(ctx context.Context, fn func(payment.Querier) error) error {
	return fn(m)
}

func (m *memStore) inTxSweep(ctx context.Context, fn func(payment.SweepQuerier) error) error {
	return fn(m)
}

func (m *memStore) GetOrderByID(_ context.Context, id pgtype.UUID) (store.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	return *o, nil
}

func (m *memStore) GetOrderByIDForUpdate(ctx context.Context, id pgtype.UUID) (store.Order, error) {
	return m.GetOrderByID(ctx, id)
}

func (m *memStore) UpdateOrderStatus(_ context.Context, arg store.UpdateOrderStatusParams) (store.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	if arg.CancelReason.Valid {
		o.CancelReason = arg.CancelReason
	}
	return *o, nil
}

func (m *memStore) UpdateOrderPaymentStatus(_ context.Context, arg store.UpdateOrderPaymentStatusParams) error {
	if o, ok := m.orders[arg.ID]; ok {
		o.PaymentStatus = arg.PaymentStatus
	}
	return nil
}

func (m *memStore) CreatePayment(_ context.Context, arg store.CreatePaymentParams) (store.Payment, error) {
	p := &store.Payment{
		ID:             store.UUID(uuid.New()),
		OrderID:        arg.OrderID,
		Method:         arg.Method,
		Provider:       arg.Provider,
		Amount:         arg.Amount,
		Status:         store.PaymentStatusPENDING,
		TransactionRef: arg.TransactionRef,
		CreatedAt:      m.clock,
		UpdatedAt:      m.clock,
	}
	m.payments = append(m.payments, p)
	return *p, nil
}

func (m *memStore) GetUnsignedPendingPayment(_ context.Context, orderID pgtype.UUID) (store.Payment, error) {
	for i := len(m.payments) - 1; i >= 0; i-- {
		p := m.payments[i]
		if p.OrderID == orderID && p.Status == store.PaymentStatusPENDING && !p.TransactionRef.Valid {
			return *p, nil
		}
	}
	return store.Payment{}, pgx.ErrNoRows
}

func (m *memStore) SetPaymentTransactionRef(_ context.Context, arg store.SetPaymentTransactionRefParams) (store.Payment, error) {
	for _, p := range m.payments {
		if p.ID == arg.ID && p.Status == store.PaymentStatusPENDING {
			p.TransactionRef = store.Text(arg.TransactionRef)
			p.Provider = arg.Provider
			return *p, nil
		}
	}
	return store.Payment{}, pgx.ErrNoRows
}

func (m *memStore) GetPaymentByTransactionRefForUpdate(_ context.Context, ref string) (store.Payment, error) {
	for _, p := range m.payments {
		if p.TransactionRef.Valid && p.TransactionRef.String == ref {
			return *p, nil
		}
	}
	return store.Payment{}, pgx.ErrNoRows
}

func (m *memStore) SettlePayment(_ context.Context, arg store.SettlePaymentParams) (store.Payment, error) {
	for _, p := range m.payments {
		if p.ID != arg.ID {
			continue
		}
		if p.Status != store.PaymentStatusPENDING {
			return store.Payment{}, pgx.ErrNoRows
		}
		p.Status = arg.Status
		p.GatewayTransactionNo = arg.GatewayTransactionNo
		p.ResponseCode = arg.ResponseCode
		if arg.Notes.Valid {
			p.Notes = arg.Notes
		}
		if arg.ProviderPayload != nil {
			p.ProviderPayload = arg.ProviderPayload
		}
		p.SettledAt = pgtype.Timestamptz{Time: m.clock, Valid: true}
		return *p, nil
	}
	return store.Payment{}, pgx.ErrNoRows
}

func (m *memStore) RecordLatePayment(_ context.Context, arg store.RecordLatePaymentParams) (store.Payment, error) {
	for _, p := range m.payments {
		if p.ID != arg.ID || p.Status != store.PaymentStatusFAILED {
			continue
		}
		p.GatewayTransactionNo = arg.GatewayTransactionNo
		p.ResponseCode = arg.ResponseCode
		p.Notes = store.Text(arg.Notes)
		if arg.ProviderPayload != nil {
			p.ProviderPayload = arg.ProviderPayload
		}
		return *p, nil
	}
	return store.Payment{}, pgx.ErrNoRows
}

func (m *memStore) CountOpenPayments(_ context.Context, arg store.CountOpenPaymentsParams) (int64, error) {
	var n int64
	for _, p := range m.payments {
		if p.OrderID == arg.OrderID && p.ID != arg.ExcludeID && p.Status == store.PaymentStatusPENDING {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ClaimStalePayments(_ context.Context, arg store.ClaimStalePaymentsParams) ([]store.Payment, error) {
	var out []store.Payment
	for _, p := range m.payments {
		if int32(len(out)) >= arg.Limit {
			break
		}
		if p.Status == store.PaymentStatusPENDING && p.TransactionRef.Valid && p.UpdatedAt.Before(arg.Before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) GetCouponByCode(_ context.Context, code string) (store.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return *c, nil
}

func (m *memStore) CreateCoupon(_ context.Context, arg store.CreateCouponParams) (store.Coupon, error) {
	c := store.Coupon{ID: store.UUID(uuid.New()), Code: arg.Code, DiscountType: arg.DiscountType, DiscountValue: arg.DiscountValue}
	m.coupons[arg.Code] = &c
	return c, nil
}

func (m *memStore) HasCouponUsage(_ context.Context, arg store.HasCouponUsageParams) (bool, error) {
	return m.usages[couponUsageKey{coupon: arg.CouponID, order: arg.OrderID}], nil
}

func (m *memStore) InsertCouponUsage(_ context.Context, arg store.InsertCouponUsageParams) (bool, error) {
	key := couponUsageKey{coupon: arg.CouponID, order: arg.OrderID}
	if m.usages[key] {
		return false, nil
	}
	m.usages[key] = true
	return true, nil
}

func (m *memStore) IncrementCouponUsage(_ context.Context, id pgtype.UUID) (bool, error) {
	for _, c := range m.coupons {
		if c.ID != id {
			continue
		}
		if c.UsageLimit.Valid && c.UsedCount >= c.UsageLimit.Int32 {
			return false, nil
		}
		c.UsedCount++
		m.increments++
		return true, nil
	}
	return false, nil
}

type recordedEvent struct {
	topic   string
	payload any
}

type eventRecorder struct {
	events []recordedEvent
}

func (r *eventRecorder) Emit(_ context.Context, topic string, aggregateID pgtype.UUID, payload any) (store.DomainEvent, error) {
	r.events = append(r.events, recordedEvent{topic: topic, payload: payload})
	return store.DomainEvent{ID: store.UUID(uuid.New()), Topic: topic, AggregateID: aggregateID}, nil
}

func (r *eventRecorder) topics() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.topic)
	}
	return out
}

// signedCallback builds a gateway callback for ref signed with gw's secret.
func signedCallback(gw payment.VNPay, ref string, amount money.Money, code string) url.Values {
	v := url.Values{}
	v.Set("vnp_TmnCode", gw.TmnCode)
	v.Set("vnp_TxnRef", ref)
	v.Set("vnp_Amount", strconv.FormatInt(amount.MinorUnits(2), 10))
	v.Set("vnp_ResponseCode", code)
	v.Set("vnp_TransactionStatus", code)
	v.Set("vnp_TransactionNo", "14123456")
	v.Set("vnp_BankCode", "NCB")
	v.Set("vnp_PayDate", "20260315190500")
	v.Set("vnp_OrderInfo", "Thanh toan don hang ORD-20260315-1")
	v.Set("vnp_SecureHashType", "HmacSHA512")
	v.Set("vnp_SecureHash", gw.Sign(v))
	return v
}
