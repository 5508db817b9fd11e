package order_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/coupon"
	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/order"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/pricing"
	"github.com/noah-isme/backend-food/internal/store"
)

var testNow = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

const (
	productA = "6f1c1d3e-7a7b-4f0a-9d55-3f5c4c9b1a01"
	optionX  = "6f1c1d3e-7a7b-4f0a-9d55-3f5c4c9b1a02"
)

// stubQuerier keeps orders, lines, payments and coupons in memory.
type stubQuerier struct {
	orders        map[pgtype.UUID]*store.Order
	items         []store.OrderItem
	options       []store.OrderItemOption
	payments      []*store.Payment
	coupons       map[string]*store.Coupon
	usages        map[[2]pgtype.UUID]bool
	increments    int
	numbers       []string
	collisions    int
	createdOrders int
}

func newStubQuerier() *stubQuerier {
	return &stubQuerier{
		orders:  map[pgtype.UUID]*store.Order{},
		coupons: map[string]*store.Coupon{},
		usages:  map[[2]pgtype.UUID]bool{},
	}
}

func (s *stubQuerier) inTx(_ context.Context, fn func(order.Querier) error) error {
	return fn(s)
}

func (s *stubQuerier) seedOrder(userID pgtype.UUID, method store.PaymentMethod, status store.OrderStatus) *store.Order {
	o := &store.Order{
		ID:             store.UUID(uuid.New()),
		OrderNumber:    order.NewOrderNumber(testNow),
		UserID:         userID,
		Status:         status,
		TotalAmount:    money.New(150_000),
		ShippingFee:    money.New(15_000),
		DiscountAmount: money.Zero(),
		FinalAmount:    money.New(165_000),
		PaymentStatus:  store.PaymentStatusPENDING,
		PaymentMethod:  method,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	s.orders[o.ID] = o
	_, _ = s.CreatePayment(context.Background(), store.CreatePaymentParams{OrderID: o.ID, Method: method, Amount: o.FinalAmount})
	return o
}

func (s *stubQuerier) paymentsFor(id pgtype.UUID) []*store.Payment {
	var out []*store.Payment
	for _, p := range s.payments {
		if p.OrderID == id {
			out = append(out, p)
		}
	}
	return out
}

func (s *stubQuerier) CreateOrder(_ context.Context, arg store.CreateOrderParams) (store.Order, error) {
	s.numbers = append(s.numbers, arg.OrderNumber)
	if s.collisions > 0 {
		s.collisions--
		return store.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	}
	o := &store.Order{
		ID:              store.UUID(uuid.New()),
		OrderNumber:     arg.OrderNumber,
		UserID:          arg.UserID,
		Status:          store.OrderStatusPENDING,
		TotalAmount:     arg.TotalAmount,
		ShippingFee:     arg.ShippingFee,
		DiscountAmount:  arg.DiscountAmount,
		FinalAmount:     arg.FinalAmount,
		PaymentStatus:   store.PaymentStatusPENDING,
		PaymentMethod:   arg.PaymentMethod,
		CouponCode:      arg.CouponCode,
		Notes:           arg.Notes,
		DeliveryAddress: arg.DeliveryAddress,
		DeliveryArea:    arg.DeliveryArea,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	s.orders[o.ID] = o
	s.createdOrders++
	return *o, nil
}

func (s *stubQuerier) CreateOrderItem(_ context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error) {
	it := store.OrderItem{
		ID:          store.UUID(uuid.New()),
		OrderID:     arg.OrderID,
		ProductID:   arg.ProductID,
		ProductName: arg.ProductName,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		SalePrice:   arg.SalePrice,
		LineTotal:   arg.LineTotal,
		Position:    arg.Position,
	}
	s.items = append(s.items, it)
	return it, nil
}

func (s *stubQuerier) CreateOrderItemOption(_ context.Context, arg store.CreateOrderItemOptionParams) error {
	s.options = append(s.options, store.OrderItemOption{
		ID:          store.UUID(uuid.New()),
		OrderItemID: arg.OrderItemID,
		OptionID:    arg.OptionID,
		Name:        arg.Name,
		OptionType:  arg.OptionType,
		Surcharge:   arg.Surcharge,
		Position:    arg.Position,
	})
	return nil
}

func (s *stubQuerier) CreatePayment(_ context.Context, arg store.CreatePaymentParams) (store.Payment, error) {
	p := &store.Payment{
		ID:        store.UUID(uuid.New()),
		OrderID:   arg.OrderID,
		Method:    arg.Method,
		Provider:  arg.Provider,
		Amount:    arg.Amount,
		Status:    store.PaymentStatusPENDING,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	s.payments = append(s.payments, p)
	return *p, nil
}

func (s *stubQuerier) GetOrderByID(_ context.Context, id pgtype.UUID) (store.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	return *o, nil
}

func (s *stubQuerier) GetOrderByIDForUpdate(ctx context.Context, id pgtype.UUID) (store.Order, error) {
	return s.GetOrderByID(ctx, id)
}

func (s *stubQuerier) ListOrdersForUser(_ context.Context, arg store.ListOrdersForUserParams) ([]store.Order, error) {
	var out []store.Order
	for _, o := range s.orders {
		if o.UserID == arg.UserID {
			out = append(out, *o)
		}
	}
	lo := min(int(arg.Offset), len(out))
	hi := min(lo+int(arg.Limit), len(out))
	return out[lo:hi], nil
}

func (s *stubQuerier) CountOrdersForUser(_ context.Context, userID pgtype.UUID) (int64, error) {
	var n int64
	for _, o := range s.orders {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *stubQuerier) ListOrderItems(_ context.Context, orderID pgtype.UUID) ([]store.OrderItem, error) {
	var out []store.OrderItem
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *stubQuerier) ListOrderItemOptions(_ context.Context, orderID pgtype.UUID) ([]store.OrderItemOption, error) {
	owned := map[pgtype.UUID]bool{}
	for _, it := range s.items {
		if it.OrderID == orderID {
			owned[it.ID] = true
		}
	}
	var out []store.OrderItemOption
	for _, o := range s.options {
		if owned[o.OrderItemID] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubQuerier) ListPaymentsByOrder(_ context.Context, orderID pgtype.UUID) ([]store.Payment, error) {
	var out []store.Payment
	for _, p := range s.paymentsFor(orderID) {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubQuerier) UpdateOrderStatus(_ context.Context, arg store.UpdateOrderStatusParams) (store.Order, error) {
	o, ok := s.orders[arg.ID]
	if !ok {
		return store.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	if arg.CancelReason.Valid {
		o.CancelReason = arg.CancelReason
	}
	return *o, nil
}

func (s *stubQuerier) UpdateOrderPaymentStatus(_ context.Context, arg store.UpdateOrderPaymentStatusParams) error {
	if o, ok := s.orders[arg.ID]; ok {
		o.PaymentStatus = arg.PaymentStatus
	}
	return nil
}

func (s *stubQuerier) SettlePayment(_ context.Context, arg store.SettlePaymentParams) (store.Payment, error) {
	for _, p := range s.payments {
		if p.ID == arg.ID && p.Status == store.PaymentStatusPENDING {
			p.Status = arg.Status
			p.Notes = arg.Notes
			p.SettledAt = pgtype.Timestamptz{Time: testNow, Valid: true}
			return *p, nil
		}
	}
	return store.Payment{}, pgx.ErrNoRows
}

func (s *stubQuerier) GetCouponByCode(_ context.Context, code string) (store.Coupon, error) {
	c, ok := s.coupons[code]
	if !ok {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return *c, nil
}

func (s *stubQuerier) CreateCoupon(_ context.Context, arg store.CreateCouponParams) (store.Coupon, error) {
	c := store.Coupon{ID: store.UUID(uuid.New()), Code: arg.Code}
	s.coupons[arg.Code] = &c
	return c, nil
}

func (s *stubQuerier) HasCouponUsage(_ context.Context, arg store.HasCouponUsageParams) (bool, error) {
	return s.usages[[2]pgtype.UUID{arg.CouponID, arg.OrderID}], nil
}

func (s *stubQuerier) InsertCouponUsage(_ context.Context, arg store.InsertCouponUsageParams) (bool, error) {
	key := [2]pgtype.UUID{arg.CouponID, arg.OrderID}
	if s.usages[key] {
		return false, nil
	}
	s.usages[key] = true
	return true, nil
}

func (s *stubQuerier) IncrementCouponUsage(_ context.Context, id pgtype.UUID) (bool, error) {
	for _, c := range s.coupons {
		if c.ID == id {
			if c.UsageLimit.Valid && c.UsedCount >= c.UsageLimit.Int32 {
				return false, nil
			}
			c.UsedCount++
			s.increments++
			return true, nil
		}
	}
	return false, nil
}

// fixedQuoter returns a Scenario B style quote unless err is set.
type fixedQuoter struct {
	err   error
	calls int
}

func (f *fixedQuoter) Quote(_ context.Context, in pricing.QuoteInput) (pricing.Quote, error) {
	f.calls++
	if f.err != nil {
		return pricing.Quote{}, f.err
	}
	q := pricing.Quote{
		Lines: []pricing.OrderLine{{
			ProductID: productA,
			Name:      "Com tam",
			Quantity:  2,
			UnitPrice: money.New(70_000),
			SelectedOptions: []pricing.SelectedOption{
				{OptionID: optionX, Name: "Extra egg", Type: "topping", Surcharge: money.New(10_000)},
			},
			LineTotal: money.New(150_000),
		}},
		Subtotal:       money.New(150_000),
		ShippingFee:    money.New(15_000),
		CouponDiscount: money.Zero(),
		FinalAmount:    money.New(165_000),
		Currency:       "VND",
		PricedAt:       in.At,
	}
	if in.CouponCode != "" {
		q.CouponCode = in.CouponCode
		q.CouponDiscount = money.New(10_000)
		q.FinalAmount = money.New(155_000)
	}
	return q, nil
}

type fakeRedirector struct {
	calls int
	err   error
}

func (f *fakeRedirector) CreateRedirect(_ context.Context, orderID pgtype.UUID, _ string) (payment.Redirect, error) {
	f.calls++
	if f.err != nil {
		return payment.Redirect{}, f.err
	}
	return payment.Redirect{URL: "https://sandbox.vnpayment.vn/pay?ref=" + store.UUIDString(orderID), Provider: payment.ProviderVNPay}, nil
}

type topicRecorder struct {
	topics []string
}

func (r *topicRecorder) Emit(_ context.Context, topic string, id pgtype.UUID, _ any) (store.DomainEvent, error) {
	r.topics = append(r.topics, topic)
	return store.DomainEvent{ID: store.UUID(uuid.New()), Topic: topic, AggregateID: id}, nil
}

type fixture struct {
	q        *stubQuerier
	quoter   *fixedQuoter
	redirect *fakeRedirector
	events   *topicRecorder
	svc      *order.Service
	userID   string
}

func newFixture() *fixture {
	f := &fixture{
		q:        newStubQuerier(),
		quoter:   &fixedQuoter{},
		redirect: &fakeRedirector{},
		events:   &topicRecorder{},
		userID:   uuid.NewString(),
	}
	f.svc = &order.Service{
		Q:          f.q,
		InTx:       f.q.inTx,
		Pricing:    f.quoter,
		Dispatcher: payment.Dispatcher{},
		Payments:   f.redirect,
		Coupons:    &coupon.Service{Q: f.q},
		Events:     f.events,
		Now:        func() time.Time { return testNow },
	}
	return f
}

func (f *fixture) uid() pgtype.UUID {
	id, _ := store.ParseUUID(f.userID)
	return id
}

func placeRequest(method string) order.PlaceRequest {
	return order.PlaceRequest{
		QuoteRequest: order.QuoteRequest{
			Items:    []pricing.CartLine{{ProductID: productA, Quantity: 2, OptionIDs: []string{optionX}}},
			Province: "Ho Chi Minh",
			District: "Quan 1",
		},
		PaymentMethod:   method,
		DeliveryAddress: "12 Nguyen Hue",
	}
}
