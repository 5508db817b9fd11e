package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-food/internal/coupon"
	"github.com/noah-isme/backend-food/internal/events"
	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/order/state"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/pricing"
	"github.com/noah-isme/backend-food/internal/shipping"
	"github.com/noah-isme/backend-food/internal/store"
)

var (
	// ErrOrderNotFound is returned when the order is missing or belongs to someone else.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidUser is returned when the caller identity is not a valid id.
	ErrInvalidUser = errors.New("invalid user")
	// ErrAwaitingPayment is returned when an online order is confirmed before it was paid.
	ErrAwaitingPayment = errors.New("order is awaiting online payment")
)

const (
	orderNumberConstraint = "orders_order_number_key"
	orderNumberAttempts   = 3
)

// Querier captures the database methods used by the order service.
type Querier interface {
	coupon.Querier
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error)
	CreateOrderItemOption(ctx context.Context, arg store.CreateOrderItemOptionParams) error
	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	GetOrderByIDForUpdate(ctx context.Context, id pgtype.UUID) (store.Order, error)
	ListOrdersForUser(ctx context.Context, arg store.ListOrdersForUserParams) ([]store.Order, error)
	CountOrdersForUser(ctx context.Context, userID pgtype.UUID) (int64, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
	ListOrderItemOptions(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItemOption, error)
	ListPaymentsByOrder(ctx context.Context, orderID pgtype.UUID) ([]store.Payment, error)
	UpdateOrderStatus(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg store.UpdateOrderPaymentStatusParams) error
	SettlePayment(ctx context.Context, arg store.SettlePaymentParams) (store.Payment, error)
}

// Quoter prices an order; *pricing.Engine satisfies it.
type Quoter interface {
	Quote(ctx context.Context, in pricing.QuoteInput) (pricing.Quote, error)
}

// Dispatcher records the first payment attempt; payment.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, q payment.DispatchQuerier, order store.Order, method string) (payment.Dispatch, error)
}

// Redirector signs gateway redirects; *payment.Service satisfies it.
type Redirector interface {
	CreateRedirect(ctx context.Context, orderID pgtype.UUID, clientIP string) (payment.Redirect, error)
}

// Service places orders and drives them through their lifecycle.
type Service struct {
	Q          Querier
	InTx       func(ctx context.Context, fn func(Querier) error) error
	Pricing    Quoter
	Dispatcher Dispatcher
	Payments   Redirector
	Coupons    payment.CouponRedeemer
	Events     payment.EventEmitter
	Now        func() time.Time
	Logger     zerolog.Logger
}

// QuoteRequest is the body of a price preview.
type QuoteRequest struct {
	Items      []pricing.CartLine `json:"items" validate:"required,min=1,max=50,dive"`
	CouponCode string             `json:"couponCode" validate:"omitempty,max=40"`
	Province   string             `json:"province" validate:"max=100"`
	District   string             `json:"district" validate:"max=100"`
	Ward       string             `json:"ward" validate:"max=100"`
}

func (r QuoteRequest) area() shipping.Area {
	return shipping.Area{Province: strings.TrimSpace(r.Province), District: strings.TrimSpace(r.District), Ward: strings.TrimSpace(r.Ward)}
}

// PlaceRequest is the body of an order placement.
type PlaceRequest struct {
	QuoteRequest
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
	DeliveryAddress string `json:"deliveryAddress" validate:"required,max=500"`
	Notes           string `json:"notes" validate:"max=500"`
}

// Placement is the result of placing an order.
type Placement struct {
	Order       View          `json:"order"`
	Payment     PaymentView   `json:"payment"`
	Quote       pricing.Quote `json:"quote"`
	RedirectURL string        `json:"redirectUrl,omitempty"`
}

// Quote prices a request for userID without persisting anything.
func (s *Service) Quote(ctx context.Context, userID string, req QuoteRequest) (pricing.Quote, error) {
	if s == nil || s.Pricing == nil {
		return pricing.Quote{}, errors.New("order service not configured")
	}
	return s.Pricing.Quote(ctx, pricing.QuoteInput{
		Lines:      req.Items,
		CouponCode: req.CouponCode,
		UserID:     userID,
		Area:       req.area(),
		At:         s.now(),
	})
}

// Place prices req, persists the order with its lines and first payment
// attempt in one transaction, and signs a gateway redirect for online methods.
// Pricing and coupon rejections abort before anything is written.
func (s *Service) Place(ctx context.Context, userID string, req PlaceRequest, clientIP string) (Placement, error) {
	if s == nil || s.InTx == nil || s.Pricing == nil || s.Dispatcher == nil {
		return Placement{}, errors.New("order service not configured")
	}
	ctx, span := otel.Tracer("order.Service").Start(ctx, "OrderService.Place")
	defer span.End()
	methodLabel := "unknown"
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("order.payment_method", methodLabel), attribute.String("order.place.result", result))
		if obs.OrderPlacedTotal != nil {
			obs.OrderPlacedTotal.WithLabelValues(methodLabel, result).Inc()
		}
	}()

	uid, err := store.ParseUUID(userID)
	if err != nil {
		result = "invalid"
		return Placement{}, ErrInvalidUser
	}
	method, err := payment.ParseMethod(req.PaymentMethod)
	if err != nil {
		result = "invalid"
		return Placement{}, err
	}
	methodLabel = strings.ToLower(string(method.Stored))

	quote, err := s.Quote(ctx, userID, req.QuoteRequest)
	if err != nil {
		result = "rejected"
		return Placement{}, err
	}

	var (
		created  store.Order
		dispatch payment.Dispatch
	)
	for attempt := 1; ; attempt++ {
		err = s.InTx(ctx, func(q Querier) error {
			o, err := q.CreateOrder(ctx, store.CreateOrderParams{
				OrderNumber:     NewOrderNumber(s.now()),
				UserID:          uid,
				TotalAmount:     quote.Subtotal,
				ShippingFee:     quote.ShippingFee,
				DiscountAmount:  quote.CouponDiscount,
				FinalAmount:     quote.FinalAmount,
				PaymentMethod:   method.Stored,
				CouponCode:      store.Text(quote.CouponCode),
				Notes:           store.Text(req.Notes),
				DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
				DeliveryArea:    store.Text(req.area().String()),
			})
			if err != nil {
				return err
			}
			if err := createLines(ctx, q, o.ID, quote.Lines); err != nil {
				return err
			}
			d, err := s.Dispatcher.Dispatch(ctx, q, o, req.PaymentMethod)
			if err != nil {
				return err
			}
			created, dispatch = o, d
			return nil
		})
		if err == nil || !store.IsUniqueViolation(err, orderNumberConstraint) || attempt == orderNumberAttempts {
			break
		}
		s.Logger.Warn().Int("attempt", attempt).Msg("order number collision, retrying")
	}
	if err != nil {
		return Placement{}, fmt.Errorf("place order: %w", err)
	}
	result = "success"

	log := s.Logger.With().Str("order_id", store.UUIDString(created.ID)).Str("order_number", created.OrderNumber).Logger()
	log.Info().Str("final_amount", created.FinalAmount.String()).Str("payment_method", string(created.PaymentMethod)).Msg("order placed")
	s.emit(ctx, log, events.TopicOrderPlaced, created.ID, map[string]any{
		"orderNumber":   created.OrderNumber,
		"userId":        userID,
		"finalAmount":   created.FinalAmount,
		"paymentMethod": created.PaymentMethod,
	})

	out := Placement{Order: toView(created), Payment: toPaymentView(dispatch.Payment), Quote: quote}
	if dispatch.RedirectRequired && s.Payments != nil {
		redirect, err := s.Payments.CreateRedirect(ctx, created.ID, clientIP)
		if err != nil {
			// The order stands; the client can request a new redirect.
			log.Error().Err(err).Msg("create payment redirect after placement")
		} else {
			out.RedirectURL = redirect.URL
		}
	}
	return out, nil
}

// Get returns userID's order with its lines and payment attempts.
func (s *Service) Get(ctx context.Context, userID, orderID string) (View, error) {
	if s == nil || s.Q == nil {
		return View{}, errors.New("order service not configured")
	}
	o, err := s.load(ctx, s.Q, orderID, false)
	if err != nil {
		return View{}, err
	}
	if !ownedBy(o, userID) {
		return View{}, ErrOrderNotFound
	}
	return s.detail(ctx, o)
}

// GetAny returns an order regardless of owner. Admin only.
func (s *Service) GetAny(ctx context.Context, orderID string) (View, error) {
	if s == nil || s.Q == nil {
		return View{}, errors.New("order service not configured")
	}
	o, err := s.load(ctx, s.Q, orderID, false)
	if err != nil {
		return View{}, err
	}
	return s.detail(ctx, o)
}

// List returns a page of userID's orders, newest first, and the total count.
func (s *Service) List(ctx context.Context, userID string, page, perPage int) ([]View, int64, error) {
	if s == nil || s.Q == nil {
		return nil, 0, errors.New("order service not configured")
	}
	uid, err := store.ParseUUID(userID)
	if err != nil {
		return nil, 0, ErrInvalidUser
	}
	total, err := s.Q.CountOrdersForUser(ctx, uid)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.Q.ListOrdersForUser(ctx, store.ListOrdersForUserParams{
		UserID: uid,
		Limit:  int32(perPage),
		Offset: int32((page - 1) * perPage),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	out := make([]View, 0, len(rows))
	for _, o := range rows {
		out = append(out, toView(o))
	}
	return out, total, nil
}

// CancelRequest identifies an order to cancel and who asks for it.
type CancelRequest struct {
	OrderID string
	UserID  string
	Admin   bool
	Reason  string
}

// Cancel moves a PENDING or CONFIRMED order to CANCELLED and records the
// reason. A pending cash payment is failed with it; gateway attempts stay
// open so a late callback is still recorded.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (View, error) {
	if s == nil || s.InTx == nil {
		return View{}, errors.New("order service not configured")
	}
	reason := strings.TrimSpace(req.Reason)
	var (
		from    store.OrderStatus
		updated store.Order
	)
	err := s.InTx(ctx, func(q Querier) error {
		o, err := s.load(ctx, q, req.OrderID, true)
		if err != nil {
			return err
		}
		if !req.Admin && !ownedBy(o, req.UserID) {
			return ErrOrderNotFound
		}
		if err := state.Check(o.Status, store.OrderStatusCANCELLED); err != nil {
			return err
		}
		from = o.Status
		updated, err = q.UpdateOrderStatus(ctx, store.UpdateOrderStatusParams{
			ID:           o.ID,
			Status:       store.OrderStatusCANCELLED,
			CancelReason: store.Text(reason),
		})
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if o.PaymentMethod != store.PaymentMethodCASH {
			return nil
		}
		failed, err := settlePendingCash(ctx, q, o.ID, store.PaymentStatusFAILED, "order cancelled")
		if err != nil {
			return err
		}
		if failed && updated.PaymentStatus == store.PaymentStatusPENDING {
			if err := q.UpdateOrderPaymentStatus(ctx, store.UpdateOrderPaymentStatusParams{ID: o.ID, PaymentStatus: store.PaymentStatusFAILED}); err != nil {
				return fmt.Errorf("mirror order payment status: %w", err)
			}
			updated.PaymentStatus = store.PaymentStatusFAILED
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	log := s.Logger.With().Str("order_id", store.UUIDString(updated.ID)).Str("order_number", updated.OrderNumber).Logger()
	log.Info().Str("from", string(from)).Bool("admin", req.Admin).Str("reason", reason).Msg("order cancelled")
	if updated.PaymentStatus == store.PaymentStatusCOMPLETED {
		log.Warn().Msg("cancelled order was already paid; refund required")
	}
	s.emit(ctx, log, events.TopicOrderCancelled, updated.ID, map[string]any{
		"orderNumber": updated.OrderNumber,
		"from":        from,
		"reason":      reason,
		"byAdmin":     req.Admin,
	})
	return toView(updated), nil
}

// Transition advances an order one step. Online orders are confirmed by
// settlement only. Delivering a cash order completes its payment and
// redeems its coupon.
func (s *Service) Transition(ctx context.Context, orderID string, to store.OrderStatus) (View, error) {
	if s == nil || s.InTx == nil {
		return View{}, errors.New("order service not configured")
	}
	if !state.Valid(to) {
		return View{}, fmt.Errorf("%w: unknown status %q", state.ErrInvalidTransition, to)
	}
	if to == store.OrderStatusCANCELLED {
		return s.Cancel(ctx, CancelRequest{OrderID: orderID, Admin: true})
	}
	var (
		from      store.OrderStatus
		updated   store.Order
		cashPaid  bool
		exhausted string
	)
	err := s.InTx(ctx, func(q Querier) error {
		o, err := s.load(ctx, q, orderID, true)
		if err != nil {
			return err
		}
		if err := state.Check(o.Status, to); err != nil {
			return err
		}
		online := o.PaymentMethod != store.PaymentMethodCASH
		if online && to == store.OrderStatusCONFIRMED && o.PaymentStatus != store.PaymentStatusCOMPLETED {
			return ErrAwaitingPayment
		}
		from = o.Status
		updated, err = q.UpdateOrderStatus(ctx, store.UpdateOrderStatusParams{ID: o.ID, Status: to})
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if online || to != store.OrderStatusDONE {
			return nil
		}
		cashPaid, err = settlePendingCash(ctx, q, o.ID, store.PaymentStatusCOMPLETED, "collected on delivery")
		if err != nil {
			return err
		}
		if updated.PaymentStatus != store.PaymentStatusCOMPLETED {
			if err := q.UpdateOrderPaymentStatus(ctx, store.UpdateOrderPaymentStatusParams{ID: o.ID, PaymentStatus: store.PaymentStatusCOMPLETED}); err != nil {
				return fmt.Errorf("mirror order payment status: %w", err)
			}
			updated.PaymentStatus = store.PaymentStatusCOMPLETED
		}
		if s.Coupons != nil && updated.CouponCode.Valid {
			_, err := s.Coupons.Redeem(ctx, q, updated.CouponCode.String, updated.ID, updated.UserID, updated.DiscountAmount)
			if errors.Is(err, coupon.ErrCouponUsageExhausted) {
				exhausted = updated.CouponCode.String
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	log := s.Logger.With().Str("order_id", store.UUIDString(updated.ID)).Str("order_number", updated.OrderNumber).Logger()
	log.Info().Str("from", string(from)).Str("to", string(to)).Msg("order status changed")
	s.emit(ctx, log, events.TopicOrderStatusChanged, updated.ID, map[string]any{
		"orderNumber": updated.OrderNumber,
		"from":        from,
		"to":          to,
	})
	if cashPaid {
		s.emit(ctx, log, events.TopicPaymentCompleted, updated.ID, map[string]any{
			"orderNumber": updated.OrderNumber,
			"method":      updated.PaymentMethod,
			"amount":      updated.FinalAmount,
		})
	}
	if exhausted != "" {
		log.Warn().Str("coupon", exhausted).Msg("coupon usage limit reached at delivery; discount honoured")
		s.emit(ctx, log, events.TopicCouponExhausted, updated.ID, map[string]any{"orderNumber": updated.OrderNumber, "code": exhausted})
	}
	return toView(updated), nil
}

// NewOrderNumber returns an identifier of the form ORD-YYYYMMDD-XXXXXXXX.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix
}

func createLines(ctx context.Context, q Querier, orderID pgtype.UUID, lines []pricing.OrderLine) error {
	for i, l := range lines {
		productID, err := store.ParseUUID(l.ProductID)
		if err != nil {
			return fmt.Errorf("%w: product %s", pricing.ErrInvalidReference, l.ProductID)
		}
		params := store.CreateOrderItemParams{
			OrderID:     orderID,
			ProductID:   productID,
			ProductName: l.Name,
			Quantity:    int32(l.Quantity),
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
			Position:    int32(i),
		}
		if l.EffectiveSalePrice != nil {
			params.SalePrice = money.Some(*l.EffectiveSalePrice)
		}
		item, err := q.CreateOrderItem(ctx, params)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
		for j, opt := range l.SelectedOptions {
			optionID, err := store.ParseUUID(opt.OptionID)
			if err != nil {
				return fmt.Errorf("%w: option %s", pricing.ErrInvalidReference, opt.OptionID)
			}
			if err := q.CreateOrderItemOption(ctx, store.CreateOrderItemOptionParams{
				OrderItemID: item.ID,
				OptionID:    optionID,
				Name:        opt.Name,
				OptionType:  opt.Type,
				Surcharge:   opt.Surcharge,
				Position:    int32(j),
			}); err != nil {
				return fmt.Errorf("create order item option: %w", err)
			}
		}
	}
	return nil
}

// settlePendingCash moves the order's pending cash payments to status and
// reports whether any was changed.
func settlePendingCash(ctx context.Context, q Querier, orderID pgtype.UUID, status store.PaymentStatus, note string) (bool, error) {
	payments, err := q.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("list payments: %w", err)
	}
	changed := false
	for _, p := range payments {
		if p.Method != store.PaymentMethodCASH || p.Status != store.PaymentStatusPENDING {
			continue
		}
		if _, err := q.SettlePayment(ctx, store.SettlePaymentParams{ID: p.ID, Status: status, Notes: store.Text(note)}); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return false, fmt.Errorf("settle cash payment: %w", err)
		}
		changed = true
	}
	return changed, nil
}

func (s *Service) load(ctx context.Context, q Querier, orderID string, forUpdate bool) (store.Order, error) {
	id, err := store.ParseUUID(orderID)
	if err != nil {
		return store.Order{}, ErrOrderNotFound
	}
	var o store.Order
	if forUpdate {
		o, err = q.GetOrderByIDForUpdate(ctx, id)
	} else {
		o, err = q.GetOrderByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Order{}, ErrOrderNotFound
		}
		return store.Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (s *Service) detail(ctx context.Context, o store.Order) (View, error) {
	items, err := s.Q.ListOrderItems(ctx, o.ID)
	if err != nil {
		return View{}, fmt.Errorf("list order items: %w", err)
	}
	options, err := s.Q.ListOrderItemOptions(ctx, o.ID)
	if err != nil {
		return View{}, fmt.Errorf("list order item options: %w", err)
	}
	payments, err := s.Q.ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		return View{}, fmt.Errorf("list payments: %w", err)
	}
	v := toView(o)
	v.Items = toItemViews(items, options)
	v.Payments = make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		v.Payments = append(v.Payments, toPaymentView(p))
	}
	return v, nil
}

func (s *Service) emit(ctx context.Context, log zerolog.Logger, topic string, id pgtype.UUID, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, id, payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("emit domain event")
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func ownedBy(o store.Order, userID string) bool {
	uid, err := store.ParseUUID(userID)
	return err == nil && uid == o.UserID
}
