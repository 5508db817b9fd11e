package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

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
	"github.com/noah-isme/backend-food/internal/store"
)

// SettlementQuerier is the slice of the store touched while settling a callback.
type SettlementQuerier interface {
	coupon.Querier
	GetPaymentByTransactionRefForUpdate(ctx context.Context, ref string) (store.Payment, error)
	GetOrderByIDForUpdate(ctx context.Context, id pgtype.UUID) (store.Order, error)
	SettlePayment(ctx context.Context, arg store.SettlePaymentParams) (store.Payment, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg store.UpdateOrderPaymentStatusParams) error
	UpdateOrderStatus(ctx context.Context, arg store.UpdateOrderStatusParams) (store.Order, error)
	CountOpenPayments(ctx context.Context, arg store.CountOpenPaymentsParams) (int64, error)
	RecordLatePayment(ctx context.Context, arg store.RecordLatePaymentParams) (store.Payment, error)
}

// Reasons a paid attempt has to be refunded instead of applied to its order.
const (
	RefundSessionExpired = "session_expired"
	RefundAlreadyPaid    = "already_paid"
	RefundOrderCancelled = "order_cancelled"
)

const latePaymentNote = "paid after session expired; refund required"

// CouponRedeemer records coupon usage inside the settlement transaction.
type CouponRedeemer interface {
	Redeem(ctx context.Context, q coupon.Querier, code string, orderID, userID pgtype.UUID, discount money.Money) (coupon.Redemption, error)
}

// EventEmitter publishes domain events after commit; *events.Bus satisfies it.
type EventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID pgtype.UUID, payload any) (store.DomainEvent, error)
}

// Callback is one inbound gateway notification.
type Callback struct {
	Provider string
	Channel  string
	Params   url.Values
	ClientIP string
}

// Outcome describes the settled state of the payment named by a callback.
type Outcome struct {
	OrderID        string              `json:"orderId"`
	OrderNumber    string              `json:"orderNumber"`
	TransactionRef string              `json:"transactionRef"`
	Amount         money.Money         `json:"amount"`
	PaymentStatus  store.PaymentStatus `json:"paymentStatus"`
	OrderStatus    store.OrderStatus   `json:"orderStatus"`
	ResponseCode   string              `json:"responseCode,omitempty"`
	Success        bool                `json:"success"`
	Duplicate      bool                `json:"duplicate"`
	RefundReason   string              `json:"refundReason,omitempty"`
}

// Settler verifies gateway callbacks and applies them exactly once.
type Settler struct {
	InTx      func(ctx context.Context, fn func(SettlementQuerier) error) error
	Providers Registry
	Coupons   CouponRedeemer
	Events    EventEmitter
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Settle verifies cb and, when the payment is still pending, records the
// gateway verdict together with its order side effects in one transaction.
// Replays of a settled payment return the recorded outcome with Duplicate set.
// Captured money that cannot be applied to its order is reported through
// RefundReason instead.
func (s *Settler) Settle(ctx context.Context, cb Callback) (Outcome, error) {
	if s == nil || s.InTx == nil {
		return Outcome{}, errors.New("settlement not configured")
	}
	started := s.now()
	ctx, span := otel.Tracer("payment.Settler").Start(ctx, "PaymentSettler.Settle")
	defer span.End()
	providerLabel := normaliseLabel(cb.Provider)
	channelLabel := normaliseLabel(cb.Channel)
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerLabel),
			attribute.String("payment.callback.channel", channelLabel),
			attribute.String("payment.callback.result", result),
		)
		if obs.PaymentCallbackTotal != nil {
			obs.PaymentCallbackTotal.WithLabelValues(providerLabel, channelLabel, result).Inc()
		}
		if obs.SettlementLatency != nil {
			obs.SettlementLatency.WithLabelValues(result).Observe(float64(s.now().Sub(started).Milliseconds()))
		}
	}()

	log := s.Logger.With().
		Str("provider", providerLabel).
		Str("channel", channelLabel).
		Str("txn_ref", cb.Params.Get("vnp_TxnRef")).
		Str("client_ip", cb.ClientIP).
		Logger()

	gw, ok := s.Providers.Get(cb.Provider)
	if !ok {
		result = "unknown_provider"
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownProvider, cb.Provider)
	}
	res, err := gw.VerifyCallback(cb.Params)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			result = "invalid_signature"
		case errors.Is(err, ErrAmountMismatch):
			result = "amount_mismatch"
		}
		log.Warn().Err(err).Msg("payment callback rejected")
		return Outcome{}, err
	}

	var (
		out       Outcome
		confirmed bool
		exhausted string
	)
	err = s.InTx(ctx, func(q SettlementQuerier) error {
		pay, err := q.GetPaymentByTransactionRefForUpdate(ctx, res.TransactionRef)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUnknownTransaction
			}
			return fmt.Errorf("load payment: %w", err)
		}
		if !pay.Amount.Equal(res.Amount) {
			return fmt.Errorf("%w: stored %s, callback %s", ErrAmountMismatch, pay.Amount, res.Amount)
		}
		order, err := q.GetOrderByIDForUpdate(ctx, pay.OrderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		out = outcomeOf(pay, order)
		payload, err := json.Marshal(res.Fields)
		if err != nil {
			return fmt.Errorf("encode provider payload: %w", err)
		}
		if pay.Status.Terminal() {
			if !res.Success || pay.Status != store.PaymentStatusFAILED || pay.Notes.String != sessionExpiredNote {
				out.Duplicate = true
				return nil
			}
			late, err := q.RecordLatePayment(ctx, store.RecordLatePaymentParams{
				ID:                   pay.ID,
				GatewayTransactionNo: store.Text(res.GatewayTransactionNo),
				ResponseCode:         store.Text(res.ResponseCode),
				Notes:                latePaymentNote,
				ProviderPayload:      payload,
			})
			if err != nil {
				return fmt.Errorf("record late payment: %w", err)
			}
			out = outcomeOf(late, order)
			out.RefundReason = RefundSessionExpired
			return nil
		}

		status := store.PaymentStatusFAILED
		notes := "gateway declined: " + res.ResponseCode
		if res.Success {
			status = store.PaymentStatusCOMPLETED
			notes = ""
		}
		paidBefore := order.PaymentStatus == store.PaymentStatusCOMPLETED
		settled, err := q.SettlePayment(ctx, store.SettlePaymentParams{
			ID:                   pay.ID,
			Status:               status,
			GatewayTransactionNo: store.Text(res.GatewayTransactionNo),
			ResponseCode:         store.Text(res.ResponseCode),
			Notes:                store.Text(notes),
			ProviderPayload:      payload,
		})
		if err != nil {
			return fmt.Errorf("settle payment: %w", err)
		}

		mirror, err := mirroredStatus(ctx, q, order, settled)
		if err != nil {
			return err
		}
		if mirror != "" {
			if err := q.UpdateOrderPaymentStatus(ctx, store.UpdateOrderPaymentStatusParams{ID: order.ID, PaymentStatus: mirror}); err != nil {
				return fmt.Errorf("mirror order payment status: %w", err)
			}
			order.PaymentStatus = mirror
		}

		refund := ""
		if settled.Status == store.PaymentStatusCOMPLETED {
			switch {
			case paidBefore:
				refund = RefundAlreadyPaid
			case order.Status == store.OrderStatusCANCELLED:
				refund = RefundOrderCancelled
			case order.Status == store.OrderStatusPENDING:
				if err := state.Check(order.Status, store.OrderStatusCONFIRMED); err != nil {
					return err
				}
				if order, err = q.UpdateOrderStatus(ctx, store.UpdateOrderStatusParams{ID: order.ID, Status: store.OrderStatusCONFIRMED}); err != nil {
					return fmt.Errorf("confirm order: %w", err)
				}
				confirmed = true
			}
			if refund == "" && s.Coupons != nil && order.CouponCode.Valid {
				_, err := s.Coupons.Redeem(ctx, q, order.CouponCode.String, order.ID, order.UserID, order.DiscountAmount)
				if errors.Is(err, coupon.ErrCouponUsageExhausted) {
					exhausted = order.CouponCode.String
				} else if err != nil {
					return err
				}
			}
		}
		out = outcomeOf(settled, order)
		out.RefundReason = refund
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownTransaction):
			result = "unknown_transaction"
			log.Warn().Bool("probe", true).Msg("payment callback for unknown transaction")
		case errors.Is(err, ErrAmountMismatch):
			result = "amount_mismatch"
			log.Warn().Err(err).Msg("payment callback amount mismatch")
		default:
			log.Error().Err(err).Msg("payment settlement failed")
		}
		return Outcome{}, err
	}

	if out.Duplicate {
		result = "duplicate"
		log.Info().Str("payment_status", string(out.PaymentStatus)).Msg("payment callback replayed")
		return out, nil
	}
	result = "failed"
	switch {
	case out.RefundReason != "":
		result = "refund_required"
	case out.Success:
		result = "success"
	}
	log.Info().
		Str("order_id", out.OrderID).
		Str("payment_status", string(out.PaymentStatus)).
		Str("order_status", string(out.OrderStatus)).
		Str("response_code", out.ResponseCode).
		Msg("payment settled")
	if out.RefundReason != "" {
		log.Warn().
			Str("order_id", out.OrderID).
			Str("gateway_txn_no", cb.Params.Get("vnp_TransactionNo")).
			Str("reason", out.RefundReason).
			Msg("payment captured but not applied; refund required")
	}
	if exhausted != "" {
		log.Warn().Str("order_id", out.OrderID).Str("coupon", exhausted).Msg("coupon usage limit reached at settlement; discount honoured")
	}
	s.publish(ctx, log, out, confirmed, exhausted)
	return out, nil
}

func (s *Settler) publish(ctx context.Context, log zerolog.Logger, out Outcome, confirmed bool, exhausted string) {
	if s.Events == nil {
		return
	}
	orderID, err := store.ParseUUID(out.OrderID)
	if err != nil {
		return
	}
	emit := func(topic string, payload any) {
		if _, err := s.Events.Emit(ctx, topic, orderID, payload); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("emit domain event")
		}
	}
	switch {
	case out.RefundReason != "":
		emit(events.TopicRefundRequired, out)
	case out.Success:
		emit(events.TopicPaymentCompleted, out)
	default:
		emit(events.TopicPaymentFailed, out)
	}
	if confirmed {
		emit(events.TopicOrderConfirmed, map[string]any{"orderNumber": out.OrderNumber, "status": out.OrderStatus})
	}
	if exhausted != "" {
		emit(events.TopicCouponExhausted, map[string]any{"orderNumber": out.OrderNumber, "code": exhausted})
	}
}

// mirroredStatus returns the order payment status implied by a freshly
// settled attempt, or "" when it should stay unchanged. A failed attempt
// does not mark the order failed while another attempt is still open or
// once the order has been paid.
func mirroredStatus(ctx context.Context, q interface {
	CountOpenPayments(ctx context.Context, arg store.CountOpenPaymentsParams) (int64, error)
}, order store.Order, settled store.Payment) (store.PaymentStatus, error) {
	switch settled.Status {
	case store.PaymentStatusCOMPLETED:
		if order.PaymentStatus == store.PaymentStatusCOMPLETED {
			return "", nil
		}
		return store.PaymentStatusCOMPLETED, nil
	case store.PaymentStatusFAILED:
		if order.PaymentStatus != store.PaymentStatusPENDING {
			return "", nil
		}
		open, err := q.CountOpenPayments(ctx, store.CountOpenPaymentsParams{OrderID: order.ID, ExcludeID: settled.ID})
		if err != nil {
			return "", fmt.Errorf("count open payments: %w", err)
		}
		if open > 0 {
			return "", nil
		}
		return store.PaymentStatusFAILED, nil
	}
	return "", nil
}

func outcomeOf(p store.Payment, o store.Order) Outcome {
	return Outcome{
		OrderID:        store.UUIDString(o.ID),
		OrderNumber:    o.OrderNumber,
		TransactionRef: p.TransactionRef.String,
		Amount:         p.Amount,
		PaymentStatus:  p.Status,
		OrderStatus:    o.Status,
		ResponseCode:   p.ResponseCode.String,
		Success:        p.Status == store.PaymentStatusCOMPLETED,
	}
}

// IPNResponse maps a settlement result onto the VNPay IPN acknowledgement.
func IPNResponse(out Outcome, err error) (code, message string) {
	switch {
	case err == nil && out.Duplicate:
		return "02", "Order already confirmed"
	case err == nil:
		return "00", "Confirm Success"
	case errors.Is(err, ErrInvalidSignature):
		return "97", "Invalid signature"
	case errors.Is(err, ErrUnknownTransaction):
		return "01", "Order not found"
	case errors.Is(err, ErrAmountMismatch):
		return "04", "Invalid amount"
	}
	return "99", "Unknown error"
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
