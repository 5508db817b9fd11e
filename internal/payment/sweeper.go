package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-food/internal/events"
	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/store"
)

// TaskSweepStale is the periodic asynq task that expires abandoned gateway sessions.
const TaskSweepStale = "payment:sweep-stale"

const sessionExpiredNote = "session expired"

// SweepQuerier is the slice of the store used by the sweeper.
type SweepQuerier interface {
	ClaimStalePayments(ctx context.Context, arg store.ClaimStalePaymentsParams) ([]store.Payment, error)
	SettlePayment(ctx context.Context, arg store.SettlePaymentParams) (store.Payment, error)
	GetOrderByIDForUpdate(ctx context.Context, id pgtype.UUID) (store.Order, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg store.UpdateOrderPaymentStatusParams) error
	CountOpenPayments(ctx context.Context, arg store.CountOpenPaymentsParams) (int64, error)
}

// Sweeper fails gateway attempts whose callback never arrived.
type Sweeper struct {
	InTx   func(ctx context.Context, fn func(SweepQuerier) error) error
	Events EventEmitter
	Now    func() time.Time
	Logger zerolog.Logger
}

// ExpireStale marks up to batch signed attempts untouched for longer than
// olderThan as FAILED. Rows locked by a concurrent settlement are skipped.
func (s *Sweeper) ExpireStale(ctx context.Context, olderThan time.Duration, batch int32) (int, error) {
	if s == nil || s.InTx == nil {
		return 0, errors.New("payment sweeper not configured")
	}
	if batch <= 0 {
		batch = 100
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	var expired []store.Payment
	err := s.InTx(ctx, func(q SweepQuerier) error {
		stale, err := q.ClaimStalePayments(ctx, store.ClaimStalePaymentsParams{Before: now.Add(-olderThan), Limit: batch})
		if err != nil {
			return fmt.Errorf("claim stale payments: %w", err)
		}
		for _, p := range stale {
			settled, err := q.SettlePayment(ctx, store.SettlePaymentParams{
				ID:     p.ID,
				Status: store.PaymentStatusFAILED,
				Notes:  store.Text(sessionExpiredNote),
			})
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("expire payment: %w", err)
			}
			order, err := q.GetOrderByIDForUpdate(ctx, p.OrderID)
			if err != nil {
				return fmt.Errorf("load order: %w", err)
			}
			mirror, err := mirroredStatus(ctx, q, order, settled)
			if err != nil {
				return err
			}
			if mirror != "" {
				if err := q.UpdateOrderPaymentStatus(ctx, store.UpdateOrderPaymentStatusParams{ID: order.ID, PaymentStatus: mirror}); err != nil {
					return fmt.Errorf("mirror order payment status: %w", err)
				}
			}
			expired = append(expired, settled)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if obs.PaymentSweepExpiredTotal != nil {
		obs.PaymentSweepExpiredTotal.Add(float64(len(expired)))
	}
	for _, p := range expired {
		s.Logger.Info().
			Str("order_id", store.UUIDString(p.OrderID)).
			Str("txn_ref", p.TransactionRef.String).
			Msg("payment session expired")
		if s.Events == nil {
			continue
		}
		if _, err := s.Events.Emit(ctx, events.TopicPaymentExpired, p.OrderID, map[string]any{
			"transactionRef": p.TransactionRef.String,
			"amount":         p.Amount,
		}); err != nil {
			s.Logger.Error().Err(err).Str("topic", events.TopicPaymentExpired).Msg("emit domain event")
		}
	}
	return len(expired), nil
}

// SweepPayload parameterises one sweep run.
type SweepPayload struct {
	OlderThan time.Duration `json:"olderThan"`
	Batch     int32         `json:"batch"`
}

// NewSweepTask builds the periodic sweep task.
func NewSweepTask(olderThan time.Duration, batch int32) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{OlderThan: olderThan, Batch: batch})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSweepStale, body), nil
}

// SweepHandler runs sweep tasks in the worker.
type SweepHandler struct {
	Sweeper *Sweeper
	Logger  zerolog.Logger
}

func (h SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SweepPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode sweep task: %w: %w", err, asynq.SkipRetry)
	}
	if p.OlderThan <= 0 {
		return fmt.Errorf("sweep task without session ttl: %w", asynq.SkipRetry)
	}
	n, err := h.Sweeper.ExpireStale(ctx, p.OlderThan, p.Batch)
	if err != nil {
		return err
	}
	if n > 0 {
		h.Logger.Info().Int("expired", n).Msg("payment sweep finished")
	}
	return nil
}
