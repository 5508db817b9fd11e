package payment

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

	"github.com/noah-isme/backend-food/internal/lock"
	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/store"
)

// Querier captures the database methods needed to sign a gateway attempt.
type Querier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (store.Payment, error)
	GetUnsignedPendingPayment(ctx context.Context, orderID pgtype.UUID) (store.Payment, error)
	SetPaymentTransactionRef(ctx context.Context, arg store.SetPaymentTransactionRefParams) (store.Payment, error)
}

// Locker serialises work on a key; lock.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Redirect is a signed gateway URL for one payment attempt.
type Redirect struct {
	URL            string    `json:"redirectUrl"`
	TransactionRef string    `json:"transactionRef"`
	Provider       string    `json:"provider"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Service creates signed gateway redirects.
type Service struct {
	InTx       func(ctx context.Context, fn func(Querier) error) error
	Providers  Registry
	Locker     Locker
	LockTTL    time.Duration
	SessionTTL time.Duration
	Now        func() time.Time
	Logger     zerolog.Logger
}

// CreateRedirect signs a new gateway attempt for an online order. Each call
// yields a fresh transaction reference; an attempt recorded at placement that
// has not been signed yet is reused, otherwise a new attempt row is inserted.
func (s *Service) CreateRedirect(ctx context.Context, orderID pgtype.UUID, clientIP string) (Redirect, error) {
	if s == nil || s.InTx == nil {
		return Redirect{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateRedirect")
	defer span.End()
	provider := "unknown"
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.provider", provider), attribute.String("payment.redirect.result", result))
		if obs.PaymentRedirectTotal != nil {
			obs.PaymentRedirectTotal.WithLabelValues(provider, result).Inc()
		}
	}()

	var out Redirect
	run := func(ctx context.Context) error {
		return s.InTx(ctx, func(q Querier) error {
			order, err := q.GetOrderByID(ctx, orderID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrOrderNotFound
				}
				return fmt.Errorf("load order: %w", err)
			}
			if err := Payable(order); err != nil {
				return err
			}
			m, err := ParseMethod(string(order.PaymentMethod))
			if err != nil {
				return err
			}
			if !m.Online() {
				return ErrCashOrder
			}
			provider = m.Provider
			gw, ok := s.Providers.Get(m.Provider)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownProvider, m.Provider)
			}

			attempt, err := q.GetUnsignedPendingPayment(ctx, order.ID)
			if errors.Is(err, pgx.ErrNoRows) {
				attempt, err = q.CreatePayment(ctx, store.CreatePaymentParams{
					OrderID:  order.ID,
					Method:   m.Stored,
					Provider: store.Text(m.Provider),
					Amount:   order.FinalAmount,
				})
			}
			if err != nil {
				return fmt.Errorf("prepare payment attempt: %w", err)
			}
			ref := NewTransactionRef()
			if _, err := q.SetPaymentTransactionRef(ctx, store.SetPaymentTransactionRefParams{
				ID:             attempt.ID,
				Provider:       store.Text(m.Provider),
				TransactionRef: ref,
			}); err != nil {
				return fmt.Errorf("store transaction ref: %w", err)
			}

			now := s.now()
			expires := now.Add(s.sessionTTL())
			url, err := gw.BuildRedirect(RedirectRequest{
				TransactionRef: ref,
				Amount:         order.FinalAmount,
				OrderInfo:      "Thanh toan don hang " + order.OrderNumber,
				ClientIP:       clientIP,
				CreatedAt:      now,
				ExpiresAt:      expires,
			})
			if err != nil {
				return fmt.Errorf("build redirect: %w", err)
			}
			out = Redirect{URL: url, TransactionRef: ref, Provider: gw.Name(), ExpiresAt: expires}
			return nil
		})
	}

	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.OrderKey(store.UUIDString(orderID)), s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotPayable), errors.Is(err, ErrCashOrder):
			result = "not_payable"
		case errors.Is(err, ErrOrderNotFound):
			result = "not_found"
		}
		return Redirect{}, err
	}
	result = "success"
	s.Logger.Info().
		Str("order_id", store.UUIDString(orderID)).
		Str("txn_ref", out.TransactionRef).
		Str("provider", out.Provider).
		Str("client_ip", clientIP).
		Msg("payment redirect created")
	return out, nil
}

// NewTransactionRef returns a fresh 32 character hex reference.
func NewTransactionRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return 15 * time.Minute
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 10 * time.Second
}

func normaliseLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
