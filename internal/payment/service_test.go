package payment_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/lock"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/store"
)

func newRedirectService(t *testing.T, st *memStore) *payment.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &payment.Service{
		InTx:       st.inTxRedirect,
		Providers:  payment.NewRegistry(testGateway),
		Locker:     lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		SessionTTL: 15 * time.Minute,
		Now:        func() time.Time { return st.clock },
	}
}

func TestCreateRedirectSignsPlacementAttempt(t *testing.T) {
	st := newMemStore()
	order := st.addOrder(store.PaymentMethodCARD, 155_000, "")
	_, err := payment.Dispatcher{}.Dispatch(context.Background(), st, *order, "CARD")
	require.NoError(t, err)
	svc := newRedirectService(t, st)

	r, err := svc.CreateRedirect(context.Background(), order.ID, "203.0.113.7")
	require.NoError(t, err)
	require.Len(t, r.TransactionRef, 32)
	require.Equal(t, st.clock.Add(15*time.Minute), r.ExpiresAt)
	require.Len(t, st.payments, 1, "placement attempt reused")
	require.Equal(t, r.TransactionRef, st.payments[0].TransactionRef.String)

	parsed, err := url.Parse(r.URL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, r.TransactionRef, q.Get("vnp_TxnRef"))
	require.Equal(t, "15500000", q.Get("vnp_Amount"))
	_, err = testGateway.VerifyCallback(q)
	require.NoError(t, err)
}

func TestCreateRedirectRetryUsesFreshReference(t *testing.T) {
	st := newMemStore()
	order := st.addOrder(store.PaymentMethodBANKTRANSFER, 70_000, "")
	svc := newRedirectService(t, st)

	first, err := svc.CreateRedirect(context.Background(), order.ID, "")
	require.NoError(t, err)
	second, err := svc.CreateRedirect(context.Background(), order.ID, "")
	require.NoError(t, err)
	require.NotEqual(t, first.TransactionRef, second.TransactionRef)
	require.Len(t, st.paymentsFor(order.ID), 2)
}

func TestCreateRedirectRejects(t *testing.T) {
	st := newMemStore()
	svc := newRedirectService(t, st)

	cash := st.addOrder(store.PaymentMethodCASH, 50_000, "")
	_, err := svc.CreateRedirect(context.Background(), cash.ID, "")
	require.ErrorIs(t, err, payment.ErrCashOrder)

	paid := st.addOrder(store.PaymentMethodCARD, 50_000, "")
	paid.PaymentStatus = store.PaymentStatusCOMPLETED
	_, err = svc.CreateRedirect(context.Background(), paid.ID, "")
	require.ErrorIs(t, err, payment.ErrOrderNotPayable)

	missing := st.addOrder(store.PaymentMethodCARD, 50_000, "")
	delete(st.orders, missing.ID)
	_, err = svc.CreateRedirect(context.Background(), missing.ID, "")
	require.ErrorIs(t, err, payment.ErrOrderNotFound)
	require.Empty(t, st.payments)
}
