package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/events"
	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/store"
)

func TestExpireStaleFailsAbandonedSessions(t *testing.T) {
	st := newMemStore()
	rec := &eventRecorder{}
	sweeper := &payment.Sweeper{InTx: st.inTxSweep, Events: rec, Now: func() time.Time { return st.clock }}

	abandoned := st.addOrder(store.PaymentMethodCARD, 90_000, "")
	stale := st.addSignedPayment(abandoned, "ref-stale", st.clock.Add(-time.Hour))

	retried := st.addOrder(store.PaymentMethodCARD, 40_000, "")
	st.addSignedPayment(retried, "ref-old", st.clock.Add(-time.Hour))
	st.addSignedPayment(retried, "ref-fresh", st.clock.Add(-time.Minute))

	n, err := sweeper.ExpireStale(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, store.PaymentStatusFAILED, stale.Status)
	require.Equal(t, "session expired", stale.Notes.String)
	require.Equal(t, store.PaymentStatusFAILED, abandoned.PaymentStatus)
	require.Equal(t, store.PaymentStatusPENDING, retried.PaymentStatus, "a fresh attempt is still open")
	require.Equal(t, []string{events.TopicPaymentExpired, events.TopicPaymentExpired}, rec.topics())

	n, err = sweeper.ExpireStale(context.Background(), 30*time.Minute, 10)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestExpireStaleGraceLeavesLateCallbackPayable(t *testing.T) {
	const ttl, grace = 15 * time.Minute, 10 * time.Minute
	st := newMemStore()
	rec := &eventRecorder{}
	sweeper := &payment.Sweeper{InTx: st.inTxSweep, Events: rec, Now: func() time.Time { return st.clock }}
	order := st.addOrder(store.PaymentMethodCARD, 90_000, "")
	pay := st.addSignedPayment(order, "ref-slow", st.clock.Add(-ttl-time.Second))

	n, err := sweeper.ExpireStale(context.Background(), ttl+grace, 10)
	require.NoError(t, err)
	require.Zero(t, n)

	out, err := newSettler(st, rec).Settle(context.Background(), vnpayCallback(signedCallback(testGateway, "ref-slow", money.New(90_000), "00")))
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Empty(t, out.RefundReason)
	require.Equal(t, store.PaymentStatusCOMPLETED, pay.Status)
	require.Equal(t, store.OrderStatusCONFIRMED, order.Status)
}

func TestExpireStaleHonoursBatch(t *testing.T) {
	st := newMemStore()
	sweeper := &payment.Sweeper{InTx: st.inTxSweep, Now: func() time.Time { return st.clock }}
	for i := 0; i < 3; i++ {
		o := st.addOrder(store.PaymentMethodCARD, 10_000, "")
		st.addSignedPayment(o, payment.NewTransactionRef(), st.clock.Add(-2*time.Hour))
	}
	n, err := sweeper.ExpireStale(context.Background(), time.Hour, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSweepHandler(t *testing.T) {
	st := newMemStore()
	o := st.addOrder(store.PaymentMethodCARD, 10_000, "")
	p := st.addSignedPayment(o, "ref-task", st.clock.Add(-2*time.Hour))
	h := payment.SweepHandler{Sweeper: &payment.Sweeper{InTx: st.inTxSweep, Now: func() time.Time { return st.clock }}}

	task, err := payment.NewSweepTask(time.Hour, 50)
	require.NoError(t, err)
	require.Equal(t, payment.TaskSweepStale, task.Type())
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, store.PaymentStatusFAILED, p.Status)

	err = h.ProcessTask(context.Background(), asynq.NewTask(payment.TaskSweepStale, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
