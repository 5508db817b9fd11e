package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/store"
)

func TestDispatchCashLeavesPaymentPending(t *testing.T) {
	st := newMemStore()
	order := st.addOrder(store.PaymentMethodCASH, 120_000, "")

	d, err := payment.Dispatcher{}.Dispatch(context.Background(), st, *order, "cash")
	require.NoError(t, err)
	require.False(t, d.RedirectRequired)
	require.Equal(t, payment.KindCash, d.Method.Kind)
	require.Equal(t, store.PaymentStatusPENDING, d.Payment.Status)
	require.Equal(t, store.PaymentMethodCASH, d.Payment.Method)
	require.True(t, d.Payment.Amount.Equal(order.FinalAmount))
	require.False(t, d.Payment.TransactionRef.Valid)
	require.False(t, d.Payment.Provider.Valid)
	require.Equal(t, store.PaymentStatusPENDING, order.PaymentStatus)
	require.Equal(t, store.OrderStatusPENDING, order.Status)
}

func TestDispatchOnlineNeedsRedirect(t *testing.T) {
	for _, method := range []string{"CARD", "BANK_TRANSFER", "e_wallet"} {
		st := newMemStore()
		order := st.addOrder(store.PaymentMethodCARD, 99_000, "")

		d, err := payment.Dispatcher{}.Dispatch(context.Background(), st, *order, method)
		require.NoError(t, err, method)
		require.True(t, d.RedirectRequired)
		require.Equal(t, payment.ProviderVNPay, d.Method.Provider)
		require.Equal(t, payment.ProviderVNPay, d.Payment.Provider.String)
		require.False(t, d.Payment.TransactionRef.Valid, "signed later")
	}
}

func TestDispatchRejects(t *testing.T) {
	st := newMemStore()
	order := st.addOrder(store.PaymentMethodCASH, 10_000, "")

	_, err := payment.Dispatcher{}.Dispatch(context.Background(), st, *order, "BITCOIN")
	require.ErrorIs(t, err, payment.ErrUnsupportedPaymentMethod)

	confirmed := *order
	confirmed.Status = store.OrderStatusCONFIRMED
	_, err = payment.Dispatcher{}.Dispatch(context.Background(), st, confirmed, "CASH")
	require.ErrorIs(t, err, payment.ErrOrderNotPayable)

	paid := *order
	paid.PaymentStatus = store.PaymentStatusCOMPLETED
	_, err = payment.Dispatcher{}.Dispatch(context.Background(), st, paid, "CASH")
	require.ErrorIs(t, err, payment.ErrOrderNotPayable)
	require.Empty(t, st.payments)
}

func TestParseMethod(t *testing.T) {
	m, err := payment.ParseMethod(" card ")
	require.NoError(t, err)
	require.True(t, m.Online())
	require.Equal(t, store.PaymentMethodCARD, m.Stored)

	_, err = payment.ParseMethod("")
	require.ErrorIs(t, err, payment.ErrUnsupportedPaymentMethod)
}
