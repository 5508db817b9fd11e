package order_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/common"
	"github.com/noah-isme/backend-food/internal/coupon"
	"github.com/noah-isme/backend-food/internal/order"
	"github.com/noah-isme/backend-food/internal/order/state"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/pricing"
	"github.com/noah-isme/backend-food/internal/store"
)

func withRoute(r *http.Request, userID, orderID string) *http.Request {
	rctx := chi.NewRouteContext()
	if orderID != "" {
		rctx.URLParams.Add("orderId", orderID)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = common.WithUserID(ctx, userID)
	}
	return r.WithContext(ctx)
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHandlerPlace(t *testing.T) {
	f := newFixture()
	h := &order.Handler{Svc: f.svc, Payments: f.redirect, Validator: validator.New()}

	body := `{"items":[{"productId":"` + productA + `","quantity":2,"optionIds":["` + optionX + `"]}],
		"paymentMethod":"CASH","deliveryAddress":"12 Nguyen Hue","province":"Ho Chi Minh"}`
	rr := httptest.NewRecorder()
	h.Place(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), f.userID, ""))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Data struct {
			Order struct {
				OrderNumber   string `json:"orderNumber"`
				PaymentStatus string `json:"paymentStatus"`
				FinalAmount   string `json:"finalAmount"`
			} `json:"order"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.Data.Order.OrderNumber, "ORD-20260315-"))
	require.Equal(t, "PENDING", resp.Data.Order.PaymentStatus)
	require.Equal(t, "165000", resp.Data.Order.FinalAmount)
}

func TestHandlerPlaceValidation(t *testing.T) {
	f := newFixture()
	h := &order.Handler{Svc: f.svc, Validator: validator.New()}

	cases := []struct {
		name   string
		userID string
		body   string
		status int
		code   string
	}{
		{"anonymous", "", `{}`, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown field", f.userID, `{"items":[],"total":1}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"no items", f.userID, `{"items":[],"paymentMethod":"CASH","deliveryAddress":"x"}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"zero quantity", f.userID, `{"items":[{"productId":"` + productA + `","quantity":0}],"paymentMethod":"CASH","deliveryAddress":"x"}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unsupported method", f.userID, `{"items":[{"productId":"` + productA + `","quantity":1}],"paymentMethod":"BITCOIN","deliveryAddress":"x"}`, http.StatusBadRequest, "UNSUPPORTED_PAYMENT_METHOD"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.Place(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tc.body)), tc.userID, ""))
		require.Equal(t, tc.status, rr.Code, tc.name)
		require.Equal(t, tc.code, errorCode(t, rr), tc.name)
	}
	require.Zero(t, f.q.createdOrders)
}

func TestHandlerListSetsTotalCount(t *testing.T) {
	f := newFixture()
	for i := 0; i < 3; i++ {
		f.q.seedOrder(f.uid(), store.PaymentMethodCASH, store.OrderStatusPENDING)
	}
	h := &order.Handler{Svc: f.svc}

	rr := httptest.NewRecorder()
	h.List(rr, withRoute(httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=1&limit=2", nil), f.userID, ""))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "3", rr.Header().Get("X-Total-Count"))

	var resp struct {
		Data       []map[string]any  `json:"data"`
		Pagination common.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, 3, resp.Pagination.TotalItems)
	require.Equal(t, 2, resp.Pagination.TotalPages)
}

func TestHandlerGetAndCancel(t *testing.T) {
	f := newFixture()
	o := f.q.seedOrder(f.uid(), store.PaymentMethodCASH, store.OrderStatusPENDING)
	id := store.UUIDString(o.ID)
	h := &order.Handler{Svc: f.svc, Validator: validator.New()}

	rr := httptest.NewRecorder()
	h.Get(rr, withRoute(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil), uuid.NewString(), id))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "ORDER_NOT_FOUND", errorCode(t, rr))

	rr = httptest.NewRecorder()
	h.Cancel(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+id+"/cancel", strings.NewReader(`{"reason":"too slow"}`)), f.userID, id))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, store.OrderStatusCANCELLED, o.Status)

	rr = httptest.NewRecorder()
	h.Cancel(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+id+"/cancel", strings.NewReader(`{"reason":"again"}`)), f.userID, id))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "NOT_CANCELLABLE", errorCode(t, rr))
}

func TestHandlerRedirectChecksOwnership(t *testing.T) {
	f := newFixture()
	o := f.q.seedOrder(f.uid(), store.PaymentMethodCARD, store.OrderStatusPENDING)
	id := store.UUIDString(o.ID)
	h := &order.Handler{Svc: f.svc, Payments: f.redirect}

	rr := httptest.NewRecorder()
	h.Redirect(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+id+"/payment", nil), uuid.NewString(), id))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Zero(t, f.redirect.calls)

	rr = httptest.NewRecorder()
	h.Redirect(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+id+"/payment", nil), f.userID, id))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "redirectUrl")

	f.redirect.err = payment.ErrCashOrder
	rr = httptest.NewRecorder()
	h.Redirect(rr, withRoute(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+id+"/payment", nil), f.userID, id))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "ORDER_NOT_PAYABLE", errorCode(t, rr))
}

func TestAdminPatchStatus(t *testing.T) {
	f := newFixture()
	o := f.q.seedOrder(f.uid(), store.PaymentMethodCARD, store.OrderStatusPENDING)
	id := store.UUIDString(o.ID)
	h := &order.AdminHandler{Svc: f.svc, Validator: validator.New()}

	patch := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.PatchStatus(rr, withRoute(httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/"+id+"/status", strings.NewReader(body)), "", id))
		return rr
	}

	rr := patch(`{"status":"CONFIRMED"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "AWAITING_PAYMENT", errorCode(t, rr))

	rr = patch(`{"status":"PENDING"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = patch(`{"status":"DONE"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "INVALID_TRANSITION", errorCode(t, rr))

	rr = patch(`{"status":"CANCELLED","reason":"kitchen closed"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "kitchen closed", o.CancelReason.String)
}

func TestAsAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{pricing.ErrInvalidReference, http.StatusUnprocessableEntity, "INVALID_LINE"},
		{pricing.ErrEmptyOrder, http.StatusUnprocessableEntity, "INVALID_LINE"},
		{state.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{order.ErrAwaitingPayment, http.StatusConflict, "AWAITING_PAYMENT"},
		{coupon.ErrCouponExpired, http.StatusUnprocessableEntity, "COUPON_EXPIRED"},
		{payment.ErrUnsupportedPaymentMethod, http.StatusBadRequest, "UNSUPPORTED_PAYMENT_METHOD"},
		{payment.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	}
	for _, tc := range cases {
		var appErr *common.AppError
		require.ErrorAs(t, order.AsAppError(tc.err), &appErr, tc.code)
		require.Equal(t, tc.status, appErr.HTTPStatus, tc.code)
		require.Equal(t, tc.code, appErr.Code)
	}
}
