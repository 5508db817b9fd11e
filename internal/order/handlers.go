package order

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-food/internal/common"
	"github.com/noah-isme/backend-food/internal/coupon"
	"github.com/noah-isme/backend-food/internal/order/state"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/pricing"
	"github.com/noah-isme/backend-food/internal/store"
)

// Handler exposes the customer order endpoints.
type Handler struct {
	Svc       *Service
	Payments  Redirector
	Validator *validator.Validate
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// Quote previews the price of a cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req QuoteRequest
	if err := common.DecodeJSON(r, h.Validator, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	q, err := h.Svc.Quote(r.Context(), userID, req)
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

// Place creates an order from the submitted cart.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req PlaceRequest
	if err := common.DecodeJSON(r, h.Validator, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	placed, err := h.Svc.Place(r.Context(), userID, req, common.ClientIP(r))
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": placed})
}

// List returns the caller's orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	orders, total, err := h.Svc.List(r.Context(), userID, page, perPage)
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.NewPagination(page, perPage, total),
	})
}

// Get returns one of the caller's orders with lines and payments.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Get(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// Cancel cancels one of the caller's orders.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := common.DecodeJSON(r, h.Validator, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	v, err := h.Svc.Cancel(r.Context(), CancelRequest{OrderID: chi.URLParam(r, "orderId"), UserID: userID, Reason: req.Reason})
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// Redirect signs a new gateway attempt for one of the caller's online orders.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Payments == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Get(r.Context(), userID, chi.URLParam(r, "orderId"))
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	id, _ := store.ParseUUID(v.ID)
	redirect, err := h.Payments.CreateRedirect(r.Context(), id, common.ClientIP(r))
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": redirect})
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := common.UserID(r.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return userID, true
}

// AsAppError maps pricing, coupon, payment and lifecycle errors onto
// HTTP-facing errors.
func AsAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, payment.ErrOrderNotFound):
		return common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidUser):
		return common.NewAppError("UNAUTHORIZED", "authentication required", http.StatusUnauthorized, err)
	case errors.Is(err, pricing.ErrInvalidReference), errors.Is(err, pricing.ErrInvalidQuantity), errors.Is(err, pricing.ErrEmptyOrder):
		return common.NewAppError("INVALID_LINE", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, state.ErrInvalidTransition):
		return common.NewAppError("INVALID_TRANSITION", err.Error(), http.StatusConflict, err)
	case errors.Is(err, state.ErrNotCancellable):
		return common.NewAppError("NOT_CANCELLABLE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrAwaitingPayment):
		return common.NewAppError("AWAITING_PAYMENT", err.Error(), http.StatusConflict, err)
	}
	if mapped := coupon.AsAppError(err); common.IsAppError(mapped) {
		return mapped
	}
	return payment.AsAppError(err)
}
