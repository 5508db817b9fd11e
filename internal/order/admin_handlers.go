package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-food/internal/common"
	"github.com/noah-isme/backend-food/internal/store"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc       *Service
	Validator *validator.Validate
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED DELIVERING DONE CANCELLED"`
	Reason string `json:"reason" validate:"max=500"`
}

type adminCancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// Get returns any order with its lines and payments.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	v, err := h.Svc.GetAny(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// PatchStatus advances the order one step through the state machine.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req patchStatusRequest
	if err := common.DecodeJSON(r, h.Validator, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	orderID := chi.URLParam(r, "orderId")
	var (
		v   View
		err error
	)
	if target := store.OrderStatus(req.Status); target == store.OrderStatusCANCELLED {
		v, err = h.Svc.Cancel(r.Context(), CancelRequest{OrderID: orderID, Admin: true, Reason: req.Reason})
	} else {
		v, err = h.Svc.Transition(r.Context(), orderID, target)
	}
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// Cancel cancels any order with a reason.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req adminCancelRequest
	if err := common.DecodeJSON(r, h.Validator, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	v, err := h.Svc.Cancel(r.Context(), CancelRequest{OrderID: chi.URLParam(r, "orderId"), Admin: true, Reason: req.Reason})
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}
