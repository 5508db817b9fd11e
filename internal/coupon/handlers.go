package coupon

import (
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-food/internal/common"
	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/store"
)

// Handler exposes coupon preview and administration.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
}

type previewRequest struct {
	Code     string      `json:"code" validate:"required"`
	Subtotal money.Money `json:"subtotal"`
}

// Preview returns the discount a coupon would grant for a subtotal.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var req previewRequest
	if err := common.DecodeJSON(r, h.Validator, &req); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	userID, _ := common.UserID(r.Context())
	eval, err := h.Svc.Evaluate(r.Context(), EvaluateRequest{Code: req.Code, Subtotal: req.Subtotal, UserID: userID})
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": eval})
}

// Create stores a new coupon. Admin only.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var payload CreateParams
	if err := common.DecodeJSON(r, h.Validator, &payload); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	c, err := h.Svc.Create(r.Context(), payload)
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": serialise(c)})
}

// AsAppError maps coupon sentinel errors onto HTTP-facing errors. Rejection
// messages are surfaced verbatim.
func AsAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCouponNotFound):
		return common.NewAppError("COUPON_NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrCouponExpired):
		return common.NewAppError("COUPON_EXPIRED", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrCouponMinimumNotMet):
		return common.NewAppError("COUPON_MINIMUM_NOT_MET", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrInvalidCoupon):
		return common.NewAppError("INVALID_COUPON", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrDuplicateCode):
		return common.NewAppError("CONFLICT", err.Error(), http.StatusConflict, err)
	}
	return err
}

func serialise(c store.Coupon) map[string]any {
	out := map[string]any{
		"id":                store.UUIDString(c.ID),
		"code":              c.Code,
		"discountType":      c.DiscountType,
		"discountValue":     c.DiscountValue,
		"minOrderAmount":    c.MinOrderAmount,
		"maxDiscountAmount": c.MaxDiscountAmount,
		"usedCount":         c.UsedCount,
		"startDate":         c.StartDate,
		"endDate":           c.EndDate,
		"isActive":          c.IsActive,
	}
	if c.UsageLimit.Valid {
		out["usageLimit"] = c.UsageLimit.Int32
	}
	return out
}
