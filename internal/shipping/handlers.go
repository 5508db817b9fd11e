package shipping

import (
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-food/internal/common"
	"github.com/noah-isme/backend-food/internal/money"
)

// Handler exposes the tier configuration and a fee preview.
type Handler struct {
	Source    *StoreSource
	Resolver  *Resolver
	Validator *validator.Validate
}

// ListTiers returns the configured tiers.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipping not configured", nil)
		return
	}
	tiers, err := h.Source.Tiers(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load shipping tiers", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": tiers})
}

type replaceTiersPayload struct {
	Tiers []Tier `json:"tiers" validate:"dive"`
}

// ReplaceTiers swaps the tier set. Admin only.
func (h *Handler) ReplaceTiers(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipping not configured", nil)
		return
	}
	var payload replaceTiersPayload
	if err := common.DecodeJSON(r, h.Validator, &payload); err != nil {
		common.WriteDecodeError(w, err)
		return
	}
	saved, err := h.Source.Replace(r.Context(), payload.Tiers)
	if err != nil {
		switch {
		case errors.Is(err, ErrMultipleDefaults), errors.Is(err, ErrInvalidBracket):
			common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_TIERS", err.Error(), nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save shipping tiers", nil)
		}
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

// Quote previews the fee for ?subtotal=...&province=...&district=...&ward=...
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipping not configured", nil)
		return
	}
	q := r.URL.Query()
	subtotal, err := money.Parse(strings.TrimSpace(q.Get("subtotal")))
	if err != nil || subtotal.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "subtotal must be a non-negative amount", nil)
		return
	}
	area := Area{Province: q.Get("province"), District: q.Get("district"), Ward: q.Get("ward")}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Resolver.Resolve(r.Context(), subtotal, area)})
}
