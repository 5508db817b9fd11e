package catalog

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-food/internal/common"
)

// Handler exposes the catalog snapshot used for pricing.
type Handler struct {
	Svc *Service
}

// Products returns the snapshot for ?ids=a,b,c.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids is required", nil)
		return
	}
	ids := strings.Split(raw, ",")
	if len(ids) > 100 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "at most 100 ids per request", nil)
		return
	}
	snap, err := h.Svc.Snapshot(r.Context(), ids)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load products", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}
