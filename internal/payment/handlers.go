package payment

import (
	"errors"
	"net/http"

	"github.com/noah-isme/backend-food/internal/common"
)

// Handler exposes the gateway callback endpoints.
type Handler struct {
	Settler *Settler
}

type ipnAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// VNPayReturn settles the browser return leg and reports the outcome. Any
// verification failure yields the same generic message.
func (h *Handler) VNPayReturn(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Settler == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment handler unavailable", nil)
		return
	}
	out, err := h.Settler.Settle(r.Context(), Callback{
		Provider: ProviderVNPay,
		Channel:  "return",
		Params:   r.URL.Query(),
		ClientIP: common.ClientIP(r),
	})
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// VNPayIPN settles the server-to-server leg. VNPay expects HTTP 200 with an
// RspCode body in every case.
func (h *Handler) VNPayIPN(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Settler == nil {
		common.JSON(w, http.StatusOK, ipnAck{RspCode: "99", Message: "Unknown error"})
		return
	}
	out, err := h.Settler.Settle(r.Context(), Callback{
		Provider: ProviderVNPay,
		Channel:  "ipn",
		Params:   r.URL.Query(),
		ClientIP: common.ClientIP(r),
	})
	code, message := IPNResponse(out, err)
	common.JSON(w, http.StatusOK, ipnAck{RspCode: code, Message: message})
}

// AsAppError maps payment sentinel errors onto HTTP-facing errors. Callback
// verification failures share one message so probes learn nothing.
func AsAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrUnknownTransaction), errors.Is(err, ErrAmountMismatch):
		return common.NewAppError("VERIFICATION_FAILED", "transaction could not be verified", http.StatusBadRequest, err)
	case errors.Is(err, ErrUnsupportedPaymentMethod):
		return common.NewAppError("UNSUPPORTED_PAYMENT_METHOD", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrOrderNotPayable):
		return common.NewAppError("ORDER_NOT_PAYABLE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrCashOrder):
		return common.NewAppError("ORDER_NOT_PAYABLE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrOrderNotFound):
		return common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
	case errors.Is(err, ErrUnknownProvider):
		return common.NewAppError("PROVIDER_NOT_SUPPORTED", "unknown provider", http.StatusNotFound, err)
	}
	return err
}
