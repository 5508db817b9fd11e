package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidBody is returned when a request body cannot be decoded.
	ErrInvalidBody = errors.New("invalid request body")
	// ErrBodyTooLarge is returned when the body exceeds the server limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// DecodeJSON decodes the request body into dst and, when v is non-nil, runs
// struct validation on the result.
func DecodeJSON(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if tooLarge(err) {
			return ErrBodyTooLarge
		}
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if v == nil {
		return nil
	}
	return v.Struct(dst)
}

// ValidationDetails flattens validator errors into a stable response shape.
func ValidationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if idx := strings.Index(ns, "."); idx >= 0 {
			ns = ns[idx+1:]
		}
		out = append(out, FieldError{Field: ns, Rule: fe.Tag()})
	}
	return out
}

var errValidation = NewAppError("VALIDATION_ERROR", "request validation failed", http.StatusUnprocessableEntity, nil)

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// WriteDecodeError renders a DecodeJSON failure as 400, 413 or 422.
func WriteDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
		return
	}
	if details := ValidationDetails(err); details != nil {
		WriteError(w, errValidation.WithDetails(details))
		return
	}
	JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload", nil)
}
