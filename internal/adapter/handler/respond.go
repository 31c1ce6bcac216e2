package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/atelier-gallery/atelier/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps the domain error taxonomy onto HTTP statuses. A
// settlement conflict gets its own code so the storefront can show the
// "payment received, contact us" message instead of a generic failure.
func writeError(w http.ResponseWriter, err error) {
	var unavailable *domain.UnavailableError
	var conflict *domain.ConflictError
	var provider *domain.ProviderError

	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "payment method not configured", Code: "not_configured"})
	case errors.Is(err, domain.ErrPaymentPending):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error(), Code: "payment_pending"})
	case errors.Is(err, domain.ErrSoldPriceImmutable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "sold_price_immutable"})
	case errors.Is(err, domain.ErrItemReferenced):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "item_referenced"})
	case errors.Is(err, domain.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "illegal_transition"})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "item is no longer available", Code: "unavailable"})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: "payment received but the item could not be secured; our team will contact you",
			Code:  "settlement_conflict",
		})
	case errors.As(err, &provider):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "payment provider error", Code: "provider"})
	default:
		log.Error().Err(err).Msg("unhandled request error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return nil
}
