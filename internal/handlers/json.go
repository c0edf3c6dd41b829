package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gitshopapp/storefront/internal/services"
)

type errorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string        `json:"error"`
	Details []errorDetail `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Error("failed to encode response", "error", err, "status", status)
	}
}

func writeError(w http.ResponseWriter, status int, message string, details []errorDetail, logger *slog.Logger) {
	writeJSON(w, status, errorResponse{Error: message, Details: details}, logger)
}

// writeServiceError maps a service failure onto its HTTP status. Only errors
// that are safe to show are echoed back; everything else is logged and
// reported as a generic failure.
func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var validationErrs services.ValidationErrors

	switch {
	case errors.As(err, &validationErrs):
		details := make([]errorDetail, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			details = append(details, errorDetail{Field: fieldErr.Field, Message: fieldErr.Message})
		}
		writeError(w, http.StatusBadRequest, "validation failed", details, logger)
	case errors.Is(err, services.ErrOrderForbidden):
		writeError(w, http.StatusForbidden, "forbidden", nil, logger)
	case errors.Is(err, services.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found", nil, logger)
	case errors.Is(err, services.ErrOrderVersionConflict):
		writeError(w, http.StatusConflict, "order was modified by another request", nil, logger)
	case errors.Is(err, services.ErrOrderStatusConflict):
		writeError(w, http.StatusConflict, "order is not in a state that allows this action", nil, logger)
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		logger.Error("payment gateway failure", "error", err)
		writeError(w, http.StatusBadGateway, "payment provider is unavailable, please try again", nil, logger)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", nil, logger)
	}
}
