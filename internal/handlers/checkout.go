package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

type onlineCheckoutResponse struct {
	URL       string    `json:"url"`
	SessionID string    `json:"sessionId"`
	OrderID   uuid.UUID `json:"orderId"`
}

type offlineCheckoutResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"orderId"`
}

// CheckoutOnline creates a pending order and returns the hosted payment page
// the customer should be redirected to.
func (h *Handlers) CheckoutOnline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil, logger)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeServiceError(w, err, logger)
		return
	}

	result, err := h.checkout.CreateOnlineCheckout(ctx, req.toInput(callerID(r)))
	if err != nil {
		writeServiceError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusCreated, onlineCheckoutResponse{
		URL:       result.URL,
		SessionID: result.SessionID,
		OrderID:   result.OrderID,
	}, logger)
}

// CheckoutOffline creates a pending order carrying the customer's proof of a
// bank transfer for an admin to review.
func (h *Handlers) CheckoutOffline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req offlineCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil, logger)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeServiceError(w, err, logger)
		return
	}

	order, err := h.checkout.CreateOfflineCheckout(ctx, services.OfflineCheckoutInput{
		CheckoutInput:    req.toInput(callerID(r)),
		PaymentProofURL:  strings.TrimSpace(req.PaymentProofURL),
		PaymentReference: req.PaymentReference,
		PaymentDate:      req.PaymentDate,
	})
	if err != nil {
		writeServiceError(w, err, logger)
		return
	}

	writeJSON(w, http.StatusCreated, offlineCheckoutResponse{Success: true, OrderID: order.ID}, logger)
}

func callerID(r *http.Request) string {
	if data := session.GetSessionFromContext(r.Context()); data != nil {
		return data.UserID
	}
	return ""
}
