package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

// AdminListOrders serves one page of orders, optionally filtered by status.
func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	query := r.URL.Query()

	var details []errorDetail
	page, ok := queryInt(query.Get("page"))
	if !ok {
		details = append(details, errorDetail{Field: "page", Message: "must be a positive integer"})
	}
	limit, ok := queryInt(query.Get("limit"))
	if !ok {
		details = append(details, errorDetail{Field: "limit", Message: "must be a positive integer"})
	}
	if len(details) > 0 {
		writeError(w, http.StatusBadRequest, "validation failed", details, logger)
		return
	}

	result, err := h.fulfillment.ListOrders(ctx, services.ListOrdersInput{
		Status: models.OrderStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, result, logger)
}

// AdminUpdateOrder applies one admin transition. confirmPayment and
// rejectPayment are mutually exclusive; a body with neither marks the order
// delivered.
func (h *Handlers) AdminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req updateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil, logger)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeServiceError(w, err, logger)
		return
	}
	if req.ConfirmPayment && req.RejectPayment {
		writeError(w, http.StatusBadRequest, "validation failed", []errorDetail{
			{Field: "confirmPayment", Message: "cannot be combined with rejectPayment"},
		}, logger)
		return
	}

	var (
		order *models.Order
		err   error
	)
	switch {
	case req.ConfirmPayment:
		order, err = h.fulfillment.ConfirmPayment(ctx, services.TransitionInput{
			OrderID:         req.OrderID,
			ExpectedVersion: req.ExpectedVersion,
		})
	case req.RejectPayment:
		order, err = h.fulfillment.RejectPayment(ctx, services.RejectPaymentInput{
			OrderID:         req.OrderID,
			Reason:          req.RejectionReason,
			ExpectedVersion: req.ExpectedVersion,
		})
	default:
		order, err = h.fulfillment.MarkDelivered(ctx, services.TransitionInput{
			OrderID:         req.OrderID,
			ExpectedVersion: req.ExpectedVersion,
		})
	}
	if err != nil {
		writeServiceError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, order, logger)
}

func (h *Handlers) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req deleteOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil, logger)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeServiceError(w, err, logger)
		return
	}

	if err := h.fulfillment.DeleteOrder(ctx, req.OrderID); err != nil {
		writeServiceError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orderId": req.OrderID}, logger)
}

// GetOrder returns an order to its owner or to an admin.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, ok := orderIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found", nil, logger)
		return
	}

	order, err := h.fulfillment.GetOrder(ctx, orderID, viewerFromRequest(r))
	if err != nil {
		writeServiceError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, order, logger)
}

// ResubmitPaymentProof lets a customer replace the proof on a rejected order
// and send it back for review.
func (h *Handlers) ResubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, ok := orderIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found", nil, logger)
		return
	}

	var req resubmitProofRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil, logger)
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeServiceError(w, err, logger)
		return
	}

	order, err := h.fulfillment.ResubmitPaymentProof(ctx, services.ResubmitProofInput{
		OrderID:         orderID,
		UserID:          callerID(r),
		PaymentProofURL: req.PaymentProofURL,
	})
	if err != nil {
		writeServiceError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, order, logger)
}

func orderIDFromPath(r *http.Request) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, false
	}
	return orderID, true
}

func viewerFromRequest(r *http.Request) services.Viewer {
	data := session.GetSessionFromContext(r.Context())
	if data == nil {
		return services.Viewer{}
	}
	return services.Viewer{UserID: data.UserID, Admin: data.IsAdmin()}
}

// queryInt parses an optional positive integer query value. Empty means 0 so
// the service applies its default.
func queryInt(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, true
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
