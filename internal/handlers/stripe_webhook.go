package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/cache"
	stripewebhook "github.com/gitshopapp/storefront/internal/stripe"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	secret := strings.TrimSpace(h.config.StripeWebhookSecret)
	if secret == "" {
		writeError(w, http.StatusNotFound, "not found", nil, logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	event, err := stripewebhook.ReadWebhookEvent(r, secret)
	if err != nil {
		logger.Error("failed to read Stripe webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid webhook", nil, logger)
		return
	}
	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		writeError(w, http.StatusBadRequest, "missing event ID", nil, logger)
		return
	}

	// Claim the event before processing so a concurrent redelivery is
	// acknowledged instead of applied twice.
	cacheKey := cache.WebhookKey("stripe", event.ID)
	claimed, err := h.cacheProvider.SetIfAbsent(ctx, cacheKey, "processing", stripeWebhookIdempotencyTTL)
	if err != nil {
		logger.Error("failed to claim webhook in cache", "error", err, "event_id", event.ID)
		writeError(w, http.StatusInternalServerError, "processing failed", nil, logger)
		return
	}
	if !claimed {
		logger.Info("webhook already processed", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.stripeRouter.Handle(ctx, event); err != nil {
		if delErr := h.cacheProvider.Delete(ctx, cacheKey); delErr != nil {
			logger.Error("failed to release webhook claim", "error", delErr, "event_id", event.ID)
		}
		logger.Error("failed to process Stripe webhook", "error", err, "type", event.Type)
		writeError(w, http.StatusInternalServerError, "processing failed", nil, logger)
		return
	}

	w.WriteHeader(http.StatusOK)
}
