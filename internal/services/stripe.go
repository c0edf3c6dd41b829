package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
)

type checkoutCompletionRecorder interface {
	RecordCheckoutCompleted(ctx context.Context, sessionID, paymentIntentID string) (*models.Order, error)
}

// StripeService applies gateway signals to orders. A completed checkout is
// recorded on the order for the admin to see; it never marks the order paid.
type StripeService struct {
	orders    checkoutCompletionRecorder
	listCache orderListCache
	logger    *slog.Logger
}

func NewStripeService(orders checkoutCompletionRecorder, listCache orderListCache, logger *slog.Logger) *StripeService {
	return &StripeService{
		orders:    orders,
		listCache: listCache,
		logger:    logger,
	}
}

func (s *StripeService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *StripeService) HandleCheckoutSessionCompleted(ctx context.Context, payload []byte) error {
	logger := s.loggerFromContext(ctx)

	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return fmt.Errorf("invalid event object: %w", err)
	}
	if session.ID == "" {
		return fmt.Errorf("missing session ID")
	}

	paymentIntentID := ""
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}

	order, err := s.orders.RecordCheckoutCompleted(ctx, session.ID, paymentIntentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// the order was compensated away or never belonged to this shop
			logger.Info("ignoring checkout.session.completed for unknown session", "session_id", session.ID, "order_ref", session.ClientReferenceID)
			return nil
		}
		return fmt.Errorf("failed to record checkout completion: %w", err)
	}

	invalidateOrderList(ctx, s.listCache, logger)
	logger.Info("checkout session completed", "order_id", order.ID, "session_id", session.ID, "payment_intent_id", paymentIntentID)
	return nil
}
