package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

const (
	DefaultOrderPageSize = 20
	MaxOrderPageSize     = 100

	// MaxOrderPage keeps page*limit within int for any accepted limit.
	MaxOrderPage = math.MaxInt32 / MaxOrderPageSize
)

type fulfillmentOrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params db.ListOrdersParams) ([]*models.Order, int, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, expectedVersion int) (*models.Order, error)
	RejectPayment(ctx context.Context, orderID uuid.UUID, reason string, expectedVersion int) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID, expectedVersion int) (*models.Order, error)
	ResubmitPaymentProof(ctx context.Context, orderID uuid.UUID, proofURL string) (*models.Order, error)
}

// orderListCache holds listing pages. Invalidate drops every page at once.
type orderListCache interface {
	Snapshot(ctx context.Context) (*cache.Snapshot, error)
	Invalidate(ctx context.Context) error
}

// Viewer is the identity a read is performed for.
type Viewer struct {
	UserID string
	Admin  bool
}

type TransitionInput struct {
	OrderID uuid.UUID
	// ExpectedVersion, when positive, must match the stored version.
	ExpectedVersion int
}

type RejectPaymentInput struct {
	OrderID         uuid.UUID
	Reason          string
	ExpectedVersion int
}

type ResubmitProofInput struct {
	OrderID         uuid.UUID
	UserID          string
	PaymentProofURL string
}

type ListOrdersInput struct {
	Status models.OrderStatus
	Page   int
	Limit  int
}

type OrderPage struct {
	Orders      []*models.Order `json:"orders"`
	HasMore     bool            `json:"hasMore"`
	TotalOrders int             `json:"totalOrders"`
	Page        int             `json:"page"`
	Limit       int             `json:"limit"`
}

// FulfillmentService drives orders through the payment review state machine.
type FulfillmentService struct {
	orders    fulfillmentOrderStore
	listCache orderListCache
	listTTL   time.Duration
	notifier  OrderNotifier
	logger    *slog.Logger
}

func NewFulfillmentService(orders fulfillmentOrderStore, listCache orderListCache, listTTL time.Duration, notifier OrderNotifier, logger *slog.Logger) *FulfillmentService {
	if notifier == nil {
		notifier = noopOrderNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FulfillmentService{
		orders:    orders,
		listCache: listCache,
		listTTL:   listTTL,
		notifier:  notifier,
		logger:    logger.With("component", "fulfillment"),
	}
}

func (s *FulfillmentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// ConfirmPayment moves a pending order to processing, marks it paid and
// decrements stock in one transaction. The confirmation email is best effort.
func (s *FulfillmentService) ConfirmPayment(ctx context.Context, input TransitionInput) (*models.Order, error) {
	span, ctx, recordFailure := s.startTransition(ctx, "confirm_payment", "ConfirmPayment")
	defer span.Finish()
	logger := s.loggerFromContext(ctx)

	order, err := s.orders.ConfirmPayment(ctx, input.OrderID, input.ExpectedVersion)
	if err != nil {
		err = orderStoreError(err)
		recordFailure(failureReason(err))
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}
	invalidateOrderList(ctx, s.listCache, logger)

	if err := s.notifier.SendPaymentConfirmed(ctx, order); err != nil {
		logger.Error("failed to send payment confirmed email", "error", err, "order_id", order.ID)
	}

	span.Status = sentry.SpanStatusOK
	logger.Info("payment confirmed", "order_id", order.ID, "version", order.Version)
	return order, nil
}

// RejectPayment cancels a pending order with a reason shown to the customer.
func (s *FulfillmentService) RejectPayment(ctx context.Context, input RejectPaymentInput) (*models.Order, error) {
	span, ctx, recordFailure := s.startTransition(ctx, "reject_payment", "RejectPayment")
	defer span.Finish()
	logger := s.loggerFromContext(ctx)

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		recordFailure("invalid_input")
		return nil, ValidationErrors{{Field: "rejectionReason", Message: "is required"}}
	}

	order, err := s.orders.RejectPayment(ctx, input.OrderID, reason, input.ExpectedVersion)
	if err != nil {
		err = orderStoreError(err)
		recordFailure(failureReason(err))
		return nil, fmt.Errorf("failed to reject payment: %w", err)
	}
	invalidateOrderList(ctx, s.listCache, logger)

	if err := s.notifier.SendPaymentRejected(ctx, order); err != nil {
		logger.Error("failed to send payment rejected email", "error", err, "order_id", order.ID)
	}

	span.Status = sentry.SpanStatusOK
	logger.Info("payment rejected", "order_id", order.ID, "version", order.Version)
	return order, nil
}

func (s *FulfillmentService) MarkDelivered(ctx context.Context, input TransitionInput) (*models.Order, error) {
	span, ctx, recordFailure := s.startTransition(ctx, "mark_delivered", "MarkDelivered")
	defer span.Finish()
	logger := s.loggerFromContext(ctx)

	order, err := s.orders.MarkDelivered(ctx, input.OrderID, input.ExpectedVersion)
	if err != nil {
		err = orderStoreError(err)
		recordFailure(failureReason(err))
		return nil, fmt.Errorf("failed to mark order delivered: %w", err)
	}
	invalidateOrderList(ctx, s.listCache, logger)

	span.Status = sentry.SpanStatusOK
	logger.Info("order delivered", "order_id", order.ID, "version", order.Version)
	return order, nil
}

// ResubmitPaymentProof puts a rejected order back into review with a new
// proof. Only the customer who placed the order may resubmit, and only while
// it is cancelled.
func (s *FulfillmentService) ResubmitPaymentProof(ctx context.Context, input ResubmitProofInput) (*models.Order, error) {
	span, ctx, recordFailure := s.startTransition(ctx, "resubmit_proof", "ResubmitPaymentProof")
	defer span.Finish()
	logger := s.loggerFromContext(ctx)

	proofURL := strings.TrimSpace(input.PaymentProofURL)
	if proofURL == "" {
		recordFailure("invalid_input")
		return nil, ValidationErrors{{Field: "paymentProofUrl", Message: "is required"}}
	}

	current, err := s.orders.GetByID(ctx, input.OrderID)
	if err != nil {
		err = orderStoreError(err)
		recordFailure(failureReason(err))
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !current.IsOwnedBy(input.UserID) {
		recordFailure("forbidden")
		return nil, ErrOrderForbidden
	}

	order, err := s.orders.ResubmitPaymentProof(ctx, input.OrderID, proofURL)
	if err != nil {
		err = orderStoreError(err)
		recordFailure(failureReason(err))
		return nil, fmt.Errorf("failed to resubmit payment proof: %w", err)
	}
	invalidateOrderList(ctx, s.listCache, logger)

	span.Status = sentry.SpanStatusOK
	logger.Info("payment proof resubmitted", "order_id", order.ID, "version", order.Version)
	return order, nil
}

// DeleteOrder removes an order permanently. Stock decremented by an earlier
// confirmation is not restored.
func (s *FulfillmentService) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	span, ctx, recordFailure := s.startTransition(ctx, "delete_order", "DeleteOrder")
	defer span.Finish()
	logger := s.loggerFromContext(ctx)

	if err := s.orders.Delete(ctx, orderID); err != nil {
		err = orderStoreError(err)
		recordFailure(failureReason(err))
		return fmt.Errorf("failed to delete order: %w", err)
	}
	invalidateOrderList(ctx, s.listCache, logger)

	span.Status = sentry.SpanStatusOK
	logger.Info("order deleted", "order_id", orderID)
	return nil
}

// GetOrder returns an order to an admin or to the customer who placed it.
func (s *FulfillmentService) GetOrder(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderStoreError(err)
	}
	if !viewer.Admin && !order.IsOwnedBy(viewer.UserID) {
		return nil, ErrOrderForbidden
	}
	return order, nil
}

// ListOrders returns one page of orders, newest first. Pages are cached until
// the next order write.
func (s *FulfillmentService) ListOrders(ctx context.Context, input ListOrdersInput) (*OrderPage, error) {
	logger := s.loggerFromContext(ctx)

	if input.Status != "" && !input.Status.Valid() {
		return nil, ValidationErrors{{Field: "status", Message: "must be one of pending, processing, delivered, cancelled"}}
	}
	page, limit := normalizePage(input.Page, input.Limit)
	key := orderListKey(input.Status, page, limit)

	// The page is read and written under one generation; a write that
	// invalidates while the query runs leaves the new generation empty.
	var snap *cache.Snapshot
	if s.listCache != nil {
		var err error
		snap, err = s.listCache.Snapshot(ctx)
		if err != nil {
			logger.Warn("failed to read order list cache generation", "error", err)
		}
	}
	if snap != nil {
		var cached OrderPage
		err := snap.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("failed to read cached order list", "error", err, "key", key)
		}
	}

	orders, total, err := s.orders.List(ctx, db.ListOrdersParams{
		Status: input.Status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	result := &OrderPage{
		Orders:      orders,
		HasMore:     page*limit < total,
		TotalOrders: total,
		Page:        page,
		Limit:       limit,
	}

	if snap != nil && s.listTTL > 0 {
		if err := snap.SetJSON(ctx, key, result, s.listTTL); err != nil {
			logger.Warn("failed to cache order list", "error", err, "key", key)
		}
	}
	return result, nil
}

func (s *FulfillmentService) startTransition(ctx context.Context, operation, description string) (*sentry.Span, context.Context, func(string)) {
	span := sentry.StartSpan(
		ctx,
		"service.fulfillment."+operation,
		sentry.WithOpName("service.fulfillment"),
		sentry.WithDescription(description),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("operation", operation))
	meter.Count("fulfillment.received", 1)
	recordFailure := func(reason string) {
		meter.Count("fulfillment.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	return span, ctx, recordFailure
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrOrderStatusConflict):
		return "status_conflict"
	case errors.Is(err, ErrOrderVersionConflict):
		return "version_conflict"
	default:
		return "store_failed"
	}
}

func normalizePage(page, limit int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > MaxOrderPage:
		page = MaxOrderPage
	}
	switch {
	case limit < 1:
		limit = DefaultOrderPageSize
	case limit > MaxOrderPageSize:
		limit = MaxOrderPageSize
	}
	return page, limit
}

func orderListKey(status models.OrderStatus, page, limit int) string {
	statusKey := string(status)
	if statusKey == "" {
		statusKey = "all"
	}
	return "orders:" + statusKey + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(limit)
}

func invalidateOrderList(ctx context.Context, listCache orderListCache, logger *slog.Logger) {
	if listCache == nil {
		return
	}
	if err := listCache.Invalidate(ctx); err != nil {
		logger.Warn("failed to invalidate order list cache", "error", err)
	}
}
