package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/saga"
	"github.com/gitshopapp/storefront/internal/stripe"
)

const (
	stepCreateOrder          = "create_order"
	stepCreatePaymentSession = "create_payment_session"
	stepAttachPaymentSession = "attach_payment_session"
)

type checkoutOrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, orderID uuid.UUID) error
	SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
}

type productReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

type deliveryQuoter interface {
	Quote(ctx context.Context, subtotalCents int64, deliveryType string) (DeliveryQuote, error)
}

// CheckoutInput is the cart and shipping snapshot submitted by a customer.
type CheckoutInput struct {
	UserID          string
	Name            string
	Email           string
	ShippingAddress models.ShippingAddress
	Items           []catalog.CartItem
	DeliveryType    string
}

type OfflineCheckoutInput struct {
	CheckoutInput
	PaymentProofURL  string
	PaymentReference string
	PaymentDate      *time.Time
}

type OnlineCheckoutResult struct {
	OrderID   uuid.UUID
	SessionID string
	URL       string
}

type CheckoutService struct {
	orders    checkoutOrderStore
	products  productReader
	gateway   checkoutGateway
	delivery  deliveryQuoter
	listCache orderListCache
	baseURL   string
	logger    *slog.Logger
}

type CheckoutDependencies struct {
	Orders    checkoutOrderStore
	Products  productReader
	Gateway   checkoutGateway
	Delivery  deliveryQuoter
	ListCache orderListCache
	BaseURL   string
	Logger    *slog.Logger
}

func NewCheckoutService(deps CheckoutDependencies) (*CheckoutService, error) {
	if deps.Orders == nil {
		return nil, fmt.Errorf("checkout service: order store is required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("checkout service: product store is required")
	}
	if deps.Delivery == nil {
		return nil, fmt.Errorf("checkout service: delivery pricing is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CheckoutService{
		orders:    deps.Orders,
		products:  deps.Products,
		gateway:   deps.Gateway,
		delivery:  deps.Delivery,
		listCache: deps.ListCache,
		baseURL:   strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/"),
		logger:    logger.With("component", "checkout"),
	}, nil
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// CreateOnlineCheckout persists a pending order and opens a hosted payment
// session for it. If the session cannot be created the order is deleted again,
// so no pending order is left without a way to pay.
func (s *CheckoutService) CreateOnlineCheckout(ctx context.Context, input CheckoutInput) (*OnlineCheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.create_online",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("CreateOnlineCheckout"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment_method", string(models.PaymentMethodOnline)))
	recordFailure := func(reason string) {
		meter.Count("checkout.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("checkout.received", 1)

	if err := validateCheckoutInput(input); err != nil {
		recordFailure("invalid_input")
		return nil, err
	}

	if s.gateway == nil {
		recordFailure("gateway_unconfigured")
		return nil, ErrPaymentGatewayUnavailable
	}

	order, quote, err := s.buildOrder(ctx, input, models.PaymentMethodOnline)
	if err != nil {
		recordFailure("build_order_failed")
		return nil, err
	}

	var session *stripe.CheckoutSession
	orderCreated := false
	orchestrator := saga.NewOrchestrator(logger,
		saga.FuncStep{
			StepName: stepCreateOrder,
			Do: func(ctx context.Context) error {
				if err := s.orders.Create(ctx, order); err != nil {
					return fmt.Errorf("%w: failed to create order: %w", ErrCheckoutFailed, err)
				}
				orderCreated = true
				return nil
			},
			Undo: func(ctx context.Context) error {
				err := s.orders.Delete(ctx, order.ID)
				if err != nil && !errors.Is(err, pgx.ErrNoRows) {
					return err
				}
				logger.Info("deleted order after failed checkout", "order_id", order.ID)
				return nil
			},
		},
		saga.FuncStep{
			StepName: stepCreatePaymentSession,
			Do: func(ctx context.Context) error {
				created, err := s.gateway.CreateCheckoutSession(ctx, s.sessionParams(order, quote))
				if err != nil {
					return fmt.Errorf("%w: %w", ErrPaymentGatewayUnavailable, err)
				}
				session = created
				return nil
			},
			Undo: func(ctx context.Context) error {
				if err := s.gateway.ExpireCheckoutSession(ctx, session.ID); err != nil {
					logger.Error("orphaned payment session left open", "session_id", session.ID, "order_id", order.ID, "error", err)
					return err
				}
				logger.Info("expired payment session after failed checkout", "session_id", session.ID, "order_id", order.ID)
				return nil
			},
		},
		saga.FuncStep{
			StepName: stepAttachPaymentSession,
			Do: func(ctx context.Context) error {
				if err := s.orders.SetCheckoutSession(ctx, order.ID, session.ID); err != nil {
					return fmt.Errorf("%w: failed to attach payment session: %w", ErrCheckoutFailed, err)
				}
				order.StripeCheckoutSessionID = session.ID
				return nil
			},
		},
	)

	runErr := orchestrator.Run(ctx)
	if orderCreated {
		invalidateOrderList(ctx, s.listCache, logger)
	}
	if runErr != nil {
		var stepErr *saga.StepError
		if errors.As(runErr, &stepErr) {
			recordFailure(stepErr.Step + "_failed")
		} else {
			recordFailure("saga_failed")
		}
		logger.Error("online checkout failed", "error", runErr, "order_id", order.ID)
		return nil, runErr
	}

	meter.Count("checkout.created", 1)
	span.Status = sentry.SpanStatusOK
	logger.Info("online checkout created", "order_id", order.ID, "session_id", session.ID, "total_cents", order.GrandTotalCents())

	return &OnlineCheckoutResult{
		OrderID:   order.ID,
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

// CreateOfflineCheckout records an order paid out of band. The order waits in
// pending until an admin reviews the uploaded proof.
func (s *CheckoutService) CreateOfflineCheckout(ctx context.Context, input OfflineCheckoutInput) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.create_offline",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("CreateOfflineCheckout"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment_method", string(models.PaymentMethodOffline)))
	recordFailure := func(reason string) {
		meter.Count("checkout.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("checkout.received", 1)

	fieldErrs := checkoutFieldErrors(input.CheckoutInput)
	if strings.TrimSpace(input.PaymentProofURL) == "" {
		fieldErrs = append(fieldErrs, ValidationError{Field: "paymentProofUrl", Message: "is required"})
	}
	if err := fieldErrs.orNil(); err != nil {
		recordFailure("invalid_input")
		return nil, err
	}

	order, _, err := s.buildOrder(ctx, input.CheckoutInput, models.PaymentMethodOffline)
	if err != nil {
		recordFailure("build_order_failed")
		return nil, err
	}
	order.PaymentProofURL = strings.TrimSpace(input.PaymentProofURL)
	order.PaymentReference = strings.TrimSpace(input.PaymentReference)
	order.PaymentDate = input.PaymentDate

	if err := s.orders.Create(ctx, order); err != nil {
		recordFailure("create_order_failed")
		return nil, fmt.Errorf("%w: failed to create order: %w", ErrCheckoutFailed, err)
	}
	invalidateOrderList(ctx, s.listCache, logger)

	meter.Count("checkout.created", 1)
	span.Status = sentry.SpanStatusOK
	logger.Info("offline checkout created", "order_id", order.ID, "payment_reference", order.PaymentReference, "total_cents", order.GrandTotalCents())
	return order, nil
}

// buildOrder prices the cart against the live catalog. Products that no
// longer exist are dropped; a cart left with nothing purchasable is rejected.
func (s *CheckoutService) buildOrder(ctx context.Context, input CheckoutInput, method models.PaymentMethod) (*models.Order, DeliveryQuote, error) {
	logger := s.loggerFromContext(ctx)

	products, err := s.products.GetByIDs(ctx, catalog.ProductIDs(input.Items))
	if err != nil {
		return nil, DeliveryQuote{}, fmt.Errorf("%w: failed to load products: %w", ErrCheckoutFailed, err)
	}

	lineItems, total := catalog.BuildLineItems(input.Items, products)
	if dropped := len(input.Items) - len(lineItems); dropped > 0 {
		logger.Warn("dropped cart items for unknown products", "dropped", dropped, "user_id", input.UserID)
	}
	if len(lineItems) == 0 {
		return nil, DeliveryQuote{}, ValidationErrors{{Field: "cartItems", Message: "no purchasable products in cart"}}
	}

	quote, err := s.delivery.Quote(ctx, total, strings.TrimSpace(input.DeliveryType))
	if err != nil {
		return nil, DeliveryQuote{}, err
	}

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        input.UserID,
		CustomerName:  strings.TrimSpace(input.Name),
		CustomerEmail: strings.TrimSpace(input.Email),
		ShippingAddress: models.ShippingAddress{
			City:          strings.TrimSpace(input.ShippingAddress.City),
			PostalCode:    strings.TrimSpace(input.ShippingAddress.PostalCode),
			StreetAddress: strings.TrimSpace(input.ShippingAddress.StreetAddress),
			Country:       strings.TrimSpace(input.ShippingAddress.Country),
		},
		CartProducts:      lineItems,
		TotalCents:        total,
		DeliveryType:      quote.Type,
		DeliveryCostCents: quote.CostCents,
		Status:            models.StatusPending,
		PaymentMethod:     method,
	}
	return order, quote, nil
}

func (s *CheckoutService) sessionParams(order *models.Order, quote DeliveryQuote) stripe.CheckoutSessionParams {
	items := make([]stripe.CheckoutLineItem, 0, len(order.CartProducts))
	for _, item := range order.CartProducts {
		items = append(items, stripe.CheckoutLineItem{
			Name:            item.Name,
			Description:     item.Description,
			Images:          item.Images,
			UnitAmountCents: item.PriceCents,
			Quantity:        int64(item.Quantity),
		})
	}

	label := quote.Label
	if label == "" {
		label = quote.Type
	}

	return stripe.CheckoutSessionParams{
		OrderID:       order.ID,
		Items:         items,
		DeliveryLabel: label,
		DeliveryCents: order.DeliveryCostCents,
		CustomerEmail: order.CustomerEmail,
		SuccessURL:    fmt.Sprintf("%s/orders/%s?checkout=success", s.baseURL, order.ID),
		CancelURL:     s.baseURL + "/cart?checkout=cancelled",
	}
}

func validateCheckoutInput(input CheckoutInput) error {
	return checkoutFieldErrors(input).orNil()
}

func checkoutFieldErrors(input CheckoutInput) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(input.UserID) == "" {
		errs = append(errs, ValidationError{Field: "user", Message: "checkout requires a signed in customer"})
	}

	required := []struct {
		field string
		value string
	}{
		{field: "name", value: input.Name},
		{field: "email", value: input.Email},
		{field: "city", value: input.ShippingAddress.City},
		{field: "postalCode", value: input.ShippingAddress.PostalCode},
		{field: "streetAddress", value: input.ShippingAddress.StreetAddress},
		{field: "country", value: input.ShippingAddress.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, ValidationError{Field: r.field, Message: "is required"})
		}
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			errs = append(errs, ValidationError{Field: "email", Message: "must be a valid email address"})
		}
	}

	if len(input.Items) == 0 {
		errs = append(errs, ValidationError{Field: "cartItems", Message: "must contain at least one item"})
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("cartItems[%d].id", i), Message: "is required"})
		}
		if item.Quantity < 1 {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("cartItems[%d].quantity", i), Message: "must be at least 1"})
		}
	}
	return errs
}
