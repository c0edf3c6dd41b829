package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

type pinger interface {
	Ping(ctx context.Context) error
}

type checkoutService interface {
	CreateOnlineCheckout(ctx context.Context, input services.CheckoutInput) (*services.OnlineCheckoutResult, error)
	CreateOfflineCheckout(ctx context.Context, input services.OfflineCheckoutInput) (*models.Order, error)
}

type fulfillmentService interface {
	ConfirmPayment(ctx context.Context, input services.TransitionInput) (*models.Order, error)
	RejectPayment(ctx context.Context, input services.RejectPaymentInput) (*models.Order, error)
	MarkDelivered(ctx context.Context, input services.TransitionInput) (*models.Order, error)
	ResubmitPaymentProof(ctx context.Context, input services.ResubmitProofInput) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	GetOrder(ctx context.Context, orderID uuid.UUID, viewer services.Viewer) (*models.Order, error)
	ListOrders(ctx context.Context, input services.ListOrdersInput) (*services.OrderPage, error)
}

type identityProvider interface {
	StartGitHubLogin() (services.StartGitHubLoginResult, error)
	CompleteGitHubOAuth(ctx context.Context, code string) (*session.Data, error)
}

type tokenIssuer interface {
	Issue(identity *session.Data) (string, time.Time, error)
}

// Handlers serves the storefront JSON API.
type Handlers struct {
	config         *config.Config
	db             pinger
	checkout       checkoutService
	fulfillment    fulfillmentService
	cacheProvider  cache.Provider
	stripeRouter   *StripeEventRouter
	authService    identityProvider
	tokens         tokenIssuer
	sessionManager *session.Manager
	validate       *validator.Validate
	logger         *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	DB            pinger
	Checkout      checkoutService
	Fulfillment   fulfillmentService
	CacheProvider cache.Provider
	StripeRouter  *StripeEventRouter
	// AuthService is nil when GitHub OAuth is not configured; the login routes
	// then answer 503.
	AuthService    identityProvider
	Tokens         tokenIssuer
	SessionManager *session.Manager
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Checkout == nil {
		return nil, fmt.Errorf("handlers dependencies: checkout is required")
	}
	if deps.Fulfillment == nil {
		return nil, fmt.Errorf("handlers dependencies: fulfillment is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("handlers dependencies: tokens is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}

	return &Handlers{
		config:         deps.Config,
		db:             deps.DB,
		checkout:       deps.Checkout,
		fulfillment:    deps.Fulfillment,
		cacheProvider:  deps.CacheProvider,
		stripeRouter:   deps.StripeRouter,
		authService:    deps.AuthService,
		tokens:         deps.Tokens,
		sessionManager: deps.SessionManager,
		validate:       newRequestValidator(),
		logger:         logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"}, logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, logger)
}

// SessionMiddleware adds the caller identity to the request context.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return h.sessionManager.RequireAuth(next)
}

func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return session.RequireRole(session.RoleAdmin)(next)
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found", nil, h.loggerFromContext(r.Context()))
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

// decodeJSON reads a single JSON object from the request body into dst,
// rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("invalid request body: unexpected trailing data")
	}
	return nil
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
