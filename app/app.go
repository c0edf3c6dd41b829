package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/crypto"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/handlers"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
	"github.com/gitshopapp/storefront/internal/stripe"
)

const orderListNamespace = "orders"

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *pgxpool.Pool
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Handlers       *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, err
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	logger := newLogger(startupCtx, cfg, sentryEnabled)

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(startupCtx, database); err != nil {
		database.Close()
		return nil, err
	}

	orderStore := db.NewOrderStore(database)
	productStore := db.NewProductStore(database)
	settingsStore := db.NewSettingsStore(database)

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize session sealer: %w", err)
	}

	tokenIssuer, err := services.NewTokenIssuer(cfg.TokenSigningKey, cfg.TokenTTL)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
		Sealer:                sealer,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	sessionManager := session.NewManager(sessionStore, handlers.SecureCookiesFromConfig(cfg)).
		WithBearerVerifier(tokenIssuer.Verify)

	cleanup := func() {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
	}

	deliveryPricing := services.NewDeliveryPricing(settingsStore, cacheProvider, cfg.DeliverySettingsCacheTTL, logger.With("component", "delivery_pricing"))

	if strings.TrimSpace(cfg.CatalogSource) != "" {
		if err := syncCatalog(startupCtx, cfg, productStore, settingsStore, logger); err != nil {
			cleanup()
			return nil, err
		}
		deliveryPricing.Invalidate(startupCtx)
	}

	notifier, err := newOrderNotifier(startupCtx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	orderListCache := cache.NewNamespace(cacheProvider, orderListNamespace)

	checkoutService, err := services.NewCheckoutService(services.CheckoutDependencies{
		Orders:    orderStore,
		Products:  productStore,
		Gateway:   stripe.NewClient(cfg.StripeSecretKey, cfg.Currency),
		Delivery:  deliveryPricing,
		ListCache: orderListCache,
		BaseURL:   cfg.BaseURL,
		Logger:    logger.With("component", "checkout_service"),
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize checkout service: %w", err)
	}
	fulfillmentService := services.NewFulfillmentService(orderStore, orderListCache, cfg.OrderListCacheTTL, notifier, logger.With("component", "fulfillment_service"))
	stripeService := services.NewStripeService(orderStore, orderListCache, logger.With("component", "stripe_service"))
	stripeRouter := handlers.NewStripeEventRouter(stripeService, logger.With("component", "stripe_router"))

	deps := handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		Checkout:       checkoutService,
		Fulfillment:    fulfillmentService,
		CacheProvider:  cacheProvider,
		StripeRouter:   stripeRouter,
		Tokens:         tokenIssuer,
		SessionManager: sessionManager,
		Logger:         logger,
	}
	if strings.TrimSpace(cfg.GitHubClientID) != "" {
		authService, err := services.NewAuthService(cfg, logger.With("component", "auth_service"))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize auth service: %w", err)
		}
		deps.AuthService = authService
	} else {
		logger.Warn("GITHUB_CLIENT_ID is not set; GitHub login is disabled")
	}

	h, err := handlers.New(deps)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:         cfg,
		Logger:         logger,
		DB:             database,
		CacheProvider:  cacheProvider,
		SessionManager: sessionManager,
		Handlers:       h,
		sentryEnabled:  sentryEnabled,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func initSentry(cfg *config.Config) (bool, error) {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		EnableLogs:       true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func newLogger(ctx context.Context, cfg *config.Config, sentryEnabled bool) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if !sentryEnabled {
		return slog.New(console)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(ctx)
	return slog.New(logging.MultiHandler(console, sentryHandler))
}

func syncCatalog(ctx context.Context, cfg *config.Config, products catalog.ProductWriter, settings catalog.SettingsWriter, logger *slog.Logger) error {
	source, err := catalog.NewSource(ctx, cfg.CatalogSource, cfg.AWSRegion, logger)
	if err != nil {
		return fmt.Errorf("failed to open catalog source: %w", err)
	}
	result, err := catalog.NewSyncer(source, products, settings, logger).Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync catalog: %w", err)
	}
	logger.Info("catalog synced", "source", cfg.CatalogSource, "products", result.Products)
	return nil
}

// newOrderNotifier returns nil when no email provider is configured. A
// rejected API key is logged and the notifier is still built.
func newOrderNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.OrderNotifier, error) {
	provider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFromAddress,
		Domain:   cfg.EmailDomain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}
	if provider == nil {
		logger.Info("EMAIL_PROVIDER is not set; order emails are disabled")
		return nil, nil
	}
	if err := provider.ValidateAPIKey(ctx); err != nil {
		logger.Warn("email provider rejected the configured API key", "provider", cfg.EmailProvider, "error", err)
	}
	notifier, err := services.NewEmailOrderNotifier(provider, nil, services.ShopInfo{
		Name:     cfg.ShopName,
		URL:      cfg.BaseURL,
		Currency: cfg.Currency,
	})
	if err != nil {
		return nil, err
	}
	return notifier, nil
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
