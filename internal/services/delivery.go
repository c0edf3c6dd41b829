package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
)

const deliverySettingsCacheKey = "settings:delivery"

var ErrDeliveryNotConfigured = errors.New("delivery settings are not configured")

type deliverySettingsReader interface {
	GetDeliverySettings(ctx context.Context) (*models.DeliverySettings, error)
}

// DeliveryQuote is the delivery pricing fixed onto an order at creation.
type DeliveryQuote struct {
	Type      string
	Label     string
	CostCents int64
}

// DeliveryPricing reads the delivery table through a short-lived cache and
// prices carts against it.
type DeliveryPricing struct {
	settings deliverySettingsReader
	cache    cache.Provider
	ttl      time.Duration
	logger   *slog.Logger
}

func NewDeliveryPricing(settings deliverySettingsReader, cacheProvider cache.Provider, ttl time.Duration, logger *slog.Logger) *DeliveryPricing {
	return &DeliveryPricing{
		settings: settings,
		cache:    cacheProvider,
		ttl:      ttl,
		logger:   logger,
	}
}

func (d *DeliveryPricing) Settings(ctx context.Context) (*models.DeliverySettings, error) {
	logger := logging.FromContext(ctx, d.logger)

	if d.cache != nil {
		var cached models.DeliverySettings
		err := cache.GetJSON(ctx, d.cache, deliverySettingsCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("failed to read cached delivery settings", "error", err)
		}
	}

	settings, err := d.settings.GetDeliverySettings(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotConfigured
		}
		return nil, fmt.Errorf("failed to load delivery settings: %w", err)
	}

	if d.cache != nil && d.ttl > 0 {
		if err := cache.SetJSON(ctx, d.cache, deliverySettingsCacheKey, settings, d.ttl); err != nil {
			logger.Warn("failed to cache delivery settings", "error", err)
		}
	}
	return settings, nil
}

// Quote prices delivery for subtotalCents. An empty deliveryType selects the
// configured default; an unknown one is a validation error.
func (d *DeliveryPricing) Quote(ctx context.Context, subtotalCents int64, deliveryType string) (DeliveryQuote, error) {
	settings, err := d.Settings(ctx)
	if err != nil {
		return DeliveryQuote{}, err
	}

	name, resolved, err := catalog.ResolveDeliveryType(settings, deliveryType)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownDeliveryType) {
			return DeliveryQuote{}, ValidationErrors{{Field: "deliveryType", Message: "unknown delivery type"}}
		}
		return DeliveryQuote{}, err
	}

	cost, err := catalog.ComputeDeliveryCost(subtotalCents, name, settings)
	if err != nil {
		return DeliveryQuote{}, err
	}
	return DeliveryQuote{Type: name, Label: resolved.Label, CostCents: cost}, nil
}

// Invalidate drops the cached table so the next read goes to the store.
func (d *DeliveryPricing) Invalidate(ctx context.Context) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Delete(ctx, deliverySettingsCacheKey); err != nil {
		logging.FromContext(ctx, d.logger).Warn("failed to invalidate delivery settings cache", "error", err)
	}
}
