package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/money"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product *models.Product) error
}

type SettingsWriter interface {
	PutDeliverySettings(ctx context.Context, settings *models.DeliverySettings) error
}

// Syncer loads the catalog file and writes products and delivery settings to
// the store.
type Syncer struct {
	source    Source
	parser    *Parser
	validator *Validator
	products  ProductWriter
	settings  SettingsWriter
	logger    *slog.Logger
}

func NewSyncer(source Source, products ProductWriter, settings SettingsWriter, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		source:    source,
		parser:    NewParser(),
		validator: NewValidator(),
		products:  products,
		settings:  settings,
		logger:    logger.With("component", "catalog_syncer"),
	}
}

type SyncResult struct {
	Products int
}

func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	content, err := s.source.Fetch(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	file, err := s.parser.Parse(content)
	if err != nil {
		return SyncResult{}, err
	}
	if err := s.validator.Validate(file); err != nil {
		return SyncResult{}, fmt.Errorf("invalid catalog %s: %w", s.source, err)
	}

	settings, err := DeliverySettingsFromFile(file)
	if err != nil {
		return SyncResult{}, err
	}
	if err := s.settings.PutDeliverySettings(ctx, settings); err != nil {
		return SyncResult{}, fmt.Errorf("failed to store delivery settings: %w", err)
	}

	products, err := ProductsFromFile(file)
	if err != nil {
		return SyncResult{}, err
	}
	for _, product := range products {
		if err := s.products.Upsert(ctx, product); err != nil {
			return SyncResult{}, fmt.Errorf("failed to store product %s: %w", product.ID, err)
		}
	}

	s.logger.InfoContext(ctx, "catalog synced", "source", s.source.String(), "products", len(products))
	return SyncResult{Products: len(products)}, nil
}

// DeliverySettingsFromFile converts the decimal amounts in a validated file to cents.
func DeliverySettingsFromFile(file *File) (*models.DeliverySettings, error) {
	settings := &models.DeliverySettings{
		DefaultType: file.Delivery.DefaultType,
		Types:       make(map[string]models.DeliveryType, len(file.Delivery.Types)),
	}
	if strings.TrimSpace(file.Delivery.FreeThreshold) != "" {
		threshold, err := money.ParseCents(file.Delivery.FreeThreshold)
		if err != nil {
			return nil, fmt.Errorf("free threshold: %w", err)
		}
		settings.FreeDeliveryThresholdCents = &threshold
	}
	for name, deliveryType := range file.Delivery.Types {
		cost, err := money.ParseCents(deliveryType.Cost)
		if err != nil {
			return nil, fmt.Errorf("delivery type %s cost: %w", name, err)
		}
		settings.Types[name] = models.DeliveryType{Label: deliveryType.Label, CostCents: cost}
	}
	return settings, nil
}

func ProductsFromFile(file *File) ([]*models.Product, error) {
	products := make([]*models.Product, 0, len(file.Products))
	for _, entry := range file.Products {
		id, err := uuid.Parse(strings.TrimSpace(entry.ID))
		if err != nil {
			return nil, fmt.Errorf("product %q id: %w", entry.Name, err)
		}
		price, err := money.ParseCents(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("product %s price: %w", id, err)
		}
		products = append(products, &models.Product{
			ID:          id,
			Name:        strings.TrimSpace(entry.Name),
			Description: strings.TrimSpace(entry.Description),
			Images:      entry.Images,
			PriceCents:  price,
			Stock:       entry.Stock,
		})
	}
	return products, nil
}
