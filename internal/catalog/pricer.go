package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
)

var ErrUnknownDeliveryType = errors.New("unknown delivery type")

// CartItem is one requested product and quantity.
type CartItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// ProductIDs returns the distinct product ids referenced by the cart, in first
// seen order.
func ProductIDs(items []CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// BuildLineItems snapshots the current catalog price and display fields for
// each cart item and returns the items with their total. Items whose product
// is absent from products, or whose quantity is not positive, are skipped.
func BuildLineItems(items []CartItem, products map[uuid.UUID]*models.Product) ([]models.LineItem, int64) {
	lineItems := make([]models.LineItem, 0, len(items))
	var total int64
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		product, ok := products[item.ProductID]
		if !ok || product == nil {
			continue
		}

		var images []string
		if len(product.Images) > 0 {
			images = append(images, product.Images...)
		}
		lineItem := models.LineItem{
			ProductID:   product.ID,
			Name:        product.Name,
			Description: product.Description,
			Images:      images,
			PriceCents:  product.PriceCents,
			Quantity:    item.Quantity,
		}
		total += lineItem.TotalCents()
		lineItems = append(lineItems, lineItem)
	}
	return lineItems, total
}

// ResolveDeliveryType returns the configured type for name, falling back to the
// default type when name is empty.
func ResolveDeliveryType(settings *models.DeliverySettings, name string) (string, models.DeliveryType, error) {
	if settings == nil {
		return "", models.DeliveryType{}, fmt.Errorf("delivery settings are required")
	}
	if name == "" {
		name = settings.DefaultType
	}
	deliveryType, ok := settings.Types[name]
	if !ok {
		return "", models.DeliveryType{}, fmt.Errorf("%w: %q", ErrUnknownDeliveryType, name)
	}
	return name, deliveryType, nil
}

// ComputeDeliveryCost prices delivery for a cart subtotal. Subtotals at or
// above the free-delivery threshold ship for free. It has no side effects so
// previews and order creation always agree.
func ComputeDeliveryCost(subtotalCents int64, deliveryType string, settings *models.DeliverySettings) (int64, error) {
	_, resolved, err := ResolveDeliveryType(settings, deliveryType)
	if err != nil {
		return 0, err
	}
	if threshold := settings.FreeDeliveryThresholdCents; threshold != nil && subtotalCents >= *threshold {
		return 0, nil
	}
	return resolved.CostCents, nil
}
