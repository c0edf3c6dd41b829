package catalog

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/money"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(file *File) error {
	if file == nil {
		return fmt.Errorf("catalog is empty")
	}
	if err := v.validateShop(&file.Shop); err != nil {
		return fmt.Errorf("shop validation failed: %w", err)
	}
	if err := v.validateDelivery(&file.Delivery); err != nil {
		return fmt.Errorf("delivery validation failed: %w", err)
	}

	if len(file.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	ids := make(map[uuid.UUID]bool)
	for i, product := range file.Products {
		id, err := v.validateProduct(&product)
		if err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}

		if ids[id] {
			return fmt.Errorf("duplicate product id: %s", id)
		}
		ids[id] = true
	}

	return nil
}

func (v *Validator) validateShop(shop *ShopConfig) error {
	if strings.TrimSpace(shop.Name) == "" {
		return fmt.Errorf("shop name is required")
	}
	if strings.TrimSpace(shop.Currency) == "" {
		return fmt.Errorf("shop currency is required")
	}
	return nil
}

func (v *Validator) validateDelivery(delivery *DeliveryConfig) error {
	if strings.TrimSpace(delivery.FreeThreshold) != "" {
		if _, err := money.ParseCents(delivery.FreeThreshold); err != nil {
			return fmt.Errorf("free threshold: %w", err)
		}
	}

	if len(delivery.Types) == 0 {
		return fmt.Errorf("at least one delivery type is required")
	}
	if _, ok := delivery.Types[delivery.DefaultType]; !ok {
		return fmt.Errorf("default type %q is not a configured delivery type", delivery.DefaultType)
	}

	for name, deliveryType := range delivery.Types {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("delivery type name is required")
		}
		if strings.TrimSpace(deliveryType.Label) == "" {
			return fmt.Errorf("delivery type %s label is required", name)
		}
		if _, err := money.ParseCents(deliveryType.Cost); err != nil {
			return fmt.Errorf("delivery type %s cost: %w", name, err)
		}
	}
	return nil
}

func (v *Validator) validateProduct(product *ProductConfig) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(product.ID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("product id must be a UUID: %w", err)
	}

	if strings.TrimSpace(product.Name) == "" {
		return uuid.Nil, fmt.Errorf("product name is required")
	}

	cents, err := money.ParseCents(product.Price)
	if err != nil {
		return uuid.Nil, fmt.Errorf("product price: %w", err)
	}
	if cents <= 0 {
		return uuid.Nil, fmt.Errorf("product price must be positive")
	}

	if product.Stock < 0 {
		return uuid.Nil, fmt.Errorf("product stock must be zero or positive")
	}

	return id, nil
}
