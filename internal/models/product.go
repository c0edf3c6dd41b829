package models

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	PriceCents  int64     `json:"priceCents"`
	Stock       int       `json:"stock"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type DeliveryType struct {
	Label     string `json:"label"`
	CostCents int64  `json:"costCents"`
}

// DeliverySettings is the pricing table read from the settings store. A nil
// FreeDeliveryThresholdCents means every order pays for delivery; a zero
// threshold makes every order ship free.
type DeliverySettings struct {
	FreeDeliveryThresholdCents *int64                  `json:"freeDeliveryThresholdCents,omitempty"`
	DefaultType                string                  `json:"defaultType"`
	Types                      map[string]DeliveryType `json:"types"`
}
