package db

import "github.com/gitshopapp/storefront/internal/models"

type (
	Order            = models.Order
	OrderStatus      = models.OrderStatus
	LineItem         = models.LineItem
	ShippingAddress  = models.ShippingAddress
	Product          = models.Product
	DeliverySettings = models.DeliverySettings
)
