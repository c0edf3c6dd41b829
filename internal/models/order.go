package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order states.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodOnline  PaymentMethod = "online"
	PaymentMethodOffline PaymentMethod = "offline"
)

type ShippingAddress struct {
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	StreetAddress string `json:"streetAddress"`
	Country       string `json:"country"`
}

// LineItem is a product snapshot taken when the order was created. It is never
// refreshed from the live catalog.
type LineItem struct {
	ProductID   uuid.UUID `json:"productId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Images      []string  `json:"images,omitempty"`
	PriceCents  int64     `json:"priceCents"`
	Quantity    int       `json:"quantity"`
}

func (li LineItem) TotalCents() int64 {
	return li.PriceCents * int64(li.Quantity)
}

type Order struct {
	ID                      uuid.UUID       `json:"id"`
	UserID                  string          `json:"user"`
	CustomerName            string          `json:"name"`
	CustomerEmail           string          `json:"email"`
	ShippingAddress         ShippingAddress `json:"shippingAddress"`
	CartProducts            []LineItem      `json:"cartProducts"`
	TotalCents              int64           `json:"totalCents"`
	DeliveryType            string          `json:"deliveryType"`
	DeliveryCostCents       int64           `json:"deliveryCostCents"`
	Paid                    bool            `json:"paid"`
	Status                  OrderStatus     `json:"status"`
	PaymentMethod           PaymentMethod   `json:"paymentMethod"`
	PaymentProofURL         string          `json:"paymentProofUrl,omitempty"`
	PaymentReference        string          `json:"paymentReference,omitempty"`
	PaymentDate             *time.Time      `json:"paymentDate,omitempty"`
	RejectionReason         *string         `json:"rejectionReason"`
	StripeCheckoutSessionID string          `json:"stripeCheckoutSessionId,omitempty"`
	StripePaymentIntentID   string          `json:"stripePaymentIntentId,omitempty"`
	GatewayCompletedAt      *time.Time      `json:"gatewayCompletedAt,omitempty"`
	Version                 int             `json:"version"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

// GrandTotalCents is the amount charged: the immutable item total plus the
// delivery cost fixed at creation.
func (o *Order) GrandTotalCents() int64 {
	if o == nil {
		return 0
	}
	return o.TotalCents + o.DeliveryCostCents
}

func (o *Order) IsOwnedBy(userID string) bool {
	return o != nil && userID != "" && o.UserID == userID
}
