package services

import (
	"fmt"
	"strings"

	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/money"
)

// ShopInfo describes the storefront in customer-facing messages.
type ShopInfo struct {
	Name     string
	URL      string
	Currency string
}

// BuildOrderInfo builds a consistent OrderInfo payload for email templates.
func BuildOrderInfo(shop ShopInfo, order *models.Order) *email.OrderInfo {
	if order == nil {
		return &email.OrderInfo{ShopName: shop.Name, ShopURL: shop.URL}
	}

	items := make([]email.OrderItem, 0, len(order.CartProducts))
	for _, item := range order.CartProducts {
		items = append(items, email.OrderItem{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  money.Format(item.PriceCents, shop.Currency),
			TotalPrice: money.Format(item.TotalCents(), shop.Currency),
		})
	}

	info := &email.OrderInfo{
		OrderNumber:     OrderNumber(order),
		OrderURL:        orderURL(shop.URL, order),
		CustomerName:    strings.TrimSpace(order.CustomerName),
		CustomerEmail:   strings.TrimSpace(order.CustomerEmail),
		ShopName:        shop.Name,
		ShopURL:         shop.URL,
		ShippingAddress: formatShippingAddress(order.CustomerName, order.ShippingAddress),
		OrderDate:       order.CreatedAt.Format("January 2, 2006"),
		Items:           items,
		Subtotal:        money.Format(order.TotalCents, shop.Currency),
		Delivery:        money.Format(order.DeliveryCostCents, shop.Currency),
		DeliveryLabel:   order.DeliveryType,
		Total:           money.Format(order.GrandTotalCents(), shop.Currency),
	}
	if order.RejectionReason != nil {
		info.RejectionReason = *order.RejectionReason
	}
	return info
}

// OrderNumber is the short customer-facing reference for an order.
func OrderNumber(order *models.Order) string {
	if order == nil {
		return ""
	}
	return "#" + strings.ToUpper(order.ID.String()[:8])
}

func orderURL(baseURL string, order *models.Order) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || order == nil {
		return ""
	}
	return fmt.Sprintf("%s/orders/%s", baseURL, order.ID)
}

func formatShippingAddress(name string, address models.ShippingAddress) string {
	lines := make([]string, 0, 4)
	for _, line := range []string{
		name,
		address.StreetAddress,
		strings.TrimSpace(address.PostalCode + " " + address.City),
		address.Country,
	} {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
