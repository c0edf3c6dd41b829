package services

import (
	"context"
	"fmt"

	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/models"
)

// OrderNotifier sends the transactional emails of the fulfillment workflow.
// Callers treat failures as best effort.
type OrderNotifier interface {
	SendPaymentConfirmed(ctx context.Context, order *models.Order) error
	SendPaymentRejected(ctx context.Context, order *models.Order) error
}

type EmailOrderNotifier struct {
	provider email.Provider
	renderer *email.Renderer
	shop     ShopInfo
}

// NewEmailOrderNotifier returns a notifier that drops every message when
// provider is nil.
func NewEmailOrderNotifier(provider email.Provider, renderer *email.Renderer, shop ShopInfo) (*EmailOrderNotifier, error) {
	if renderer == nil {
		var err error
		renderer, err = email.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("failed to build email renderer: %w", err)
		}
	}
	return &EmailOrderNotifier{
		provider: provider,
		renderer: renderer,
		shop:     shop,
	}, nil
}

func (n *EmailOrderNotifier) SendPaymentConfirmed(ctx context.Context, order *models.Order) error {
	return n.send(ctx, email.TemplatePaymentConfirmed, order)
}

func (n *EmailOrderNotifier) SendPaymentRejected(ctx context.Context, order *models.Order) error {
	return n.send(ctx, email.TemplatePaymentRejected, order)
}

func (n *EmailOrderNotifier) send(ctx context.Context, templateName string, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	return email.Send(ctx, n.provider, n.renderer, templateName, BuildOrderInfo(n.shop, order))
}

type noopOrderNotifier struct{}

func (noopOrderNotifier) SendPaymentConfirmed(context.Context, *models.Order) error {
	return nil
}

func (noopOrderNotifier) SendPaymentRejected(context.Context, *models.Order) error {
	return nil
}
