// Package stripe wraps the Stripe checkout API and webhook verification.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// Client creates hosted checkout sessions.
type Client struct {
	client   *stripe.Client
	currency string
}

func NewClient(secretKey, currency string) *Client {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}
	return &Client{
		client:   stripe.NewClient(secretKey),
		currency: currency,
	}
}

type CheckoutLineItem struct {
	Name            string
	Description     string
	Images          []string
	UnitAmountCents int64
	Quantity        int64
}

// CheckoutSessionParams holds parameters for creating a checkout session.
type CheckoutSessionParams struct {
	OrderID       uuid.UUID
	Items         []CheckoutLineItem
	DeliveryLabel string
	DeliveryCents int64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession creates a hosted payment page charging every line item
// at its captured price plus delivery as a fixed shipping rate.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	sessionParams, err := buildCheckoutSessionParams(c.currency, params)
	if err != nil {
		return nil, err
	}

	sess, err := c.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ExpireCheckoutSession closes an open session so the customer can no longer
// pay through it.
func (c *Client) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if _, err := c.client.V1CheckoutSessions.Expire(ctx, sessionID, &stripe.CheckoutSessionExpireParams{}); err != nil {
		return fmt.Errorf("failed to expire checkout session %s: %w", sessionID, err)
	}
	return nil
}

func buildCheckoutSessionParams(currency string, params CheckoutSessionParams) (*stripe.CheckoutSessionCreateParams, error) {
	if len(params.Items) == 0 {
		return nil, fmt.Errorf("checkout session requires at least one line item")
	}
	if params.SuccessURL == "" || params.CancelURL == "" {
		return nil, fmt.Errorf("checkout session requires success and cancel URLs")
	}

	lineItems := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(params.Items))
	for _, item := range params.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("line item %q has invalid quantity %d", item.Name, item.Quantity)
		}
		productData := &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Description != "" {
			productData.Description = stripe.String(item.Description)
		}
		if len(item.Images) > 0 {
			productData.Images = stripe.StringSlice(item.Images)
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				ProductData: productData,
				UnitAmount:  stripe.Int64(item.UnitAmountCents),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	deliveryLabel := params.DeliveryLabel
	if deliveryLabel == "" {
		deliveryLabel = "Delivery"
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(params.SuccessURL),
		CancelURL:          stripe.String(params.CancelURL),
		LineItems:          lineItems,
		ShippingOptions: []*stripe.CheckoutSessionCreateShippingOptionParams{
			{
				ShippingRateData: &stripe.CheckoutSessionCreateShippingOptionShippingRateDataParams{
					DisplayName: stripe.String(deliveryLabel),
					Type:        stripe.String(string(stripe.ShippingRateTypeFixedAmount)),
					FixedAmount: &stripe.CheckoutSessionCreateShippingOptionShippingRateDataFixedAmountParams{
						Amount:   stripe.Int64(params.DeliveryCents),
						Currency: stripe.String(currency),
					},
				},
			},
		},
		ClientReferenceID: stripe.String(params.OrderID.String()),
		Metadata: map[string]string{
			"order_id": params.OrderID.String(),
		},
	}

	// Stripe rejects an empty customer_email.
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	return sessionParams, nil
}

// CheckoutSessionFromEvent decodes the checkout session carried by a
// checkout.session.* event.
func CheckoutSessionFromEvent(event *stripe.Event) (*stripe.CheckoutSession, error) {
	if event == nil || event.Data == nil {
		return nil, fmt.Errorf("event has no data")
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("checkout session id is missing")
	}
	return &session, nil
}
