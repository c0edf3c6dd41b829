package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
)

const (
	TemplatePaymentConfirmed = "payment_confirmed"
	TemplatePaymentRejected  = "payment_rejected"
)

// OrderInfo is the data available to order email templates. Amounts are
// already formatted for display.
type OrderInfo struct {
	OrderNumber     string
	OrderURL        string
	CustomerName    string
	CustomerEmail   string
	ShopName        string
	ShopURL         string
	ShippingAddress string
	OrderDate       string
	Items           []OrderItem
	Subtotal        string
	Delivery        string
	DeliveryLabel   string
	Total           string
	RejectionReason string
}

type OrderItem struct {
	Name       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
}

type emailTemplate struct {
	subject string
	html    string
	text    string
}

var emailTemplates = map[string]emailTemplate{
	TemplatePaymentConfirmed: {
		subject: "Payment Confirmed - Order {{.OrderNumber}} - {{.ShopName}}",
		html:    paymentConfirmedHTML,
		text:    paymentConfirmedText,
	},
	TemplatePaymentRejected: {
		subject: "Payment Could Not Be Verified - Order {{.OrderNumber}}",
		html:    paymentRejectedHTML,
		text:    paymentRejectedText,
	},
}

// Renderer renders the built-in order templates. HTML bodies are escaped with
// html/template since names, addresses and rejection reasons are user input.
type Renderer struct {
	subjects *template.Template
	text     *template.Template
	html     *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	subjects := template.New("subjects")
	text := template.New("text")
	html := htmltemplate.New("html")

	for key, t := range emailTemplates {
		if _, err := subjects.New(key).Parse(t.subject); err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", key, err)
		}
		if _, err := html.New(key).Parse(t.html); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", key, err)
		}
		if _, err := text.New(key).Parse(t.text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
	}

	return &Renderer{subjects: subjects, text: text, html: html}, nil
}

func (r *Renderer) Render(ctx context.Context, templateName string, data *OrderInfo) (*Email, error) {
	_ = ctx
	if data == nil {
		return nil, fmt.Errorf("order info is required")
	}
	if _, ok := emailTemplates[templateName]; !ok {
		return nil, fmt.Errorf("unknown email template %q", templateName)
	}

	var subjectBuf, htmlBuf, textBuf bytes.Buffer
	if err := r.subjects.ExecuteTemplate(&subjectBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := r.html.ExecuteTemplate(&htmlBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.text.ExecuteTemplate(&textBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subjectBuf.String(),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// Send renders templateName and sends it. A nil provider is a no-op.
func Send(ctx context.Context, p Provider, r *Renderer, templateName string, info *OrderInfo) error {
	if p == nil {
		return nil
	}
	if r == nil {
		var err error
		if r, err = NewRenderer(); err != nil {
			return fmt.Errorf("failed to create renderer: %w", err)
		}
	}

	email, err := r.Render(ctx, templateName, info)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	if email.To == "" {
		return fmt.Errorf("order %s has no customer email", info.OrderNumber)
	}

	return p.SendEmail(ctx, email)
}

const paymentConfirmedText = `Hi {{.CustomerName}},

We have confirmed your payment. Your order is now being prepared.

Order Number: {{.OrderNumber}}
Order Date: {{.OrderDate}}

Items:
{{range .Items}}- {{.Name}} x {{.Quantity}} @ {{.UnitPrice}} = {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Delivery{{if .DeliveryLabel}} ({{.DeliveryLabel}}){{end}}: {{.Delivery}}
Total: {{.Total}}

Shipping to:
{{.ShippingAddress}}
{{if .OrderURL}}
View your order: {{.OrderURL}}
{{end}}
Thank you for shopping with {{.ShopName}}!
{{.ShopURL}}
`

const paymentConfirmedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Payment Confirmed</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #059669; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
    .items-table { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items-table th, .items-table td { padding: 10px; text-align: left; border-bottom: 1px solid #e5e7eb; }
    .total { text-align: right; font-weight: bold; }
    .button { display: inline-block; background: #059669; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-top: 15px; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>
  <div class="header">
    <h1>Payment Confirmed</h1>
    <p>Thanks, {{.CustomerName}}! Your order is being prepared.</p>
  </div>
  <div class="content">
    <p><strong>Order Number:</strong> {{.OrderNumber}}<br>
    <strong>Order Date:</strong> {{.OrderDate}}</p>

    <table class="items-table">
      <thead>
        <tr><th>Item</th><th>Qty</th><th>Price</th></tr>
      </thead>
      <tbody>
        {{range .Items}}
        <tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.TotalPrice}}</td></tr>
        {{end}}
      </tbody>
    </table>

    <div class="total">
      <p>Subtotal: {{.Subtotal}}</p>
      <p>Delivery{{if .DeliveryLabel}} ({{.DeliveryLabel}}){{end}}: {{.Delivery}}</p>
      <p>Total: {{.Total}}</p>
    </div>

    <h3>Shipping Address</h3>
    <p>{{.ShippingAddress}}</p>
    {{if .OrderURL}}<p><a href="{{.OrderURL}}" class="button">View your order</a></p>{{end}}
  </div>
  <div class="footer">
    <p>Thank you for shopping with <a href="{{.ShopURL}}">{{.ShopName}}</a></p>
  </div>
</body>
</html>
`

const paymentRejectedText = `Hi {{.CustomerName}},

We could not verify the payment for order {{.OrderNumber}}.

Reason: {{.RejectionReason}}

You can upload a new payment proof from your order page and we will review it again.
{{if .OrderURL}}{{.OrderURL}}
{{end}}
{{.ShopName}}
{{.ShopURL}}
`

const paymentRejectedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Payment Not Verified</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #b91c1c; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
    .reason { background: white; padding: 15px; border-radius: 6px; border-left: 4px solid #b91c1c; margin: 15px 0; }
    .button { display: inline-block; background: #b91c1c; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-top: 15px; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>
  <div class="header">
    <h1>We Could Not Verify Your Payment</h1>
    <p>Order {{.OrderNumber}}</p>
  </div>
  <div class="content">
    <p>Hi {{.CustomerName}},</p>
    <div class="reason"><strong>Reason:</strong> {{.RejectionReason}}</div>
    <p>You can upload a new payment proof from your order page and we will review it again.</p>
    {{if .OrderURL}}<p><a href="{{.OrderURL}}" class="button">Resubmit payment proof</a></p>{{end}}
  </div>
  <div class="footer">
    <p><a href="{{.ShopURL}}">{{.ShopName}}</a></p>
  </div>
</body>
</html>
`
