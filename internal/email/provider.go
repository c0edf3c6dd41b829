// Package email sends order notifications through a transactional email
// provider.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/observability"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
	Domain   string // For Mailgun
}

// NewProvider returns nil without error when no provider is configured; sends
// are then skipped.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "":
		return nil, nil
	case "postmark":
		return NewPostmarkProvider(config.APIKey, config.From), nil
	case "mailgun":
		return NewMailgunProvider(config.APIKey, config.Domain, config.From), nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be either 'postmark', 'mailgun', or 'resend'")
	}
}

const (
	sendTimeout     = 30 * time.Second
	validateTimeout = 10 * time.Second
)

var httpClient = observability.NewHTTPClient(0)
