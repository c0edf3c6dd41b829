package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	BaseURL     string `env:"BASE_URL,required" validate:"required,url"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY,required" validate:"required"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	Currency            string `env:"CURRENCY" envDefault:"usd" validate:"required,len=3,alpha"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	EncryptionKey   string        `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`
	TokenSigningKey string        `env:"TOKEN_SIGNING_KEY,required" validate:"required,min=32"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"15m" validate:"gt=0"`

	GitHubClientID     string   `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string   `env:"GITHUB_CLIENT_SECRET"`
	AdminGitHubLogins  []string `env:"ADMIN_GITHUB_LOGINS" envSeparator:","`

	EmailProvider    string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=postmark mailgun resend"`
	EmailAPIKey      string `env:"EMAIL_API_KEY" validate:"required_with=EmailProvider"`
	EmailFromAddress string `env:"EMAIL_FROM" validate:"omitempty,email"`
	EmailDomain      string `env:"EMAIL_DOMAIN" validate:"required_if=EmailProvider mailgun"`
	ShopName         string `env:"SHOP_NAME" envDefault:"Storefront" validate:"required"`

	CatalogSource string `env:"CATALOG_SOURCE"`
	AWSRegion     string `env:"AWS_REGION"`

	OrderListCacheTTL        time.Duration `env:"ORDER_LIST_CACHE_TTL" envDefault:"30s" validate:"gte=0"`
	DeliverySettingsCacheTTL time.Duration `env:"DELIVERY_SETTINGS_CACHE_TTL" envDefault:"5m" validate:"gte=0"`

	SentryDSN         string `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasGitHubClientID := strings.TrimSpace(c.GitHubClientID) != ""
	hasGitHubClientSecret := strings.TrimSpace(c.GitHubClientSecret) != ""
	if hasGitHubClientID != hasGitHubClientSecret {
		return fmt.Errorf("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}

	if strings.TrimSpace(c.EmailProvider) != "" && strings.TrimSpace(c.EmailFromAddress) == "" {
		return fmt.Errorf("EMAIL_FROM is required when EMAIL_PROVIDER is set")
	}

	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	if c.CatalogFromS3() && strings.TrimSpace(c.AWSRegion) == "" {
		return fmt.Errorf("AWS_REGION is required when CATALOG_SOURCE is an s3:// location")
	}

	return nil
}

// CatalogFromS3 reports whether the catalog file is read from S3.
func (c *Config) CatalogFromS3() bool {
	return strings.HasPrefix(strings.TrimSpace(c.CatalogSource), "s3://")
}

// IsAdminLogin reports whether a GitHub login is listed in ADMIN_GITHUB_LOGINS.
func (c *Config) IsAdminLogin(login string) bool {
	login = strings.TrimSpace(login)
	if login == "" {
		return false
	}
	for _, admin := range c.AdminGitHubLogins {
		if strings.EqualFold(strings.TrimSpace(admin), login) {
			return true
		}
	}
	return false
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
