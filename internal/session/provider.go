package session

import (
	"context"
	"fmt"

	"github.com/gitshopapp/storefront/internal/crypto"
)

type Config struct {
	Provider              string
	RedisConnectionString string
	// Sealer encrypts session payloads at rest. Required for redis.
	Sealer crypto.Sealer
}

func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisConnectionString, cfg.Sealer)
	default:
		return nil, fmt.Errorf("unsupported session store provider: %s", cfg.Provider)
	}
}
