package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gitshopapp/storefront/internal/crypto"
)

const redisKeyPrefix = "session:"

// RedisStore keeps sessions in Redis, sealed so that a leaked dump does not
// expose customer identities.
type RedisStore struct {
	client *redis.Client
	sealer crypto.Sealer
}

func NewRedisStore(ctx context.Context, connectionString string, sealer crypto.Sealer) (*RedisStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("redis session store requires a sealer")
	}

	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w (and failed to close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, sealer: sealer}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Data, bool) {
	if r == nil || r.client == nil || key == "" || ctx == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sealed, err := r.client.Get(ctx, redisSessionKey(key)).Result()
	if err != nil {
		return nil, false
	}

	return openData(r.sealer, key, sealed)
}

func (r *RedisStore) Set(ctx context.Context, key string, data *Data, ttl time.Duration) {
	if r == nil || r.client == nil || key == "" || data == nil || ctx == nil {
		return
	}

	sealed, err := sealData(r.sealer, key, data)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_ = r.client.Set(ctx, redisSessionKey(key), sealed, ttl).Err() //nolint:errcheck
}

func (r *RedisStore) Delete(ctx context.Context, key string) {
	if r == nil || r.client == nil || key == "" || ctx == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_ = r.client.Del(ctx, redisSessionKey(key)).Err() //nolint:errcheck
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func redisSessionKey(id string) string {
	return redisKeyPrefix + id
}

// The session id is the seal label, so a payload moved to another key fails
// to open.
func sealData(sealer crypto.Sealer, key string, data *Data) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return sealer.Seal(raw, redisSessionKey(key))
}

func openData(sealer crypto.Sealer, key, sealed string) (*Data, bool) {
	raw, err := sealer.Open(sealed, redisSessionKey(key))
	if err != nil {
		return nil, false
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false
	}
	return &data, true
}
