package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const deliverySettingsKey = "delivery"

type SettingsStore struct {
	pool *pgxpool.Pool
}

func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// GetDeliverySettings returns pgx.ErrNoRows when the settings have never been
// written.
func (s *SettingsStore) GetDeliverySettings(ctx context.Context) (*DeliverySettings, error) {
	var raw []byte
	if err := s.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`,
		deliverySettingsKey,
	).Scan(&raw); err != nil {
		return nil, err
	}

	var settings DeliverySettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode delivery settings: %w", err)
	}
	return &settings, nil
}

func (s *SettingsStore) PutDeliverySettings(ctx context.Context, settings *DeliverySettings) error {
	if settings == nil {
		return fmt.Errorf("delivery settings are required")
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode delivery settings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		deliverySettingsKey, raw,
	)
	return err
}
