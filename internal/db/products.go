package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// GetByIDs returns the products that exist among ids, keyed by id. Unknown ids
// are simply absent from the result.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error) {
	found := make(map[uuid.UUID]*Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, images, price_cents, stock, updated_at
		FROM products
		WHERE id = ANY($1::uuid[])`,
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		found[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return found, nil
}

func (s *ProductStore) GetByID(ctx context.Context, productID uuid.UUID) (*Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, images, price_cents, stock, updated_at
		FROM products
		WHERE id = $1`,
		productID,
	)
	return scanProduct(row)
}

// Upsert writes the catalog entry for a product. Stock is only set on insert;
// afterwards it is owned by payment confirmation. Existing orders keep their
// own line item snapshots and are unaffected by price changes made here.
func (s *ProductStore) Upsert(ctx context.Context, product *Product) error {
	if product == nil {
		return fmt.Errorf("product is required")
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	images := product.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("failed to encode product images: %w", err)
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, description, images, price_cents, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			images = EXCLUDED.images,
			price_cents = EXCLUDED.price_cents,
			updated_at = now()
		RETURNING stock, updated_at`,
		product.ID,
		product.Name,
		product.Description,
		imagesJSON,
		product.PriceCents,
		product.Stock,
	).Scan(&product.Stock, &product.UpdatedAt)
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		product    Product
		imagesJSON []byte
	)
	if err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&imagesJSON,
		&product.PriceCents,
		&product.Stock,
		&product.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &product.Images); err != nil {
			return nil, fmt.Errorf("failed to decode product images: %w", err)
		}
	}
	return &product, nil
}
