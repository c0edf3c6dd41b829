package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gitshopapp/storefront/internal/models"
)

// setupTestDB starts a PostgreSQL container, applies the schema, and returns a
// pool that is closed with the container at test cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(ctx) //nolint:errcheck
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Connect(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "schema must apply twice")
	return pool
}

func seedProduct(t *testing.T, store *ProductStore, priceCents int64, stock int) *Product {
	t.Helper()
	product := &Product{Name: "Tea", Description: "Oolong", Images: []string{"https://img/tea.png"}, PriceCents: priceCents, Stock: stock}
	require.NoError(t, store.Upsert(context.Background(), product))
	return product
}

func pendingOrder(userID string, items ...LineItem) *Order {
	var total int64
	for _, item := range items {
		total += item.TotalCents()
	}
	return &Order{
		UserID:        userID,
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		ShippingAddress: ShippingAddress{
			City: "Taipei", PostalCode: "100", StreetAddress: "1 Main St", Country: "TW",
		},
		CartProducts:  items,
		TotalCents:    total,
		Status:        models.StatusPending,
		PaymentMethod: models.PaymentMethodOffline,
	}
}

func TestStores_Postgres(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	orders := NewOrderStore(pool)
	products := NewProductStore(pool)
	settings := NewSettingsStore(pool)

	t.Run("total survives catalog price change", func(t *testing.T) {
		p1 := seedProduct(t, products, 500, 10)
		p2 := seedProduct(t, products, 300, 10)
		order := pendingOrder("user-1",
			LineItem{ProductID: p1.ID, Name: p1.Name, PriceCents: p1.PriceCents, Quantity: 2},
			LineItem{ProductID: p2.ID, Name: p2.Name, PriceCents: p2.PriceCents, Quantity: 1},
		)
		require.NoError(t, orders.Create(ctx, order))
		assert.Equal(t, int64(1300), order.TotalCents)
		assert.Equal(t, 1, order.Version)

		p1.PriceCents = 10000
		require.NoError(t, products.Upsert(ctx, p1))

		stored, err := orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1300), stored.TotalCents)
		assert.Equal(t, int64(500), stored.CartProducts[0].PriceCents)
		assert.Nil(t, stored.RejectionReason)
	})

	t.Run("confirm floors stock at zero and only once", func(t *testing.T) {
		product := seedProduct(t, products, 5000, 2)
		order := pendingOrder("user-2", LineItem{ProductID: product.ID, Name: product.Name, PriceCents: product.PriceCents, Quantity: 5})
		require.NoError(t, orders.Create(ctx, order))

		confirmed, err := orders.ConfirmPayment(ctx, order.ID, 0)
		require.NoError(t, err)
		assert.True(t, confirmed.Paid)
		assert.Equal(t, models.StatusProcessing, confirmed.Status)

		_, err = orders.ConfirmPayment(ctx, order.ID, 0)
		require.ErrorIs(t, err, ErrInvalidStatusTransition)

		stored, err := products.GetByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.Stock)
	})

	t.Run("concurrent confirmations decrement once", func(t *testing.T) {
		product := seedProduct(t, products, 5000, 10)
		order := pendingOrder("user-3", LineItem{ProductID: product.ID, PriceCents: product.PriceCents, Quantity: 1})
		require.NoError(t, orders.Create(ctx, order))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := orders.ConfirmPayment(ctx, order.ID, 0); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		stored, err := products.GetByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, stored.Stock)
	})

	t.Run("reject then resubmit clears reason", func(t *testing.T) {
		order := pendingOrder("user-4")
		order.PaymentProofURL = "https://proofs/1.png"
		require.NoError(t, orders.Create(ctx, order))

		rejected, err := orders.RejectPayment(ctx, order.ID, "bad proof", 0)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, rejected.Status)
		require.NotNil(t, rejected.RejectionReason)
		assert.Equal(t, "bad proof", *rejected.RejectionReason)

		resubmitted, err := orders.ResubmitPaymentProof(ctx, order.ID, "https://proofs/2.png")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, resubmitted.Status)
		assert.Nil(t, resubmitted.RejectionReason)
		assert.Equal(t, "https://proofs/2.png", resubmitted.PaymentProofURL)
		assert.False(t, resubmitted.Paid)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		order := pendingOrder("user-5")
		require.NoError(t, orders.Create(ctx, order))

		_, err := orders.RejectPayment(ctx, order.ID, "late", order.Version+1)
		require.ErrorIs(t, err, ErrVersionConflict)

		stored, err := orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, stored.Status)
	})

	t.Run("deliver requires processing", func(t *testing.T) {
		order := pendingOrder("user-6")
		require.NoError(t, orders.Create(ctx, order))

		_, err := orders.MarkDelivered(ctx, order.ID, 0)
		require.ErrorIs(t, err, ErrInvalidStatusTransition)

		_, err = orders.MarkDelivered(ctx, uuid.New(), 0)
		require.ErrorIs(t, err, pgx.ErrNoRows)
	})

	t.Run("checkout session completion", func(t *testing.T) {
		order := pendingOrder("user-7")
		order.PaymentMethod = models.PaymentMethodOnline
		require.NoError(t, orders.Create(ctx, order))
		require.NoError(t, orders.SetCheckoutSession(ctx, order.ID, "cs_test_"+order.ID.String()))

		completed, err := orders.RecordCheckoutCompleted(ctx, "cs_test_"+order.ID.String(), "pi_123")
		require.NoError(t, err)
		assert.Equal(t, "pi_123", completed.StripePaymentIntentID)
		assert.NotNil(t, completed.GatewayCompletedAt)
		assert.False(t, completed.Paid)
	})

	t.Run("delete is hard", func(t *testing.T) {
		order := pendingOrder("user-8")
		require.NoError(t, orders.Create(ctx, order))
		require.NoError(t, orders.Delete(ctx, order.ID))

		_, err := orders.GetByID(ctx, order.ID)
		assert.True(t, errors.Is(err, pgx.ErrNoRows))
		assert.ErrorIs(t, orders.Delete(ctx, order.ID), pgx.ErrNoRows)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		list, total, err := orders.List(ctx, ListOrdersParams{Status: models.StatusCancelled, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, len(list), total)
		for _, order := range list {
			assert.Equal(t, models.StatusCancelled, order.Status)
		}

		page, total, err := orders.List(ctx, ListOrdersParams{Limit: 2, Offset: 0})
		require.NoError(t, err)
		assert.Len(t, page, 2)
		assert.Greater(t, total, 2)
		assert.False(t, page[0].CreatedAt.Before(page[1].CreatedAt))
	})

	t.Run("delivery settings round trip", func(t *testing.T) {
		_, err := settings.GetDeliverySettings(ctx)
		require.ErrorIs(t, err, pgx.ErrNoRows)

		threshold := int64(10000)
		want := &DeliverySettings{
			FreeDeliveryThresholdCents: &threshold,
			DefaultType:                "standard",
			Types: map[string]models.DeliveryType{
				"standard": {Label: "Standard", CostCents: 500},
			},
		}
		require.NoError(t, settings.PutDeliverySettings(ctx, want))
		got, err := settings.GetDeliverySettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestStockAdjustmentsMergesAndSorts(t *testing.T) {
	t.Parallel()

	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	adjustments := stockAdjustments([]LineItem{
		{ProductID: a, Quantity: 2},
		{ProductID: b, Quantity: 1},
		{ProductID: a, Quantity: 3},
		{ProductID: b, Quantity: 0},
		{ProductID: uuid.Nil, Quantity: 4},
	})

	if len(adjustments) != 2 {
		t.Fatalf("stockAdjustments() returned %d entries, want 2", len(adjustments))
	}
	if adjustments[0].productID != b || adjustments[0].quantity != 1 {
		t.Fatalf("first adjustment = %+v, want %s x1", adjustments[0], b)
	}
	if adjustments[1].productID != a || adjustments[1].quantity != 5 {
		t.Fatalf("second adjustment = %+v, want %s x5", adjustments[1], a)
	}
}
