package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/stripe"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore mirrors the guarded transitions of db.OrderStore in memory.
type fakeStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*models.Order
	products  map[uuid.UUID]*models.Product
	clock     time.Time
	createErr error
	deleteErr error
	attachErr error
	deleted   []uuid.UUID
	// afterList runs once the listing has been read, standing in for a
	// write that commits while the query is in flight.
	afterList func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[uuid.UUID]*models.Order),
		products: make(map[uuid.UUID]*models.Product),
		clock:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addProduct(name string, priceCents int64, stock int) *models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	product := &models.Product{ID: uuid.New(), Name: name, PriceCents: priceCents, Stock: stock}
	f.products[product.ID] = product
	return product
}

func (f *fakeStore) stock(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (f *fakeStore) setPrice(id uuid.UUID, priceCents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id].PriceCents = priceCents
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeStore) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := make(map[uuid.UUID]*models.Product, len(ids))
	for _, id := range ids {
		if product, ok := f.products[id]; ok {
			cloned := *product
			found[id] = &cloned
		}
	}
	return found, nil
}

func (f *fakeStore) Create(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	f.clock = f.clock.Add(time.Second)
	order.Version = 1
	order.CreatedAt = f.clock
	order.UpdatedAt = f.clock
	f.orders[order.ID] = cloneOrder(order)
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneOrder(order), nil
}

func (f *fakeStore) List(_ context.Context, params db.ListOrdersParams) ([]*models.Order, int, error) {
	orders, total, hook := f.list(params)
	if hook != nil {
		hook()
	}
	return orders, total, nil
}

func (f *fakeStore) list(params db.ListOrdersParams) ([]*models.Order, int, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hook := f.afterList
	f.afterList = nil
	var matched []*models.Order
	for _, order := range f.orders {
		if params.Status == "" || order.Status == params.Status {
			matched = append(matched, cloneOrder(order))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if params.Offset >= total {
		return []*models.Order{}, total, hook
	}
	end := params.Offset + params.Limit
	if end > total {
		end = total
	}
	return matched[params.Offset:end], total, hook
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.orders[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.orders, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) SetCheckoutSession(_ context.Context, id uuid.UUID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	order, ok := f.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	order.StripeCheckoutSessionID = sessionID
	order.Version++
	return nil
}

func (f *fakeStore) RecordCheckoutCompleted(_ context.Context, sessionID, paymentIntentID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.StripeCheckoutSessionID != sessionID {
			continue
		}
		if paymentIntentID != "" {
			order.StripePaymentIntentID = paymentIntentID
		}
		if order.GatewayCompletedAt == nil {
			completed := f.clock
			order.GatewayCompletedAt = &completed
		}
		order.Version++
		return cloneOrder(order), nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) ConfirmPayment(_ context.Context, id uuid.UUID, expectedVersion int) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, err := f.guard(id, models.StatusPending, expectedVersion)
	if err != nil {
		return nil, err
	}
	for _, item := range order.CartProducts {
		if product, ok := f.products[item.ProductID]; ok {
			product.Stock -= item.Quantity
			if product.Stock < 0 {
				product.Stock = 0
			}
		}
	}
	order.Paid = true
	order.Status = models.StatusProcessing
	order.Version++
	return cloneOrder(order), nil
}

func (f *fakeStore) RejectPayment(_ context.Context, id uuid.UUID, reason string, expectedVersion int) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, err := f.guard(id, models.StatusPending, expectedVersion)
	if err != nil {
		return nil, err
	}
	order.Status = models.StatusCancelled
	order.RejectionReason = &reason
	order.Version++
	return cloneOrder(order), nil
}

func (f *fakeStore) MarkDelivered(_ context.Context, id uuid.UUID, expectedVersion int) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, err := f.guard(id, models.StatusProcessing, expectedVersion)
	if err != nil {
		return nil, err
	}
	order.Status = models.StatusDelivered
	order.Version++
	return cloneOrder(order), nil
}

func (f *fakeStore) ResubmitPaymentProof(_ context.Context, id uuid.UUID, proofURL string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, err := f.guard(id, models.StatusCancelled, 0)
	if err != nil {
		return nil, err
	}
	order.Status = models.StatusPending
	order.PaymentProofURL = proofURL
	order.RejectionReason = nil
	order.Version++
	return cloneOrder(order), nil
}

func (f *fakeStore) guard(id uuid.UUID, from models.OrderStatus, expectedVersion int) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if order.Status != from {
		return nil, fmt.Errorf("%w: expected %s, found %s", db.ErrInvalidStatusTransition, from, order.Status)
	}
	if expectedVersion > 0 && order.Version != expectedVersion {
		return nil, fmt.Errorf("%w: expected %d, found %d", db.ErrVersionConflict, expectedVersion, order.Version)
	}
	return order, nil
}

func cloneOrder(order *models.Order) *models.Order {
	cloned := *order
	cloned.CartProducts = append([]models.LineItem(nil), order.CartProducts...)
	if order.RejectionReason != nil {
		reason := *order.RejectionReason
		cloned.RejectionReason = &reason
	}
	return &cloned
}

type fakeGateway struct {
	mu        sync.Mutex
	err       error
	expireErr error
	params    []stripe.CheckoutSessionParams
	expired   []string
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.params = append(g.params, params)
	if g.err != nil {
		return nil, g.err
	}
	id := "cs_test_" + params.OrderID.String()
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expireErr != nil {
		return g.expireErr
	}
	g.expired = append(g.expired, sessionID)
	return nil
}

type fakeSettings struct {
	settings *models.DeliverySettings
	reads    int
}

func (f *fakeSettings) GetDeliverySettings(context.Context) (*models.DeliverySettings, error) {
	f.reads++
	if f.settings == nil {
		return nil, pgx.ErrNoRows
	}
	cloned := *f.settings
	return &cloned, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	err       error
	confirmed []uuid.UUID
	rejected  []uuid.UUID
}

func (n *fakeNotifier) SendPaymentConfirmed(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, order.ID)
	return n.err
}

func (n *fakeNotifier) SendPaymentRejected(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, order.ID)
	return n.err
}

func standardDelivery() *models.DeliverySettings {
	threshold := int64(10000)
	return &models.DeliverySettings{
		FreeDeliveryThresholdCents: &threshold,
		DefaultType:                "standard",
		Types: map[string]models.DeliveryType{
			"standard": {Label: "Standard", CostCents: 500},
			"express":  {Label: "Express", CostCents: 1500},
		},
	}
}

func newMemoryCache(t *testing.T) cache.Provider {
	t.Helper()
	provider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	return provider
}

type testEnv struct {
	store    *fakeStore
	gateway  *fakeGateway
	settings *fakeSettings
	notifier *fakeNotifier
	checkout *CheckoutService
	orders   *FulfillmentService
	stripe   *StripeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider := newMemoryCache(t)
	listCache := cache.NewNamespace(provider, "orders")
	env := &testEnv{
		store:    newFakeStore(),
		gateway:  &fakeGateway{},
		settings: &fakeSettings{settings: standardDelivery()},
		notifier: &fakeNotifier{},
	}

	checkout, err := NewCheckoutService(CheckoutDependencies{
		Orders:    env.store,
		Products:  env.store,
		Gateway:   env.gateway,
		Delivery:  NewDeliveryPricing(env.settings, provider, time.Minute, discardLogger()),
		ListCache: listCache,
		BaseURL:   "https://shop.example.com/",
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewCheckoutService() error = %v", err)
	}
	env.checkout = checkout
	env.orders = NewFulfillmentService(env.store, listCache, time.Minute, env.notifier, discardLogger())
	env.stripe = NewStripeService(env.store, listCache, discardLogger())
	return env
}

func checkoutInput(items ...catalogItem) CheckoutInput {
	input := CheckoutInput{
		UserID: "github:1",
		Name:   "Ada Lovelace",
		Email:  "ada@example.com",
		ShippingAddress: models.ShippingAddress{
			City:          "Taipei",
			PostalCode:    "100",
			StreetAddress: "1 Main St",
			Country:       "TW",
		},
	}
	for _, item := range items {
		input.Items = append(input.Items, item.cartItem())
	}
	return input
}

func offlineInput(items ...catalogItem) OfflineCheckoutInput {
	return OfflineCheckoutInput{
		CheckoutInput:    checkoutInput(items...),
		PaymentProofURL:  "https://proofs.example.com/1.png",
		PaymentReference: "SHOP-20260101-0001",
	}
}

func mustOffline(t *testing.T, env *testEnv, items ...catalogItem) *models.Order {
	t.Helper()
	order, err := env.checkout.CreateOfflineCheckout(context.Background(), offlineInput(items...))
	if err != nil {
		t.Fatalf("CreateOfflineCheckout() error = %v", err)
	}
	return order
}

func fieldNames(err error) []string {
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	names := make([]string, 0, len(verrs))
	for _, v := range verrs {
		names = append(names, v.Field)
	}
	return names
}

type catalogItem struct {
	productID uuid.UUID
	quantity  int
}

func item(product *models.Product, quantity int) catalogItem {
	return catalogItem{productID: product.ID, quantity: quantity}
}

func (c catalogItem) cartItem() catalog.CartItem {
	return catalog.CartItem{ProductID: c.productID, Quantity: c.quantity}
}
