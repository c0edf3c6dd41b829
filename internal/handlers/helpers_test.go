package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

type fakeCheckout struct {
	mu      sync.Mutex
	err     error
	online  []services.CheckoutInput
	offline []services.OfflineCheckoutInput
}

func (f *fakeCheckout) CreateOnlineCheckout(_ context.Context, input services.CheckoutInput) (*services.OnlineCheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, input)
	if f.err != nil {
		return nil, f.err
	}
	orderID := uuid.New()
	return &services.OnlineCheckoutResult{
		OrderID:   orderID,
		SessionID: "cs_test_1",
		URL:       "https://checkout.stripe.test/cs_test_1",
	}, nil
}

func (f *fakeCheckout) CreateOfflineCheckout(_ context.Context, input services.OfflineCheckoutInput) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, input)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: uuid.New(), Status: models.StatusPending, UserID: input.UserID}, nil
}

// fakeFulfillment records the last call and answers with order or err.
type fakeFulfillment struct {
	mu       sync.Mutex
	err      error
	order    *models.Order
	calls    []string
	reject   services.RejectPaymentInput
	trans    services.TransitionInput
	resubmit services.ResubmitProofInput
	viewer   services.Viewer
	list     services.ListOrdersInput
	deleted  uuid.UUID
}

func (f *fakeFulfillment) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeFulfillment) ConfirmPayment(_ context.Context, input services.TransitionInput) (*models.Order, error) {
	f.record("confirm")
	f.trans = input
	return f.order, f.err
}

func (f *fakeFulfillment) RejectPayment(_ context.Context, input services.RejectPaymentInput) (*models.Order, error) {
	f.record("reject")
	f.reject = input
	return f.order, f.err
}

func (f *fakeFulfillment) MarkDelivered(_ context.Context, input services.TransitionInput) (*models.Order, error) {
	f.record("deliver")
	f.trans = input
	return f.order, f.err
}

func (f *fakeFulfillment) ResubmitPaymentProof(_ context.Context, input services.ResubmitProofInput) (*models.Order, error) {
	f.record("resubmit")
	f.resubmit = input
	return f.order, f.err
}

func (f *fakeFulfillment) DeleteOrder(_ context.Context, orderID uuid.UUID) error {
	f.record("delete")
	f.deleted = orderID
	return f.err
}

func (f *fakeFulfillment) GetOrder(_ context.Context, _ uuid.UUID, viewer services.Viewer) (*models.Order, error) {
	f.record("get")
	f.viewer = viewer
	return f.order, f.err
}

func (f *fakeFulfillment) ListOrders(_ context.Context, input services.ListOrdersInput) (*services.OrderPage, error) {
	f.record("list")
	f.list = input
	if f.err != nil {
		return nil, f.err
	}
	return &services.OrderPage{Orders: []*models.Order{}, Page: 1, Limit: 20}, nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(identity *session.Data) (string, time.Time, error) {
	return "token-for-" + identity.UserID, time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC), nil
}

type fakeCompletion struct {
	mu       sync.Mutex
	err      error
	payloads [][]byte
}

func (f *fakeCompletion) HandleCheckoutSessionCompleted(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakeCompletion) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type testHandlers struct {
	*Handlers
	checkout    *fakeCheckout
	fulfillment *fakeFulfillment
	completion  *fakeCompletion
	cache       cache.Provider
}

func newTestHandlers(t *testing.T) *testHandlers {
	t.Helper()

	provider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	env := &testHandlers{
		checkout:    &fakeCheckout{},
		fulfillment: &fakeFulfillment{order: &models.Order{ID: uuid.New(), Status: models.StatusProcessing, Version: 2}},
		completion:  &fakeCompletion{},
		cache:       provider,
	}
	h, err := New(Dependencies{
		Config: &config.Config{
			BaseURL:             "https://shop.example.com",
			StripeWebhookSecret: "whsec_test_secret",
		},
		DB:             fakeDB{},
		Checkout:       env.checkout,
		Fulfillment:    env.fulfillment,
		CacheProvider:  provider,
		StripeRouter:   NewStripeEventRouter(env.completion, discardLogger()),
		Tokens:         fakeTokens{},
		SessionManager: session.NewManager(session.NewMemoryStore(), true),
		Logger:         discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.Handlers = h
	return env
}

var (
	customer = &session.Data{UserID: "github:1", Username: "ada", Role: session.RoleCustomer}
	admin    = &session.Data{UserID: "github:2", Username: "grace", Role: session.RoleAdmin}
)

func jsonRequest(t *testing.T, method, target string, body any, identity *session.Data) *http.Request {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req = req.WithContext(session.WithSession(req.Context(), identity))
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func detailFields(body errorResponse) []string {
	fields := make([]string, 0, len(body.Details))
	for _, d := range body.Details {
		fields = append(fields, d.Field)
	}
	return fields
}

func validCheckoutBody() map[string]any {
	return map[string]any{
		"name":          "Ada Lovelace",
		"email":         "ada@example.com",
		"city":          "London",
		"postalCode":    "N1",
		"streetAddress": "1 Main St",
		"country":       "GB",
		"cartItems": []map[string]any{
			{"id": uuid.NewString(), "quantity": 2, "price": 5},
		},
	}
}
