package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/handlers"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

type stubDB struct{}

func (stubDB) Ping(context.Context) error { return nil }

type stubCheckout struct{}

func (stubCheckout) CreateOnlineCheckout(context.Context, services.CheckoutInput) (*services.OnlineCheckoutResult, error) {
	return &services.OnlineCheckoutResult{OrderID: uuid.New(), SessionID: "cs_test", URL: "https://checkout.stripe.test/cs_test"}, nil
}

func (stubCheckout) CreateOfflineCheckout(context.Context, services.OfflineCheckoutInput) (*models.Order, error) {
	return &models.Order{ID: uuid.New(), Status: models.StatusPending}, nil
}

type stubFulfillment struct{}

func (stubFulfillment) ConfirmPayment(_ context.Context, in services.TransitionInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: models.StatusProcessing, Paid: true}, nil
}

func (stubFulfillment) RejectPayment(_ context.Context, in services.RejectPaymentInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: models.StatusCancelled}, nil
}

func (stubFulfillment) MarkDelivered(_ context.Context, in services.TransitionInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: models.StatusDelivered}, nil
}

func (stubFulfillment) ResubmitPaymentProof(_ context.Context, in services.ResubmitProofInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: models.StatusPending}, nil
}

func (stubFulfillment) DeleteOrder(context.Context, uuid.UUID) error { return nil }

func (stubFulfillment) GetOrder(_ context.Context, orderID uuid.UUID, viewer services.Viewer) (*models.Order, error) {
	if !viewer.Admin && viewer.UserID != "github:1" {
		return nil, services.ErrOrderForbidden
	}
	return &models.Order{ID: orderID, UserID: "github:1"}, nil
}

func (stubFulfillment) ListOrders(context.Context, services.ListOrdersInput) (*services.OrderPage, error) {
	return &services.OrderPage{Orders: []*models.Order{}, Page: 1, Limit: 20}, nil
}

type stubCompletion struct{}

func (stubCompletion) HandleCheckoutSessionCompleted(context.Context, []byte) error { return nil }

type stubTokens struct{}

func (stubTokens) Issue(*session.Data) (string, time.Time, error) {
	return "issued", time.Now().Add(15 * time.Minute), nil
}

var bearerIdentities = map[string]*session.Data{
	"customer-token": {UserID: "github:1", Username: "ada", Role: session.RoleCustomer},
	"other-token":    {UserID: "github:3", Username: "eve", Role: session.RoleCustomer},
	"admin-token":    {UserID: "github:2", Username: "grace", Role: session.RoleAdmin},
}

func verifyBearer(_ context.Context, token string) (*session.Data, error) {
	if data, ok := bearerIdentities[token]; ok {
		return data, nil
	}
	return nil, errors.New("unknown token")
}

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{BaseURL: "https://shop.example.com", Port: "8080"}
	provider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	manager := session.NewManager(session.NewMemoryStore(), true).WithBearerVerifier(verifyBearer)

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             stubDB{},
		Checkout:       stubCheckout{},
		Fulfillment:    stubFulfillment{},
		CacheProvider:  provider,
		StripeRouter:   handlers.NewStripeEventRouter(stubCompletion{}, logger),
		Tokens:         stubTokens{},
		SessionManager: manager,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("handlers.New() error = %v", err)
	}
	srv, err := New(cfg, logger, h)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, manager
}

func TestRouter(t *testing.T) {
	t.Parallel()

	orderPath := "/api/orders/" + uuid.NewString()
	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
		{name: "webhook disabled without secret", method: http.MethodPost, path: "/webhooks/stripe", body: "{}", wantStatus: http.StatusNotFound},
		{name: "login not configured", method: http.MethodGet, path: "/auth/github/login", wantStatus: http.StatusServiceUnavailable},
		{name: "me requires auth", method: http.MethodGet, path: "/auth/me", wantStatus: http.StatusUnauthorized},
		{name: "me with bearer", method: http.MethodGet, path: "/auth/me", token: "customer-token", wantStatus: http.StatusOK},
		{name: "checkout requires auth", method: http.MethodPost, path: "/api/checkout/online", body: "{}", wantStatus: http.StatusUnauthorized},
		{name: "checkout rejects bad token", method: http.MethodPost, path: "/api/checkout/online", token: "forged", body: "{}", wantStatus: http.StatusUnauthorized},
		{name: "owner reads order", method: http.MethodGet, path: orderPath, token: "customer-token", wantStatus: http.StatusOK},
		{name: "stranger cannot read order", method: http.MethodGet, path: orderPath, token: "other-token", wantStatus: http.StatusForbidden},
		{name: "admin reads order", method: http.MethodGet, path: orderPath, token: "admin-token", wantStatus: http.StatusOK},
		{name: "customer cannot list orders", method: http.MethodGet, path: "/api/admin/orders", token: "customer-token", wantStatus: http.StatusForbidden},
		{name: "admin lists orders", method: http.MethodGet, path: "/api/admin/orders?status=pending", token: "admin-token", wantStatus: http.StatusOK},
		{name: "admin confirms payment", method: http.MethodPatch, path: "/api/admin/orders", token: "admin-token", body: `{"orderId":"` + uuid.NewString() + `","confirmPayment":true}`, wantStatus: http.StatusOK},
		{name: "admin deletes order", method: http.MethodDelete, path: "/api/admin/orders", token: "admin-token", body: `{"orderId":"` + uuid.NewString() + `"}`, wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := newTestServer(t)
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			req := httptest.NewRequest(tc.method, tc.path, body)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("%s %s status = %d, want %d (body %s)", tc.method, tc.path, rec.Code, tc.wantStatus, rec.Body.String())
			}
			if got := rec.Header().Get("X-Content-Type-Options"); tc.wantStatus != http.StatusNotFound && got != "nosniff" {
				t.Fatalf("X-Content-Type-Options = %q, want nosniff", got)
			}
		})
	}
}

func TestRouter_CookieSessionNeedsSameOrigin(t *testing.T) {
	t.Parallel()

	srv, manager := newTestServer(t)

	login := httptest.NewRecorder()
	if _, err := manager.CreateSession(context.Background(), login, bearerIdentities["admin-token"]); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	cookies := login.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("session cookies = %d, want 1", len(cookies))
	}

	body := `{"orderId":"` + uuid.NewString() + `"}`
	tests := []struct {
		name       string
		origin     string
		wantStatus int
	}{
		{name: "missing origin", wantStatus: http.StatusForbidden},
		{name: "foreign origin", origin: "https://evil.example.com", wantStatus: http.StatusForbidden},
		{name: "same origin", origin: "https://shop.example.com", wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPatch, "https://shop.example.com/api/admin/orders", strings.NewReader(body))
		req.AddCookie(cookies[0])
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		rec := httptest.NewRecorder()

		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d (body %s)", tc.name, rec.Code, tc.wantStatus, rec.Body.String())
		}
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(nil, logger, &handlers.Handlers{}); err == nil {
		t.Fatal("New() without config should fail")
	}
	if _, err := New(&config.Config{}, nil, &handlers.Handlers{}); err == nil {
		t.Fatal("New() without logger should fail")
	}
	if _, err := New(&config.Config{}, logger, nil); err == nil {
		t.Fatal("New() without handlers should fail")
	}
}
