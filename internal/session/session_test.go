package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gitshopapp/storefront/internal/crypto"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), false)
}

func sessionRequest(t *testing.T, m *Manager, data *Data) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	if _, err := m.CreateSession(context.Background(), rec, data); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	return req
}

func TestManagerSessionLifecycle(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	req := sessionRequest(t, m, &Data{UserID: "42", Username: "ada", Role: RoleCustomer})

	data, err := m.GetSession(context.Background(), req)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if data.UserID != "42" || data.Username != "ada" || data.CreatedAt == 0 {
		t.Fatalf("GetSession() = %+v", data)
	}

	rec := httptest.NewRecorder()
	if err := m.DestroySession(context.Background(), rec, req); err != nil {
		t.Fatalf("DestroySession() error = %v", err)
	}
	if _, err := m.GetSession(context.Background(), req); err == nil {
		t.Fatal("GetSession() after destroy should fail")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("DestroySession() cookies = %+v, want expired cookie", cookies)
	}
}

func TestCreateSessionRequiresUser(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	if _, err := m.CreateSession(context.Background(), httptest.NewRecorder(), &Data{}); err == nil {
		t.Fatal("CreateSession() without user id should fail")
	}
}

func TestGetSessionExpiresOldSessions(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	now := time.Now()
	m.now = func() time.Time { return now }
	req := sessionRequest(t, m, &Data{UserID: "42"})

	m.now = func() time.Time { return now.Add(ttl + time.Minute) }
	if _, err := m.GetSession(context.Background(), req); err == nil {
		t.Fatal("GetSession() should reject an expired session")
	}
}

func TestRequireAuthAndRole(t *testing.T) {
	t.Parallel()

	m := newTestManager().WithBearerVerifier(func(_ context.Context, token string) (*Data, error) {
		if token != "good" {
			return nil, errors.New("bad token")
		}
		return &Data{UserID: "7", Role: RoleAdmin}, nil
	})
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetSessionFromContext(r.Context()) == nil {
			t.Error("expected identity in context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	adminOnly := m.Middleware(m.RequireAuth(RequireRole(RoleAdmin)(ok)))

	customerReq := sessionRequest(t, m, &Data{UserID: "42", Role: RoleCustomer})

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{name: "anonymous", req: httptest.NewRequest(http.MethodGet, "/", nil), wantStatus: http.StatusUnauthorized},
		{name: "customer cookie", req: customerReq, wantStatus: http.StatusForbidden},
		{name: "admin bearer", req: withBearer("good"), wantStatus: http.StatusNoContent},
		{name: "invalid bearer", req: withBearer("bad"), wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			adminOnly.ServeHTTP(rec, tc.req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if rec.Code >= 400 && !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
				t.Fatalf("content type = %q, want json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func withBearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSealedPayloadIsBoundToSessionID(t *testing.T) {
	t.Parallel()

	sealer, err := crypto.NewSealer(strings.Repeat("k", 32))
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	sealed, err := sealData(sealer, "a", &Data{UserID: "42", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("sealData() error = %v", err)
	}
	if strings.Contains(sealed, "ada@example.com") {
		t.Fatal("sealed payload leaks plaintext")
	}

	data, ok := openData(sealer, "a", sealed)
	if !ok || data.UserID != "42" {
		t.Fatalf("openData() = %+v, %v", data, ok)
	}
	if _, ok := openData(sealer, "b", sealed); ok {
		t.Fatal("openData() with another session id should fail")
	}
}
