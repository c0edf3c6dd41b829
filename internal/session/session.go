// Package session provides session management for authentication.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	cookieName = "storefront_session"
	ttl        = 24 * time.Hour
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Data is the authenticated identity attached to a request.
type Data struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

func (d *Data) IsAdmin() bool {
	return d != nil && d.Role == RoleAdmin
}

// BearerVerifier resolves an Authorization bearer token to an identity.
type BearerVerifier func(ctx context.Context, token string) (*Data, error)

// Manager handles session creation, validation, and storage
type Manager struct {
	store  Store
	secure bool
	bearer BearerVerifier
	now    func() time.Time
}

// Store defines the interface for session storage
type Store interface {
	Get(ctx context.Context, key string) (*Data, bool)
	Set(ctx context.Context, key string, data *Data, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// NewManager creates a new session manager
func NewManager(store Store, secure bool) *Manager {
	return &Manager{
		store:  store,
		secure: secure,
		now:    time.Now,
	}
}

// WithBearerVerifier lets API clients authenticate with a bearer token instead
// of the session cookie.
func (m *Manager) WithBearerVerifier(verifier BearerVerifier) *Manager {
	m.bearer = verifier
	return m
}

func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}

// CreateSession creates a new session and sets the cookie
func (m *Manager) CreateSession(ctx context.Context, w http.ResponseWriter, data *Data) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if data == nil {
		return "", fmt.Errorf("session data is required")
	}
	if data.UserID == "" {
		return "", fmt.Errorf("session user id is required")
	}

	sessionID := uuid.NewString()

	sessionData := cloneData(data)
	sessionData.CreatedAt = m.now().Unix()
	m.store.Set(ctx, sessionID, sessionData, ttl)

	http.SetCookie(w, m.cookie(sessionID, int(ttl.Seconds())))

	return sessionID, nil
}

// GetSession retrieves the session data from the request
func (m *Manager) GetSession(ctx context.Context, r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return nil, fmt.Errorf("no session cookie found: %w", err)
	}

	if ctx == nil {
		ctx = r.Context()
	}

	data, ok := m.store.Get(ctx, cookie.Value)
	if !ok {
		return nil, fmt.Errorf("session not found or expired")
	}

	if m.now().Unix()-data.CreatedAt > int64(ttl.Seconds()) {
		m.store.Delete(ctx, cookie.Value)
		return nil, fmt.Errorf("session expired")
	}

	return data, nil
}

// DestroySession removes the session and clears the cookie
func (m *Manager) DestroySession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(cookieName)
	if ctx == nil {
		ctx = r.Context()
	}
	if err == nil {
		m.store.Delete(ctx, cookie.Value)
	}

	http.SetCookie(w, m.cookie("", -1))

	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cloneData(data *Data) *Data {
	if data == nil {
		return nil
	}
	cloned := *data
	return &cloned
}
