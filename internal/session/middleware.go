package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const ctxKey contextKey = "session"

// WithSession returns a context carrying data.
func WithSession(ctx context.Context, data *Data) context.Context {
	return context.WithValue(ctx, ctxKey, data)
}

// Middleware resolves the caller from a bearer token or the session cookie and
// adds it to the request context. Anonymous requests pass through.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if data := m.identify(r); data != nil {
			r = r.WithContext(WithSession(r.Context(), data))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without an identity with 401.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := GetSessionFromContext(r.Context())
		if data == nil {
			data = m.identify(r)
		}
		if data == nil {
			writeAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), data)))
	})
}

// RequireRole rejects authenticated callers lacking role with 403. It must run
// after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data := GetSessionFromContext(r.Context())
			if data == nil {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if data.Role != role {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Manager) identify(r *http.Request) *Data {
	if token, ok := bearerToken(r); ok {
		if m.bearer == nil {
			return nil
		}
		data, err := m.bearer(r.Context(), token)
		if err != nil {
			return nil
		}
		return data
	}

	data, err := m.GetSession(r.Context(), r)
	if err != nil {
		return nil
	}
	return data
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}

// GetSessionFromContext retrieves session data from the request context.
func GetSessionFromContext(ctx context.Context) *Data {
	if ctx == nil {
		return nil
	}
	session, ok := ctx.Value(ctxKey).(*Data)
	if !ok {
		return nil
	}
	return session
}
