package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

type fakeIdentityProvider struct {
	identity *session.Data
	err      error
	codes    []string
}

func (f *fakeIdentityProvider) StartGitHubLogin() (services.StartGitHubLoginResult, error) {
	return services.StartGitHubLoginResult{
		State:            "state-123",
		AuthorizationURL: "https://github.com/login/oauth/authorize?state=state-123",
	}, nil
}

func (f *fakeIdentityProvider) CompleteGitHubOAuth(_ context.Context, code string) (*session.Data, error) {
	f.codes = append(f.codes, code)
	return f.identity, f.err
}

func callbackRequest(query, cookieState string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback"+query, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: cookieState})
	}
	return req
}

func TestGitHubLogin(t *testing.T) {
	t.Parallel()

	env := newTestHandlers(t)
	rec := httptest.NewRecorder()
	env.GitHubLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without oauth = %d, want 503", rec.Code)
	}

	env.authService = &fakeIdentityProvider{}
	rec = httptest.NewRecorder()
	env.GitHubLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "https://github.com/login/oauth/authorize") {
		t.Fatalf("Location = %q", loc)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != oauthStateCookie || cookies[0].Value != "state-123" {
		t.Fatalf("cookies = %+v, want oauth state", cookies)
	}
	if !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("state cookie should be HttpOnly and Secure: %+v", cookies[0])
	}
}

func TestGitHubCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		query        string
		cookieState  string
		err          error
		wantStatus   int
		wantLocation string
		wantSession  bool
	}{
		{
			name:         "missing state cookie restarts login",
			query:        "?state=state-123&code=abc",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/auth/github/login",
		},
		{
			name:        "state mismatch",
			query:       "?state=forged&code=abc",
			cookieState: "state-123",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "missing code",
			query:       "?state=state-123",
			cookieState: "state-123",
			err:         services.ErrAuthInvalidCode,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "exchange failure",
			query:       "?state=state-123&code=abc",
			cookieState: "state-123",
			err:         fmt.Errorf("%w: boom", services.ErrAuthCodeExchange),
			wantStatus:  http.StatusBadGateway,
		},
		{
			name:         "success",
			query:        "?state=state-123&code=abc",
			cookieState:  "state-123",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/",
			wantSession:  true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestHandlers(t)
			env.authService = &fakeIdentityProvider{identity: customer, err: tc.err}
			rec := httptest.NewRecorder()

			env.GitHubCallback(rec, callbackRequest(tc.query, tc.cookieState))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantLocation != "" && rec.Header().Get("Location") != tc.wantLocation {
				t.Fatalf("Location = %q, want %q", rec.Header().Get("Location"), tc.wantLocation)
			}

			var sessionCookie *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name != oauthStateCookie && c.MaxAge > 0 {
					sessionCookie = c
				}
			}
			if tc.wantSession != (sessionCookie != nil) {
				t.Fatalf("session cookie = %+v, want session %v", sessionCookie, tc.wantSession)
			}
			if !tc.wantSession {
				return
			}

			follow := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			follow.AddCookie(sessionCookie)
			data, err := env.sessionManager.GetSession(context.Background(), follow)
			if err != nil {
				t.Fatalf("GetSession() error = %v", err)
			}
			if data.UserID != customer.UserID || data.Role != session.RoleCustomer {
				t.Fatalf("session = %+v", data)
			}
		})
	}
}

func TestIssueToken(t *testing.T) {
	t.Parallel()

	env := newTestHandlers(t)

	rec := httptest.NewRecorder()
	env.IssueToken(rec, jsonRequest(t, http.MethodPost, "/auth/token", nil, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.IssueToken(rec, jsonRequest(t, http.MethodPost, "/auth/token", nil, customer))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var body tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if body.Token != "token-for-github:1" || body.TokenType != "Bearer" || body.ExpiresAt.IsZero() {
		t.Fatalf("token response = %+v", body)
	}
}

func TestMe(t *testing.T) {
	t.Parallel()

	env := newTestHandlers(t)
	rec := httptest.NewRecorder()
	env.Me(rec, jsonRequest(t, http.MethodGet, "/auth/me", nil, admin))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body identityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	want := identityResponse{UserID: "github:2", Username: "grace", Role: session.RoleAdmin}
	if body != want {
		t.Fatalf("identity = %+v, want %+v", body, want)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	env := newTestHandlers(t)
	rec := httptest.NewRecorder()
	env.Logout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("logout should expire the session cookie, got %+v", cookies)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestHandlers(t)
	rec := httptest.NewRecorder()
	env.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	env.db = fakeDB{err: fmt.Errorf("connection refused")}
	rec = httptest.NewRecorder()
	env.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status with db down = %d, want 503", rec.Code)
	}
}
