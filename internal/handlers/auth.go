package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

const oauthStateCookie = "oauth_state"

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type identityResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// GitHubLogin redirects to the GitHub OAuth authorization URL.
func (h *Handlers) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFromContext(r.Context())

	if h.authService == nil {
		writeError(w, http.StatusServiceUnavailable, "login is not configured", nil, logger)
		return
	}

	loginResult, err := h.authService.StartGitHubLogin()
	if err != nil {
		logger.Error("failed to generate oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start login", nil, logger)
		return
	}

	http.SetCookie(w, h.stateCookie(loginResult.State, 600)) // 10 minutes
	http.Redirect(w, r, loginResult.AuthorizationURL, http.StatusTemporaryRedirect)
}

// GitHubCallback completes the OAuth flow and starts a session.
func (h *Handlers) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.authService == nil {
		writeError(w, http.StatusServiceUnavailable, "login is not configured", nil, logger)
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		logger.Warn("oauth state cookie not found; restarting login", "error", err)
		http.Redirect(w, r, "/auth/github/login", http.StatusSeeOther)
		return
	}
	http.SetCookie(w, h.stateCookie("", -1))

	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" || state != stateCookie.Value {
		logger.Error("oauth state mismatch")
		writeError(w, http.StatusBadRequest, "invalid state", nil, logger)
		return
	}

	identity, err := h.authService.CompleteGitHubOAuth(ctx, r.URL.Query().Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAuthInvalidCode):
			writeError(w, http.StatusBadRequest, "no code provided", nil, logger)
		case errors.Is(err, services.ErrAuthCodeExchange):
			logger.Error("failed to exchange oauth code", "error", err)
			writeError(w, http.StatusBadGateway, "failed to authenticate", nil, logger)
		case errors.Is(err, services.ErrAuthGetGitHubUser):
			logger.Error("failed to get github user", "error", err)
			writeError(w, http.StatusBadGateway, "failed to get user info", nil, logger)
		default:
			logger.Error("failed to complete oauth callback", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to authenticate", nil, logger)
		}
		return
	}

	if _, err := h.sessionManager.CreateSession(ctx, w, identity); err != nil {
		logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session", nil, logger)
		return
	}

	logger.Info("session created", "user_id", identity.UserID, "username", identity.Username, "role", identity.Role)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout destroys the cookie session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.DestroySession(r.Context(), w, r); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to destroy session", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// IssueToken exchanges the caller's session for a short-lived bearer token.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFromContext(r.Context())

	identity := session.GetSessionFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "authentication required", nil, logger)
		return
	}

	token, expiresAt, err := h.tokens.Issue(identity)
	if err != nil {
		logger.Error("failed to issue bearer token", "error", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "failed to issue token", nil, logger)
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	}, logger)
}

// Me reports who the caller is.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFromContext(r.Context())

	identity := session.GetSessionFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "authentication required", nil, logger)
		return
	}

	writeJSON(w, http.StatusOK, identityResponse{
		UserID:   identity.UserID,
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
	}, logger)
}

func (h *Handlers) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   SecureCookiesFromConfig(h.config),
		SameSite: http.SameSiteLaxMode,
	}
}
