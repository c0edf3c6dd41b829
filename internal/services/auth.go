package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/session"
)

var (
	ErrAuthUnavailable   = errors.New("auth service unavailable")
	ErrAuthInvalidCode   = errors.New("oauth code is required")
	ErrAuthCodeExchange  = errors.New("failed to exchange oauth code")
	ErrAuthGetGitHubUser = errors.New("failed to fetch github user")
	ErrAuthGenerateState = errors.New("failed to generate oauth state")
)

type StartGitHubLoginResult struct {
	State            string
	AuthorizationURL string
}

// AuthService signs customers and admins in with GitHub. Admins are the
// logins listed in the configuration; everyone else is a customer.
type AuthService struct {
	oauthConfig *oauth2.Config
	isAdmin     func(login string) bool
	httpClient  *http.Client
	apiBaseURL  *url.URL
	logger      *slog.Logger
}

func NewAuthService(cfg *config.Config, logger *slog.Logger) (*AuthService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth service config is required")
	}
	if strings.TrimSpace(cfg.GitHubClientID) == "" {
		return nil, fmt.Errorf("%w: github oauth is not configured", ErrAuthUnavailable)
	}

	return &AuthService{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
			RedirectURL:  gitHubOAuthRedirectURL(cfg.BaseURL),
		},
		isAdmin:    cfg.IsAdminLogin,
		httpClient: observability.NewHTTPClient(10 * time.Second),
		logger:     logger,
	}, nil
}

func gitHubOAuthRedirectURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}

	return strings.TrimRight(baseURL, "/") + "/auth/github/callback"
}

func (s *AuthService) StartGitHubLogin() (StartGitHubLoginResult, error) {
	result := StartGitHubLoginResult{}
	if s == nil || s.oauthConfig == nil {
		return result, ErrAuthUnavailable
	}

	state, err := generateOAuthState()
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrAuthGenerateState, err)
	}

	result.State = state
	result.AuthorizationURL = s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)

	return result, nil
}

// CompleteGitHubOAuth exchanges the callback code and returns the identity to
// store in the session.
func (s *AuthService) CompleteGitHubOAuth(ctx context.Context, code string) (*session.Data, error) {
	if s == nil || s.oauthConfig == nil || s.httpClient == nil {
		return nil, ErrAuthUnavailable
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrAuthInvalidCode
	}

	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthCodeExchange, err)
	}

	identity, err := s.identityFromToken(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthGetGitHubUser, err)
	}
	return identity, nil
}

func (s *AuthService) identityFromToken(ctx context.Context, accessToken string) (*session.Data, error) {
	client := github.NewClient(s.httpClient).WithAuthToken(accessToken)
	if s.apiBaseURL != nil {
		client.BaseURL = s.apiBaseURL
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, err
	}
	if user.GetID() == 0 || user.GetLogin() == "" {
		return nil, fmt.Errorf("github user has no id")
	}

	email := user.GetEmail()
	if email == "" {
		email, err = primaryEmail(ctx, client)
		if err != nil && s.logger != nil {
			s.logger.Warn("failed to list github user emails", "error", err, "login", user.GetLogin())
		}
	}

	role := session.RoleCustomer
	if s.isAdmin != nil && s.isAdmin(user.GetLogin()) {
		role = session.RoleAdmin
	}

	return &session.Data{
		UserID:   "github:" + strconv.FormatInt(user.GetID(), 10),
		Username: user.GetLogin(),
		Email:    email,
		Role:     role,
	}, nil
}

func primaryEmail(ctx context.Context, client *github.Client) (string, error) {
	emails, _, err := client.Users.ListEmails(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			return e.GetEmail(), nil
		}
	}
	return "", nil
}

func generateOAuthState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
