package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gitshopapp/storefront/internal/session"
)

const tokenIssuer = "storefront"

var ErrInvalidToken = errors.New("invalid bearer token")

type tokenClaims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints short-lived HS256 bearer tokens for API clients that
// cannot hold the session cookie.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(signingKey string, ttl time.Duration) (*TokenIssuer, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("token signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{key: []byte(signingKey), ttl: ttl, now: time.Now}, nil
}

func (t *TokenIssuer) Issue(identity *session.Data) (string, time.Time, error) {
	if identity == nil || identity.UserID == "" {
		return "", time.Time{}, fmt.Errorf("identity is required")
	}

	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := tokenClaims{
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify matches session.BearerVerifier.
func (t *TokenIssuer) Verify(_ context.Context, token string) (*session.Data, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	data := &session.Data{
		UserID:   claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
	}
	if claims.IssuedAt != nil {
		data.CreatedAt = claims.IssuedAt.Unix()
	}
	return data, nil
}
