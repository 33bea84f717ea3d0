// Package jwt issues and verifies HS256 signed identity tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenDuration = 24 * time.Hour

// Config holds token settings.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
}

// Claims are the token claims. Subject carries the account id.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator implements identity.Authenticator with HMAC signed JWTs.
type Authenticator struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

// NewAuthenticator creates a JWT authenticator.
func NewAuthenticator(cfg Config) *Authenticator {
	duration := cfg.TokenDuration
	if duration <= 0 {
		duration = defaultTokenDuration
	}
	return &Authenticator{
		secret:   []byte(cfg.SecretKey),
		duration: duration,
		now:      time.Now,
	}
}

// Type returns the authenticator name.
func (a *Authenticator) Type() string {
	return "jwt"
}

// GenerateToken signs a token for principal.
func (a *Authenticator) GenerateToken(_ context.Context, principal *identity.Principal) (*identity.Token, error) {
	now := a.now()
	expiresAt := now.Add(a.duration)

	claims := Claims{
		Email: principal.Email,
		Role:  principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &identity.Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// ValidateToken verifies the signature and expiry and returns the subject and role.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, domain.Role, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", "", err
	}

	if claims.Subject == "" {
		return "", "", errors.New("token has no subject")
	}
	if !claims.Role.IsValid() {
		return "", "", fmt.Errorf("token has unknown role %q", claims.Role)
	}

	return claims.Subject, claims.Role, nil
}
