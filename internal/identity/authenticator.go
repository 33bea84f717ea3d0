package identity

import (
	"context"
	"time"

	"github.com/bissquit/resilio/internal/domain"
)

// Principal is the public view of an authenticated account. It is either an
// officer/admin user or a rescuer.
type Principal struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// Token is a signed credential.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authenticator issues and verifies credentials.
type Authenticator interface {
	GenerateToken(ctx context.Context, principal *Principal) (*Token, error)
	ValidateToken(ctx context.Context, token string) (userID string, role domain.Role, err error)
	Type() string
}
