package identity

import (
	"context"

	"github.com/bissquit/resilio/internal/domain"
)

// Repository defines the interface for officer and admin account storage.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}
