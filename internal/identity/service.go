// Package identity authenticates officers, admins and rescuers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/rescuers"
	"golang.org/x/crypto/bcrypt"
)

// RescuerLookup finds rescuer accounts, the second registry checked on login.
type RescuerLookup interface {
	Get(ctx context.Context, id string) (*domain.Rescuer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Rescuer, error)
}

// Config holds identity options.
type Config struct {
	AllowAdminSignup bool
}

// Service implements identity business logic.
type Service struct {
	repo     Repository
	rescuers RescuerLookup
	auth     Authenticator
	config   Config
	hashCost int
}

// NewService creates a new identity service.
func NewService(repo Repository, rescuerLookup RescuerLookup, auth Authenticator, config Config) *Service {
	return &Service{
		repo:     repo,
		rescuers: rescuerLookup,
		auth:     auth,
		config:   config,
		hashCost: bcrypt.DefaultCost,
	}
}

// RegisterInput holds data for officer or admin self-registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is a successful login.
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *Principal `json:"user"`
}

// Register creates an officer or admin account.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	role := input.Role
	if role == "" {
		role = domain.RoleOfficer
	}
	switch role {
	case domain.RoleOfficer:
	case domain.RoleAdmin:
		if !s.config.AllowAdminSignup {
			return nil, ErrAdminSignupDisabled
		}
	default:
		return nil, ErrInvalidRole
	}

	return s.createUser(ctx, input.Name, input.Email, input.Password, role)
}

// EnsureAdmin creates an admin account unless the email is already taken.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	_, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("check admin: %w", err)
	}

	if _, err := s.createUser(ctx, "Administrator", email, password, domain.RoleAdmin); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) createUser(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	email = normalizeEmail(email)

	_, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	// Login would never reach a user shadowed by a rescuer with the same email.
	_, err = s.rescuers.GetByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailExists
	}
	if !errors.Is(err, rescuers.ErrRescuerNotFound) {
		return nil, fmt.Errorf("check rescuer email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks the officer/admin registry first, then rescuers, and issues
// a signed token for the first account found.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	principal, hash, err := s.findAccount(ctx, normalizeEmail(input.Email))
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.auth.GenerateToken(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &LoginResult{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt.UTC(),
		User:      principal,
	}, nil
}

func (s *Service) findAccount(ctx context.Context, email string) (*Principal, string, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return userPrincipal(user), user.PasswordHash, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	rescuer, err := s.rescuers.GetByEmail(ctx, email)
	if err == nil {
		return rescuerPrincipal(rescuer), rescuer.PasswordHash, nil
	}
	if errors.Is(err, rescuers.ErrRescuerNotFound) {
		return nil, "", ErrUserNotFound
	}
	return nil, "", fmt.Errorf("get rescuer: %w", err)
}

// ValidateToken implements httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, domain.Role, error) {
	userID, role, err := s.auth.ValidateToken(ctx, token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return userID, role, nil
}

// Me returns the account behind the actor.
func (s *Service) Me(ctx context.Context, actor domain.Actor) (*Principal, error) {
	if actor.Role == domain.RoleRescuer {
		rescuer, err := s.rescuers.Get(ctx, actor.UserID)
		if errors.Is(err, rescuers.ErrRescuerNotFound) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get rescuer: %w", err)
		}
		return rescuerPrincipal(rescuer), nil
	}

	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return userPrincipal(user), nil
}

func userPrincipal(user *domain.User) *Principal {
	role := user.Role
	if role == "" {
		role = domain.RoleOfficer
	}
	return &Principal{ID: user.ID, Name: user.Name, Email: user.Email, Role: role}
}

func rescuerPrincipal(rescuer *domain.Rescuer) *Principal {
	role := rescuer.Role
	if role == "" {
		role = domain.RoleRescuer
	}
	return &Principal{ID: rescuer.ID, Name: rescuer.Name, Email: rescuer.Email, Role: role}
}

func normalizeEmail(email string) string {
	return rescuers.NormalizeEmail(email)
}
