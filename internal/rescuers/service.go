// Package rescuers manages field responders and their dispatch availability.
package rescuers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// UserEmailChecker reports whether an officer or admin account owns an email.
// Login checks those accounts first, so a rescuer sharing the email could
// never sign in.
type UserEmailChecker interface {
	UserEmailExists(ctx context.Context, email string) (bool, error)
}

// Service implements rescuer registry business logic.
type Service struct {
	repo     Repository
	users    UserEmailChecker
	hashCost int
}

// NewService creates a new rescuer service.
func NewService(repo Repository, users UserEmailChecker) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		hashCost: bcrypt.DefaultCost,
	}
}

// RegisterInput holds data for registering a rescuer.
type RegisterInput struct {
	Name       string
	Department domain.Department
	VehicleID  string
	Phone      string
	Email      string
	Password   string
	Role       domain.Role
}

// Register creates a rescuer with a hashed password, initially Available.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.Rescuer, error) {
	if !input.Department.IsValid() {
		return nil, ErrInvalidDepartment
	}
	if input.Role == "" {
		input.Role = domain.RoleRescuer
	}
	if input.Role != domain.RoleRescuer {
		return nil, ErrInvalidRole
	}

	email := NormalizeEmail(input.Email)

	_, err := s.repo.GetRescuerByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailExists
	}
	if !errors.Is(err, ErrRescuerNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	taken, err := s.users.UserEmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check user email: %w", err)
	}
	if taken {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	rescuer := &domain.Rescuer{
		Name:               strings.TrimSpace(input.Name),
		Department:         input.Department,
		VehicleID:          strings.TrimSpace(input.VehicleID),
		Phone:              strings.TrimSpace(input.Phone),
		Email:              email,
		PasswordHash:       string(hash),
		Role:               input.Role,
		AvailabilityStatus: domain.AvailabilityAvailable,
		TaskHistory:        []string{},
	}

	// A concurrent registration with the same email loses on the unique index.
	if err := s.repo.CreateRescuer(ctx, rescuer); err != nil {
		return nil, fmt.Errorf("create rescuer: %w", err)
	}

	return rescuer, nil
}

// List returns all rescuers, available first.
func (s *Service) List(ctx context.Context) ([]*domain.Rescuer, error) {
	return s.repo.ListRescuers(ctx)
}

// Get returns a rescuer by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Rescuer, error) {
	return s.repo.GetRescuer(ctx, id)
}

// GetByEmail returns a rescuer by email, case-insensitively.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Rescuer, error) {
	return s.repo.GetRescuerByEmail(ctx, NormalizeEmail(email))
}

// UpdateLocation records the last known position. Rescuers may only move themselves.
func (s *Service) UpdateLocation(ctx context.Context, id string, location domain.Location, actor domain.Actor) (*domain.Rescuer, error) {
	if err := authorizeSelf(actor, id); err != nil {
		return nil, err
	}
	if !location.IsValid() {
		return nil, ErrInvalidLocation
	}

	if err := s.repo.UpdateLocation(ctx, id, location); err != nil {
		return nil, fmt.Errorf("update location: %w", err)
	}
	return s.repo.GetRescuer(ctx, id)
}

// SetAvailability toggles a rescuer between Available and Offline.
// Busy is owned by the assignment engine and cannot be set or cleared here.
func (s *Service) SetAvailability(ctx context.Context, id string, status domain.Availability, actor domain.Actor) (*domain.Rescuer, error) {
	if err := authorizeSelf(actor, id); err != nil {
		return nil, err
	}
	if status != domain.AvailabilityAvailable && status != domain.AvailabilityOffline {
		return nil, ErrInvalidAvailability
	}

	rescuer, err := s.repo.SetAvailability(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("set availability: %w", err)
	}
	return rescuer, nil
}

// GetRescuerForUpdateTx locks and returns a rescuer inside tx.
func (s *Service) GetRescuerForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Rescuer, error) {
	return s.repo.GetRescuerForUpdateTx(ctx, tx, id)
}

// FindByCurrentTaskForUpdateTx locks and returns the rescuer working the incident.
func (s *Service) FindByCurrentTaskForUpdateTx(ctx context.Context, tx pgx.Tx, incidentID string) (*domain.Rescuer, error) {
	return s.repo.FindByCurrentTaskForUpdateTx(ctx, tx, incidentID)
}

// ListBusyForUpdateTx locks and returns rescuers that are Busy or hold a task.
func (s *Service) ListBusyForUpdateTx(ctx context.Context, tx pgx.Tx) ([]*domain.Rescuer, error) {
	return s.repo.ListBusyForUpdateTx(ctx, tx)
}

// UpdateAssignmentTx persists availability, current task and history inside tx.
func (s *Service) UpdateAssignmentTx(ctx context.Context, tx pgx.Tx, rescuer *domain.Rescuer) error {
	return s.repo.UpdateAssignmentTx(ctx, tx, rescuer)
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func authorizeSelf(actor domain.Actor, rescuerID string) error {
	if actor.Role.HasPermission(domain.RoleOfficer) {
		return nil
	}
	if actor.Role == domain.RoleRescuer && actor.UserID == rescuerID {
		return nil
	}
	return ErrForbidden
}
