package rescuers

import (
	"context"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for rescuer storage.
type Repository interface {
	CreateRescuer(ctx context.Context, rescuer *domain.Rescuer) error
	GetRescuer(ctx context.Context, id string) (*domain.Rescuer, error)
	GetRescuerByEmail(ctx context.Context, email string) (*domain.Rescuer, error)
	ListRescuers(ctx context.Context) ([]*domain.Rescuer, error)
	UpdateLocation(ctx context.Context, id string, location domain.Location) error
	// SetAvailability changes a rescuer without a current task. Returns
	// ErrRescuerBusy when the rescuer holds one.
	SetAvailability(ctx context.Context, id string, status domain.Availability) (*domain.Rescuer, error)

	// Transaction support, driven by the incident assignment engine.
	GetRescuerForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Rescuer, error)
	FindByCurrentTaskForUpdateTx(ctx context.Context, tx pgx.Tx, incidentID string) (*domain.Rescuer, error)
	ListBusyForUpdateTx(ctx context.Context, tx pgx.Tx) ([]*domain.Rescuer, error)
	UpdateAssignmentTx(ctx context.Context, tx pgx.Tx, rescuer *domain.Rescuer) error
}
