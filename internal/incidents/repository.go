package incidents

import (
	"context"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for incident storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]*domain.Incident, error)
	DeleteIncident(ctx context.Context, id string) error

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	GetIncidentTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	// UpdateIncidentTx persists mutable fields and bumps the version.
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
}

// IncidentFilter holds filter options for listing incidents.
type IncidentFilter struct {
	Status            *domain.IncidentStatus
	AssignedRescuerID *string
	Limit             int // 0 means no limit
	Offset            int
}
