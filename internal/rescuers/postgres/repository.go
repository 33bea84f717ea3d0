// Package postgres provides PostgreSQL implementation of the rescuer repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/resilio/internal/domain"
	pgutil "github.com/bissquit/resilio/internal/pkg/postgres"
	"github.com/bissquit/resilio/internal/rescuers"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rescuerColumns = `
	id, name, department, vehicle_id, phone, email, password_hash, role,
	availability_status, current_task, task_history, location_lat, location_lng,
	created_at, updated_at
`

// Repository implements the rescuers.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateRescuer inserts a rescuer. A duplicate email yields rescuers.ErrEmailExists.
func (r *Repository) CreateRescuer(ctx context.Context, rescuer *domain.Rescuer) error {
	query := `
		INSERT INTO rescuers (name, department, vehicle_id, phone, email, password_hash, role,
			availability_status, task_history, location_lat, location_lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	history := rescuer.TaskHistory
	if history == nil {
		history = []string{}
	}

	err := r.db.QueryRow(ctx, query,
		rescuer.Name,
		rescuer.Department,
		rescuer.VehicleID,
		rescuer.Phone,
		rescuer.Email,
		rescuer.PasswordHash,
		rescuer.Role,
		rescuer.AvailabilityStatus,
		history,
		rescuer.Location.Lat,
		rescuer.Location.Lng,
	).Scan(&rescuer.ID, &rescuer.CreatedAt, &rescuer.UpdatedAt)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return rescuers.ErrEmailExists
		}
		return fmt.Errorf("insert rescuer: %w", err)
	}
	return nil
}

// GetRescuer retrieves a rescuer by id.
func (r *Repository) GetRescuer(ctx context.Context, id string) (*domain.Rescuer, error) {
	if !isUUID(id) {
		return nil, rescuers.ErrRescuerNotFound
	}
	query := `SELECT ` + rescuerColumns + ` FROM rescuers WHERE id = $1`
	return scanOne(r.db.QueryRow(ctx, query, id))
}

// GetRescuerByEmail retrieves a rescuer by normalised email.
func (r *Repository) GetRescuerByEmail(ctx context.Context, email string) (*domain.Rescuer, error) {
	query := `SELECT ` + rescuerColumns + ` FROM rescuers WHERE email = $1`
	return scanOne(r.db.QueryRow(ctx, query, email))
}

// ListRescuers returns rescuers ordered Available, Busy, Offline, then by name.
func (r *Repository) ListRescuers(ctx context.Context) ([]*domain.Rescuer, error) {
	query := `
		SELECT ` + rescuerColumns + `
		FROM rescuers
		ORDER BY CASE availability_status
			WHEN 'Available' THEN 0
			WHEN 'Busy' THEN 1
			ELSE 2
		END, name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rescuers: %w", err)
	}
	return scanAll(rows)
}

// UpdateLocation stores the last known position.
func (r *Repository) UpdateLocation(ctx context.Context, id string, location domain.Location) error {
	if !isUUID(id) {
		return rescuers.ErrRescuerNotFound
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE rescuers SET location_lat = $2, location_lng = $3, updated_at = NOW()
		WHERE id = $1
	`, id, location.Lat, location.Lng)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rescuers.ErrRescuerNotFound
	}
	return nil
}

// SetAvailability updates availability only when the rescuer holds no task.
func (r *Repository) SetAvailability(ctx context.Context, id string, status domain.Availability) (*domain.Rescuer, error) {
	if !isUUID(id) {
		return nil, rescuers.ErrRescuerNotFound
	}
	query := `
		UPDATE rescuers SET availability_status = $2, updated_at = NOW()
		WHERE id = $1 AND current_task IS NULL
		RETURNING ` + rescuerColumns
	rescuer, err := scanOne(r.db.QueryRow(ctx, query, id, status))
	if errors.Is(err, rescuers.ErrRescuerNotFound) {
		// Distinguish a missing rescuer from one that is on a task.
		if _, getErr := r.GetRescuer(ctx, id); getErr == nil {
			return nil, rescuers.ErrRescuerBusy
		}
	}
	return rescuer, err
}

// GetRescuerForUpdateTx locks the rescuer row for the rest of tx.
func (r *Repository) GetRescuerForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Rescuer, error) {
	if !isUUID(id) {
		return nil, rescuers.ErrRescuerNotFound
	}
	query := `SELECT ` + rescuerColumns + ` FROM rescuers WHERE id = $1 FOR UPDATE`
	return scanOne(tx.QueryRow(ctx, query, id))
}

// FindByCurrentTaskForUpdateTx locks the rescuer whose current task is the incident.
func (r *Repository) FindByCurrentTaskForUpdateTx(ctx context.Context, tx pgx.Tx, incidentID string) (*domain.Rescuer, error) {
	if !isUUID(incidentID) {
		return nil, rescuers.ErrRescuerNotFound
	}
	query := `
		SELECT ` + rescuerColumns + `
		FROM rescuers
		WHERE current_task = $1
		ORDER BY updated_at
		LIMIT 1
		FOR UPDATE
	`
	return scanOne(tx.QueryRow(ctx, query, incidentID))
}

// ListBusyForUpdateTx locks every rescuer that is Busy or holds a task.
func (r *Repository) ListBusyForUpdateTx(ctx context.Context, tx pgx.Tx) ([]*domain.Rescuer, error) {
	query := `
		SELECT ` + rescuerColumns + `
		FROM rescuers
		WHERE availability_status = 'Busy' OR current_task IS NOT NULL
		ORDER BY id
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list busy rescuers: %w", err)
	}
	return scanAll(rows)
}

// UpdateAssignmentTx persists the assignment fields of a rescuer.
func (r *Repository) UpdateAssignmentTx(ctx context.Context, tx pgx.Tx, rescuer *domain.Rescuer) error {
	history := rescuer.TaskHistory
	if history == nil {
		history = []string{}
	}
	err := tx.QueryRow(ctx, `
		UPDATE rescuers
		SET availability_status = $2, current_task = $3, task_history = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, rescuer.ID, rescuer.AvailabilityStatus, rescuer.CurrentTask, history).Scan(&rescuer.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rescuers.ErrRescuerNotFound
		}
		return fmt.Errorf("update rescuer assignment: %w", err)
	}
	return nil
}

func scanOne(row pgx.Row) (*domain.Rescuer, error) {
	rescuer, err := scanRescuer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rescuers.ErrRescuerNotFound
		}
		return nil, fmt.Errorf("scan rescuer: %w", err)
	}
	return rescuer, nil
}

func scanAll(rows pgx.Rows) ([]*domain.Rescuer, error) {
	defer rows.Close()

	result := make([]*domain.Rescuer, 0)
	for rows.Next() {
		rescuer, err := scanRescuer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rescuer: %w", err)
		}
		result = append(result, rescuer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rescuers: %w", err)
	}
	return result, nil
}

func scanRescuer(row pgx.Row) (*domain.Rescuer, error) {
	var rescuer domain.Rescuer
	err := row.Scan(
		&rescuer.ID,
		&rescuer.Name,
		&rescuer.Department,
		&rescuer.VehicleID,
		&rescuer.Phone,
		&rescuer.Email,
		&rescuer.PasswordHash,
		&rescuer.Role,
		&rescuer.AvailabilityStatus,
		&rescuer.CurrentTask,
		&rescuer.TaskHistory,
		&rescuer.Location.Lat,
		&rescuer.Location.Lng,
		&rescuer.CreatedAt,
		&rescuer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rescuer.TaskHistory == nil {
		rescuer.TaskHistory = []string{}
	}
	return &rescuer, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
