// Package postgres provides PostgreSQL implementation of the incident repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/incidents"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `
	id, type, severity, department, description, location_lat, location_lng,
	image_url, audio_url, voice_transcript, ai_analysis, status,
	assigned_rescuer_id, resolution_details, version, created_at, updated_at
`

// Repository implements the incidents.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateIncident inserts a new incident and fills generated fields.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (type, severity, department, description, location_lat, location_lng,
			image_url, audio_url, voice_transcript, ai_analysis, status, assigned_rescuer_id, resolution_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, version, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Type,
		incident.Severity,
		incident.Department,
		incident.Description,
		incident.Location.Lat,
		incident.Location.Lng,
		incident.ImageURL,
		incident.AudioURL,
		incident.VoiceTranscript,
		incident.AIAnalysis,
		incident.Status,
		incident.AssignedRescuerID,
		incident.ResolutionDetails,
	).Scan(&incident.ID, &incident.Version, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by id.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	if !isUUID(id) {
		return nil, incidents.ErrIncidentNotFound
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	return scanOne(r.db.QueryRow(ctx, query, id))
}

// ListIncidents returns incidents matching the filter, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]*domain.Incident, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AssignedRescuerID != nil {
		if !isUUID(*filter.AssignedRescuerID) {
			return []*domain.Incident{}, nil
		}
		args = append(args, *filter.AssignedRescuerID)
		conditions = append(conditions, fmt.Sprintf("assigned_rescuer_id = $%d", len(args)))
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id"
	// Paging is opt-in: dashboards sync by fetching the full list.
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return result, nil
}

// DeleteIncident removes an incident by id.
func (r *Repository) DeleteIncident(ctx context.Context, id string) error {
	if !isUUID(id) {
		return incidents.ErrIncidentNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// GetIncidentForUpdateTx locks the incident row for the rest of tx.
func (r *Repository) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	if !isUUID(id) {
		return nil, incidents.ErrIncidentNotFound
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`
	return scanOne(tx.QueryRow(ctx, query, id))
}

// GetIncidentTx reads an incident inside tx without locking it.
func (r *Repository) GetIncidentTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	if !isUUID(id) {
		return nil, incidents.ErrIncidentNotFound
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	return scanOne(tx.QueryRow(ctx, query, id))
}

// UpdateIncidentTx persists mutable fields and increments the version.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET severity = $2, department = $3, ai_analysis = $4, status = $5,
			assigned_rescuer_id = $6, resolution_details = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING version, updated_at
	`
	err := tx.QueryRow(ctx, query,
		incident.ID,
		incident.Severity,
		incident.Department,
		incident.AIAnalysis,
		incident.Status,
		incident.AssignedRescuerID,
		incident.ResolutionDetails,
	).Scan(&incident.Version, &incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

func scanOne(row pgx.Row) (*domain.Incident, error) {
	incident, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	return incident, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.Type,
		&incident.Severity,
		&incident.Department,
		&incident.Description,
		&incident.Location.Lat,
		&incident.Location.Lng,
		&incident.ImageURL,
		&incident.AudioURL,
		&incident.VoiceTranscript,
		&incident.AIAnalysis,
		&incident.Status,
		&incident.AssignedRescuerID,
		&incident.ResolutionDetails,
		&incident.Version,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
