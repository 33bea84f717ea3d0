// Package incidents implements the incident store and the assignment engine.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/enrichment"
	"github.com/bissquit/resilio/internal/pkg/ctxlog"
	"github.com/bissquit/resilio/internal/realtime"
	"github.com/bissquit/resilio/internal/rescuers"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RescuerAssigner locks and updates rescuers inside an incident transaction.
type RescuerAssigner interface {
	GetRescuerForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Rescuer, error)
	FindByCurrentTaskForUpdateTx(ctx context.Context, tx pgx.Tx, incidentID string) (*domain.Rescuer, error)
	ListBusyForUpdateTx(ctx context.Context, tx pgx.Tx) ([]*domain.Rescuer, error)
	UpdateAssignmentTx(ctx context.Context, tx pgx.Tx, rescuer *domain.Rescuer) error
}

// Enricher queues an incident image for classification without blocking.
type Enricher interface {
	Submit(incidentID, imageURL string) bool
}

// ServiceConfig holds assignment engine options.
type ServiceConfig struct {
	// StrictTransitions allows statuses to move forward only.
	StrictTransitions bool
}

// Service implements incident business logic.
type Service struct {
	repo      Repository
	rescuers  RescuerAssigner
	publisher realtime.Publisher
	enricher  Enricher
	config    ServiceConfig
	locks     stripedLock
	now       func() time.Time
}

// NewService creates a new incident service.
func NewService(repo Repository, assigner RescuerAssigner, publisher realtime.Publisher, enricher Enricher, config ServiceConfig) *Service {
	if enricher == nil {
		enricher = enrichment.Disabled{}
	}
	return &Service{
		repo:      repo,
		rescuers:  assigner,
		publisher: publisher,
		enricher:  enricher,
		config:    config,
		now:       time.Now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Type            string
	Description     string
	Location        domain.Location
	VoiceTranscript *string
	ImageURL        *string
	AudioURL        *string
}

// UpdateIncidentInput holds the fields an update may change. Nil means unchanged.
type UpdateIncidentInput struct {
	Severity          *domain.Severity
	Department        *domain.Department
	Status            *domain.IncidentStatus
	AssignedRescuerID *string // empty string clears the assignment
	ResolutionDetails *domain.ResolutionDetails
}

// CreateIncident stores a new Pending incident, announces it and queues enrichment.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if !input.Location.IsValid() {
		return nil, ErrInvalidLocation
	}

	incidentType := strings.TrimSpace(input.Type)
	if incidentType == "" {
		incidentType = domain.DefaultIncidentType
	}

	incident := &domain.Incident{
		Type:            incidentType,
		Severity:        domain.SeverityPending,
		Description:     strings.TrimSpace(input.Description),
		Location:        input.Location,
		ImageURL:        nonEmpty(input.ImageURL),
		AudioURL:        nonEmpty(input.AudioURL),
		VoiceTranscript: nonEmpty(input.VoiceTranscript),
		Status:          domain.IncidentStatusPending,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	incidentsReported.Inc()
	s.publisher.Publish(ctx, realtime.IncidentCreated(incident))

	if incident.ImageURL != nil {
		if !s.enricher.Submit(incident.ID, *incident.ImageURL) {
			ctxlog.FromContext(ctx).Debug("incident not queued for enrichment", "incident_id", incident.ID)
		}
	}

	return incident, nil
}

// GetIncident returns an incident by id.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents returns incidents, newest first.
func (s *Service) ListIncidents(ctx context.Context, filter IncidentFilter) ([]*domain.Incident, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListIncidents(ctx, filter)
}

// UpdateIncident applies a partial update and the rescuer side effects it
// implies in a single transaction, then publishes the committed record.
func (s *Service) UpdateIncident(ctx context.Context, id string, input UpdateIncidentInput, actor domain.Actor) (*domain.Incident, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	incident, err := s.repo.GetIncidentForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := authorizeUpdate(actor, incident, input); err != nil {
		return nil, err
	}

	previous := incident.Status
	if previous.IsResolved() && input.changesLockedFields(incident) {
		return nil, ErrIncidentResolved
	}
	if input.Status != nil && !previous.CanTransitionTo(*input.Status, s.config.StrictTransitions) {
		return nil, ErrInvalidTransition
	}

	s.applyFields(incident, input)

	if input.dispatches() {
		if err := s.dispatchTx(ctx, tx, incident, *input.AssignedRescuerID); err != nil {
			return nil, err
		}
	}

	if incident.Status.IsResolved() && !previous.IsResolved() {
		if err := s.completeTx(ctx, tx, incident.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	recordTransition(previous, incident.Status)
	ctxlog.FromContext(ctx).Info("incident updated",
		"incident_id", incident.ID,
		"status", incident.Status,
		"version", incident.Version,
	)
	s.publisher.Publish(ctx, realtime.IncidentUpdated(incident))

	return incident, nil
}

// ResolveIncident marks an incident Resolved with optional closing details.
func (s *Service) ResolveIncident(ctx context.Context, id string, details *domain.ResolutionDetails, actor domain.Actor) (*domain.Incident, error) {
	status := domain.IncidentStatusResolved
	return s.UpdateIncident(ctx, id, UpdateIncidentInput{
		Status:            &status,
		ResolutionDetails: details,
	}, actor)
}

// DeleteIncident removes an incident. An assigned rescuer keeps the task
// until the reconciler releases it.
func (s *Service) DeleteIncident(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.repo.DeleteIncident(ctx, id); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	s.publisher.Publish(ctx, realtime.IncidentDeleted(id))
	return nil
}

// ApplyAnalysis stores a classification result on a Pending incident.
func (s *Service) ApplyAnalysis(ctx context.Context, id string, analysis domain.AIAnalysis) error {
	unlock := s.locks.lock(id)
	defer unlock()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	incident, err := s.repo.GetIncidentForUpdateTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if incident.Status != domain.IncidentStatusPending {
		return fmt.Errorf("incident %s is %s: %w", id, incident.Status, ErrEnrichmentStale)
	}

	incident.AIAnalysis = &analysis
	if severity, ok := enrichment.NormalizeSeverity(analysis.Severity); ok {
		incident.Severity = severity
	}

	if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.publisher.Publish(ctx, realtime.IncidentUpdated(incident))
	return nil
}

// Reconcile returns rescuers to Available when their current task is
// missing, resolved or absent while they are marked Busy. It also marks
// rescuers holding an active task as Busy. Returns the number of repaired rescuers.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	list, err := s.rescuers.ListBusyForUpdateTx(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("list busy rescuers: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	repaired := 0
	for _, rescuer := range list {
		changed, err := s.reconcileRescuerTx(ctx, tx, rescuer)
		if err != nil {
			return 0, err
		}
		if !changed {
			continue
		}
		if err := s.rescuers.UpdateAssignmentTx(ctx, tx, rescuer); err != nil {
			return 0, fmt.Errorf("update rescuer %s: %w", rescuer.ID, err)
		}
		logger.Info("rescuer reconciled",
			"rescuer_id", rescuer.ID,
			"availability", rescuer.AvailabilityStatus,
		)
		repaired++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	recordRelease(releaseReconciled, repaired)
	return repaired, nil
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Reconcile(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("reconciliation failed", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Warn("reconciliation repaired rescuers", "count", n)
			}
		}
	}
}

func (s *Service) reconcileRescuerTx(ctx context.Context, tx pgx.Tx, rescuer *domain.Rescuer) (bool, error) {
	if rescuer.CurrentTask == nil {
		if rescuer.AvailabilityStatus != domain.AvailabilityBusy {
			return false, nil
		}
		rescuer.ReleaseTask()
		return true, nil
	}

	taskID := *rescuer.CurrentTask
	incident, err := s.repo.GetIncidentTx(ctx, tx, taskID)
	switch {
	case errors.Is(err, ErrIncidentNotFound):
		rescuer.ReleaseTask()
		return true, nil
	case err != nil:
		return false, fmt.Errorf("get incident %s: %w", taskID, err)
	case incident.Status.IsResolved():
		rescuer.CompleteTask(taskID)
		return true, nil
	case rescuer.AvailabilityStatus != domain.AvailabilityBusy:
		rescuer.AssignTask(taskID)
		return true, nil
	}
	return false, nil
}

// dispatchTx hands the incident to rescuerID, releasing any other holder.
func (s *Service) dispatchTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident, rescuerID string) error {
	logger := ctxlog.FromContext(ctx)

	holder, err := s.rescuers.FindByCurrentTaskForUpdateTx(ctx, tx, incident.ID)
	switch {
	case errors.Is(err, rescuers.ErrRescuerNotFound):
	case err != nil:
		return fmt.Errorf("find current holder: %w", err)
	case holder.ID != rescuerID:
		holder.ReleaseTask()
		if err := s.rescuers.UpdateAssignmentTx(ctx, tx, holder); err != nil {
			return fmt.Errorf("release rescuer %s: %w", holder.ID, err)
		}
		recordRelease(releaseReassigned, 1)
		logger.Info("rescuer released by reassignment", "incident_id", incident.ID, "rescuer_id", holder.ID)
	}

	rescuer, err := s.rescuers.GetRescuerForUpdateTx(ctx, tx, rescuerID)
	if errors.Is(err, rescuers.ErrRescuerNotFound) {
		logger.Warn("assigned rescuer not found, incident updated without dispatch",
			"incident_id", incident.ID,
			"rescuer_id", rescuerID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get rescuer: %w", err)
	}

	if rescuer.CurrentTask != nil && !rescuer.HoldsTask(incident.ID) {
		logger.Warn("rescuer moved off an unfinished task",
			"rescuer_id", rescuer.ID,
			"previous_incident_id", *rescuer.CurrentTask,
			"incident_id", incident.ID,
		)
	}

	rescuer.AssignTask(incident.ID)
	if err := s.rescuers.UpdateAssignmentTx(ctx, tx, rescuer); err != nil {
		return fmt.Errorf("assign rescuer: %w", err)
	}
	return nil
}

// completeTx frees the rescuer working the incident and records it in their history.
func (s *Service) completeTx(ctx context.Context, tx pgx.Tx, incidentID string) error {
	rescuer, err := s.rescuers.FindByCurrentTaskForUpdateTx(ctx, tx, incidentID)
	if errors.Is(err, rescuers.ErrRescuerNotFound) {
		ctxlog.FromContext(ctx).Debug("resolved incident has no working rescuer", "incident_id", incidentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find working rescuer: %w", err)
	}

	rescuer.CompleteTask(incidentID)
	if err := s.rescuers.UpdateAssignmentTx(ctx, tx, rescuer); err != nil {
		return fmt.Errorf("complete rescuer task: %w", err)
	}
	recordRelease(releaseResolved, 1)
	return nil
}

func (s *Service) applyFields(incident *domain.Incident, input UpdateIncidentInput) {
	if input.Severity != nil {
		incident.Severity = *input.Severity
	}
	if input.Department != nil {
		department := *input.Department
		incident.Department = &department
	}
	if input.Status != nil {
		incident.Status = *input.Status
	}
	if input.AssignedRescuerID != nil {
		incident.AssignedRescuerID = nonEmpty(input.AssignedRescuerID)
	}
	if input.ResolutionDetails != nil {
		details := *input.ResolutionDetails
		if details.ResolvedAt == nil {
			resolvedAt := s.now().UTC()
			details.ResolvedAt = &resolvedAt
		}
		incident.ResolutionDetails = &details
	}
}

func validateUpdate(input UpdateIncidentInput) error {
	if input.Status != nil && !input.Status.IsValid() {
		return ErrInvalidStatus
	}
	if input.Severity != nil && !input.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	if input.Department != nil && !input.Department.IsValid() {
		return ErrInvalidDepartment
	}
	if input.AssignedRescuerID != nil && *input.AssignedRescuerID != "" {
		if _, err := uuid.Parse(*input.AssignedRescuerID); err != nil {
			return ErrInvalidRescuerID
		}
	}
	return nil
}

// authorizeUpdate lets officers change anything. A rescuer may only move
// the status or close out an incident assigned to them.
func authorizeUpdate(actor domain.Actor, incident *domain.Incident, input UpdateIncidentInput) error {
	if actor.Role.HasPermission(domain.RoleOfficer) {
		return nil
	}
	if actor.Role != domain.RoleRescuer {
		return ErrForbidden
	}
	if incident.AssignedRescuerID == nil || *incident.AssignedRescuerID != actor.UserID {
		return ErrForbidden
	}
	if input.Severity != nil || input.Department != nil || input.AssignedRescuerID != nil {
		return ErrForbidden
	}
	return nil
}

// dispatches reports whether the update assigns the incident to a rescuer.
func (in UpdateIncidentInput) dispatches() bool {
	return in.Status != nil && *in.Status == domain.IncidentStatusAssigned &&
		in.AssignedRescuerID != nil && *in.AssignedRescuerID != ""
}

// changesLockedFields reports whether the update touches anything a
// resolved incident no longer accepts. Resolution details stay editable.
func (in UpdateIncidentInput) changesLockedFields(current *domain.Incident) bool {
	if in.Status != nil && *in.Status != current.Status {
		return true
	}
	if in.Severity != nil && *in.Severity != current.Severity {
		return true
	}
	if in.Department != nil && (current.Department == nil || *in.Department != *current.Department) {
		return true
	}
	if in.AssignedRescuerID != nil {
		next := nonEmpty(in.AssignedRescuerID)
		if (next == nil) != (current.AssignedRescuerID == nil) {
			return true
		}
		if next != nil && *next != *current.AssignedRescuerID {
			return true
		}
	}
	return false
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
