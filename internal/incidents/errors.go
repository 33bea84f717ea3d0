package incidents

import (
	"errors"

	"github.com/bissquit/resilio/internal/enrichment"
)

// Incident errors.
var (
	ErrIncidentNotFound  = errors.New("incident not found")
	ErrInvalidStatus     = errors.New("invalid incident status")
	ErrInvalidSeverity   = errors.New("invalid severity")
	ErrInvalidDepartment = errors.New("invalid department")
	ErrInvalidLocation   = errors.New("invalid location")
	ErrInvalidRescuerID  = errors.New("invalid assigned rescuer id")
	ErrIncidentResolved  = errors.New("incident is resolved and cannot be changed")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrForbidden         = errors.New("not allowed to modify this incident")
	ErrMediaUnavailable  = errors.New("media uploads are not available")
	ErrEnrichmentStale   = enrichment.ErrStale
)
