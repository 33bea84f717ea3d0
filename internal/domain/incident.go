package domain

import "time"

// IncidentStatus represents the lifecycle position of an incident.
type IncidentStatus string

// Incident statuses in lifecycle order.
const (
	IncidentStatusPending  IncidentStatus = "Pending"
	IncidentStatusAssigned IncidentStatus = "Assigned"
	IncidentStatusEnRoute  IncidentStatus = "En Route"
	IncidentStatusOnScene  IncidentStatus = "On Scene"
	IncidentStatusResolved IncidentStatus = "Resolved"
)

var incidentStatusRank = map[IncidentStatus]int{
	IncidentStatusPending:  0,
	IncidentStatusAssigned: 1,
	IncidentStatusEnRoute:  2,
	IncidentStatusOnScene:  3,
	IncidentStatusResolved: 4,
}

// IsValid checks if the status is one of the known lifecycle statuses.
func (s IncidentStatus) IsValid() bool {
	_, ok := incidentStatusRank[s]
	return ok
}

// IsResolved reports whether the status is the terminal one.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Resolved only accepts itself. In strict mode statuses may only move forward.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus, strict bool) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsResolved() {
		return false
	}
	if strict {
		return incidentStatusRank[next] > incidentStatusRank[s]
	}
	return true
}

// Severity is the triage severity of an incident. It is independent from the status.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "Critical"
	SeveritySerious  Severity = "Serious"
	SeverityMinor    Severity = "Minor"
	SeverityPending  Severity = "Pending"
	SeverityFake     Severity = "Fake"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeveritySerious, SeverityMinor, SeverityPending, SeverityFake:
		return true
	}
	return false
}

// Department is a responding organisation.
type Department string

// Departments.
const (
	DepartmentMedical        Department = "Medical"
	DepartmentFire           Department = "Fire"
	DepartmentPolice         Department = "Police"
	DepartmentDisasterRelief Department = "Disaster-Relief"
)

// IsValid checks if the department is a known value.
func (d Department) IsValid() bool {
	switch d {
	case DepartmentMedical, DepartmentFire, DepartmentPolice, DepartmentDisasterRelief:
		return true
	}
	return false
}

// Location is a WGS84 point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsValid checks coordinate ranges.
func (l Location) IsValid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// AIAnalysis is the structured annotation produced by the image classifier.
type AIAnalysis struct {
	Incident    string `json:"incident"`
	HumanAtRisk bool   `json:"human_at_risk"`
	Severity    string `json:"severity"`
	Reason      string `json:"reason"`
}

// ResolutionDetails is the closing report of an incident.
type ResolutionDetails struct {
	Report     string     `json:"report"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
}

// DefaultIncidentType is used when a report carries no type.
const DefaultIncidentType = "General"

// Incident is a citizen-reported emergency.
type Incident struct {
	ID                string             `json:"id"`
	Type              string             `json:"type"`
	Severity          Severity           `json:"severity"`
	Department        *Department        `json:"department"`
	Description       string             `json:"description"`
	Location          Location           `json:"location"`
	ImageURL          *string            `json:"imageUrl"`
	AudioURL          *string            `json:"audioUrl"`
	VoiceTranscript   *string            `json:"voiceTranscript"`
	AIAnalysis        *AIAnalysis        `json:"aiAnalysis"`
	Status            IncidentStatus     `json:"status"`
	AssignedRescuerID *string            `json:"assignedRescuerId"`
	ResolutionDetails *ResolutionDetails `json:"resolutionDetails"`
	Version           int64              `json:"version"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}
