// Package realtime fans incident changes out to connected dashboards.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/bissquit/resilio/internal/domain"
)

// EventType names an incident change.
type EventType string

// Event types.
const (
	EventIncidentCreated EventType = "incident-created"
	EventIncidentUpdated EventType = "incident-updated"
	EventIncidentDeleted EventType = "incident-deleted"
)

// Event is a single incident change.
type Event struct {
	Type     EventType
	Incident *domain.Incident
	// ID is set for deletions, where no record remains.
	ID string
}

// IncidentCreated builds a creation event.
func IncidentCreated(incident *domain.Incident) Event {
	return Event{Type: EventIncidentCreated, Incident: incident, ID: incident.ID}
}

// IncidentUpdated builds an update event.
func IncidentUpdated(incident *domain.Incident) Event {
	return Event{Type: EventIncidentUpdated, Incident: incident, ID: incident.ID}
}

// IncidentDeleted builds a deletion event.
func IncidentDeleted(id string) Event {
	return Event{Type: EventIncidentDeleted, ID: id}
}

// Frame is the wire representation sent to clients.
type Frame struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type deletedPayload struct {
	ID string `json:"id"`
}

// Encode serialises the event into a wire frame.
func (e Event) Encode() ([]byte, error) {
	var payload interface{} = e.Incident
	if e.Type == EventIncidentDeleted || e.Incident == nil {
		payload = deletedPayload{ID: e.ID}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}

	frame, err := json.Marshal(Frame{Event: e.Type, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return frame, nil
}
