package domain

import (
	"slices"
	"time"
)

// Availability is the dispatch availability of a rescuer.
type Availability string

// Availability values.
const (
	AvailabilityAvailable Availability = "Available"
	AvailabilityBusy      Availability = "Busy"
	AvailabilityOffline   Availability = "Offline"
)

// IsValid checks if the availability is a known value.
func (a Availability) IsValid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityOffline:
		return true
	}
	return false
}

// Rescuer is a field responder that can be dispatched to incidents.
// Busy holds exactly when CurrentTask is set.
type Rescuer struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Department         Department   `json:"department"`
	VehicleID          string       `json:"vehicleId"`
	Phone              string       `json:"phone"`
	Email              string       `json:"email"`
	PasswordHash       string       `json:"-"`
	Role               Role         `json:"role"`
	AvailabilityStatus Availability `json:"availabilityStatus"`
	CurrentTask        *string      `json:"currentTask"`
	TaskHistory        []string     `json:"taskHistory"`
	Location           Location     `json:"location"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// AssignTask marks the rescuer busy with the given incident.
func (r *Rescuer) AssignTask(incidentID string) {
	r.AvailabilityStatus = AvailabilityBusy
	r.CurrentTask = &incidentID
}

// ReleaseTask frees the rescuer without recording the task.
func (r *Rescuer) ReleaseTask() {
	r.AvailabilityStatus = AvailabilityAvailable
	r.CurrentTask = nil
}

// CompleteTask frees the rescuer and records the incident in the history once.
func (r *Rescuer) CompleteTask(incidentID string) {
	r.ReleaseTask()
	if !slices.Contains(r.TaskHistory, incidentID) {
		r.TaskHistory = append(r.TaskHistory, incidentID)
	}
}

// HoldsTask reports whether the rescuer is currently working the incident.
func (r *Rescuer) HoldsTask(incidentID string) bool {
	return r.CurrentTask != nil && *r.CurrentTask == incidentID
}
