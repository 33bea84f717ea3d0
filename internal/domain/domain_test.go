package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncidentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     IncidentStatus
		to       IncidentStatus
		strict   bool
		expected bool
	}{
		{"pending to assigned", IncidentStatusPending, IncidentStatusAssigned, false, true},
		{"skip to resolved", IncidentStatusPending, IncidentStatusResolved, false, true},
		{"backward permissive", IncidentStatusOnScene, IncidentStatusAssigned, false, true},
		{"backward strict", IncidentStatusOnScene, IncidentStatusAssigned, true, false},
		{"forward strict", IncidentStatusAssigned, IncidentStatusEnRoute, true, true},
		{"same status strict", IncidentStatusEnRoute, IncidentStatusEnRoute, true, true},
		{"resolved is terminal", IncidentStatusResolved, IncidentStatusPending, false, false},
		{"resolved to resolved", IncidentStatusResolved, IncidentStatusResolved, false, true},
		{"unknown target", IncidentStatusPending, IncidentStatus("Closed"), false, false},
		{"lowercase target", IncidentStatusPending, IncidentStatus("assigned"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to, tt.strict))
		})
	}
}

func TestSeverity_IsValid(t *testing.T) {
	assert.True(t, SeverityCritical.IsValid())
	assert.True(t, SeverityPending.IsValid())
	assert.True(t, SeverityFake.IsValid())
	assert.False(t, Severity("High").IsValid())
	assert.False(t, Severity("critical").IsValid())
}

func TestDepartment_IsValid(t *testing.T) {
	assert.True(t, DepartmentDisasterRelief.IsValid())
	assert.False(t, Department("Disaster Relief").IsValid())
	assert.False(t, Department("").IsValid())
}

func TestLocation_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		location Location
		expected bool
	}{
		{"origin", Location{0, 0}, true},
		{"bounds", Location{-90, 180}, true},
		{"lat out of range", Location{90.5, 10}, false},
		{"lng out of range", Location{10, -180.1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.location.IsValid())
		})
	}
}

func TestRescuer_TaskLifecycle(t *testing.T) {
	r := &Rescuer{AvailabilityStatus: AvailabilityAvailable}

	r.AssignTask("inc-1")
	assert.Equal(t, AvailabilityBusy, r.AvailabilityStatus)
	assert.True(t, r.HoldsTask("inc-1"))
	assert.False(t, r.HoldsTask("inc-2"))

	r.CompleteTask("inc-1")
	assert.Equal(t, AvailabilityAvailable, r.AvailabilityStatus)
	assert.Nil(t, r.CurrentTask)
	assert.Equal(t, []string{"inc-1"}, r.TaskHistory)

	r.AssignTask("inc-1")
	r.CompleteTask("inc-1")
	assert.Equal(t, []string{"inc-1"}, r.TaskHistory, "history must not contain duplicates")

	r.AssignTask("inc-2")
	r.ReleaseTask()
	assert.Equal(t, []string{"inc-1"}, r.TaskHistory, "release does not record history")
}

func TestRole_HasPermission(t *testing.T) {
	tests := []struct {
		role     Role
		min      Role
		expected bool
	}{
		{RoleAdmin, RoleOfficer, true},
		{RoleOfficer, RoleOfficer, true},
		{RoleRescuer, RoleOfficer, false},
		{RoleRescuer, RoleRescuer, true},
		{Role(""), RoleRescuer, false},
		{Role("superuser"), RoleRescuer, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.min), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.role.HasPermission(tt.min))
		})
	}
}
