package domain

import "time"

// Role represents an access level.
type Role string

// Roles in ascending order of privilege.
const (
	RoleRescuer Role = "rescuer"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
)

var roleRank = map[Role]int{
	RoleRescuer: 1,
	RoleOfficer: 2,
	RoleAdmin:   3,
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// HasPermission reports whether r is at least min.
func (r Role) HasPermission(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// User is an officer or administrator of the control room.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Actor identifies who performs an operation.
type Actor struct {
	UserID string
	Role   Role
}

// SystemActor is used for background operations.
var SystemActor = Actor{UserID: "system", Role: RoleAdmin}
