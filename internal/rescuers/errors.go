package rescuers

import "errors"

// Registry errors.
var (
	ErrRescuerNotFound     = errors.New("rescuer not found")
	ErrEmailExists         = errors.New("email already registered")
	ErrRescuerBusy         = errors.New("rescuer is on an active task")
	ErrInvalidAvailability = errors.New("availability may only be set to Available or Offline")
	ErrInvalidDepartment   = errors.New("invalid department")
	ErrInvalidRole         = errors.New("invalid rescuer role")
	ErrInvalidLocation     = errors.New("invalid location")
	ErrForbidden           = errors.New("not allowed to modify this rescuer")
	ErrPasswordTooLong     = errors.New("password must be at most 72 bytes")
)
