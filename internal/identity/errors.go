package identity

import "errors"

// Identity errors.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRole         = errors.New("role must be officer or admin")
	ErrAdminSignupDisabled = errors.New("admin self-registration is disabled")
	ErrPasswordTooLong     = errors.New("password must be at most 72 bytes")
)
