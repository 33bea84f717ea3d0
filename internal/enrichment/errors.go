package enrichment

import (
	"errors"
	"fmt"
)

// ErrUpstream marks any failure of the classifier service.
var ErrUpstream = errors.New("enrichment upstream failure")

// UpstreamError describes a failed classifier call.
type UpstreamError struct {
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("classifier error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("classifier error: %s", e.Message)
}

// Unwrap lets callers match ErrUpstream with errors.Is.
func (e *UpstreamError) Unwrap() error { return ErrUpstream }
