package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/resilio/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to a status. An empty Message sends err.Error().
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the response for the first mapping err matches.
// Oversized bodies and expired request deadlines get their own statuses;
// anything else is logged and reported as 500 without details.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, context.DeadlineExceeded):
		ctxlog.FromContext(ctx).Warn("request deadline exceeded", "error", err)
		Error(w, http.StatusGatewayTimeout, "request timed out")
	default:
		ctxlog.FromContext(ctx).Error("internal error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
