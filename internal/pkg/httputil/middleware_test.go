package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	tokens map[string]domain.Role
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	role, ok := s.tokens[token]
	if !ok {
		return "", "", errors.New("bad token")
	}
	return "user-" + token, role, nil
}

func echoActor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := GetActor(r.Context())
		Text(w, http.StatusOK, fmt.Sprintf("%s:%s", actor.UserID, actor.Role))
	})
}

func TestAuthMiddleware(t *testing.T) {
	validator := &stubValidator{tokens: map[string]domain.Role{"good": domain.RoleOfficer}}
	handler := AuthMiddleware(validator)(echoActor())

	tests := []struct {
		name       string
		header     string
		url        string
		wantStatus int
		wantBody   string
	}{
		{"bearer header", "Bearer good", "/", http.StatusOK, "user-good:officer"},
		{"lowercase scheme", "bearer good", "/", http.StatusOK, "user-good:officer"},
		{"query token", "", "/ws?token=good", http.StatusOK, "user-good:officer"},
		{"missing", "", "/", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", "/", http.StatusUnauthorized, "invalid authorization header format"},
		{"invalid token", "Bearer nope", "/", http.StatusUnauthorized, "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(domain.RoleOfficer)(echoActor())

	tests := []struct {
		name       string
		role       domain.Role
		wantStatus int
	}{
		{"admin allowed", domain.RoleAdmin, http.StatusOK},
		{"officer allowed", domain.RoleOfficer, http.StatusOK},
		{"rescuer forbidden", domain.RoleRescuer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(ContextWithUser(req.Context(), "u1", tt.role))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"http://app.local"})(echoActor())

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "http://app.local")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://app.local", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.local")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

var errThing = errors.New("thing not found")

func TestHandleError(t *testing.T) {
	mappings := []ErrorMapping{
		{Error: errThing, Status: http.StatusNotFound},
	}

	t.Run("mapped", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(context.Background(), rec, fmt.Errorf("get thing: %w", errThing), mappings)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "get thing: thing not found", body["error"]["message"])
	})

	t.Run("unmapped hides details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(context.Background(), rec, errors.New("db exploded"), mappings)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "exploded")
	})

	t.Run("body too large", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(context.Background(), rec, fmt.Errorf("read image: %w", &http.MaxBytesError{Limit: 10}), mappings)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleError(context.Background(), rec, fmt.Errorf("query: %w", context.DeadlineExceeded), mappings)

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})
}

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/incidents", http.StatusOK, slog.LevelInfo},
		{"/healthz", http.StatusOK, slog.LevelDebug},
		{"/readyz", http.StatusServiceUnavailable, slog.LevelError},
		{"/api/v1/login", http.StatusUnauthorized, slog.LevelWarn},
		{"/api/v1/incidents", http.StatusInternalServerError, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %d", tt.path, tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, accessLevel(tt.path, tt.status))
		})
	}
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/incidents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/incidents/abc", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	count := testutil.CollectAndCount(metrics.HTTPRequestDuration)
	assert.Positive(t, count)
	assert.Equal(t, http.StatusSwitchingProtocols, statusLabel(0))
}
