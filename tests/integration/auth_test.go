//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_Register_Login_Me(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail()

	resp, err := client.POST("/api/v1/register", map[string]string{
		"name":     "Asha",
		"email":    email,
		"password": "password123",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var registered struct {
		Data struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &registered)
	assert.Equal(t, email, registered.Data.Email)
	assert.Equal(t, "officer", registered.Data.Role)

	id := client.LoginAs(t, email, "password123")
	assert.Equal(t, registered.Data.ID, id)

	resp, err = client.GET("/api/v1/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me struct {
		Data struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &me)
	assert.Equal(t, id, me.Data.ID)
	assert.Equal(t, "Asha", me.Data.Name)
}

func TestAuth_DuplicateEmail(t *testing.T) {
	client := newTestClient(t)
	body := map[string]string{"email": testutil.RandomEmail(), "password": "password123"}

	resp, err := client.POST("/api/v1/register", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.POST("/api/v1/register", body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_AdminSignupDisabled(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/register", map[string]string{
		"email":    testutil.RandomEmail(),
		"password": "password123",
		"role":     "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_LoginErrors(t *testing.T) {
	client := newTestClient(t)

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
	}{
		{"unknown email", testutil.RandomEmail(), "password123", http.StatusNotFound},
		{"wrong password", adminEmail, "wrong-password", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.SetT(t)
			resp, err := client.POST("/api/v1/login", map[string]string{
				"email":    tt.email,
				"password": tt.password,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}

func TestAuth_RescuerLogin(t *testing.T) {
	officer := loginAsOfficer(t)
	rescuer, email := createRescuer(t, officer, domain.DepartmentMedical)

	client := newTestClient(t)
	id := client.LoginAs(t, email, rescuerPassword)
	assert.Equal(t, rescuer.ID, id)

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me struct {
		Data struct {
			Role string `json:"role"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &me)
	assert.Equal(t, "rescuer", me.Data.Role)
}

func TestAuth_ProtectedRoutes(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.GET("/api/v1/incidents")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	client.Token = "not-a-jwt"
	resp, err = client.GET("/api/v1/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuth_RoleChecks(t *testing.T) {
	officer := loginAsOfficer(t)
	_, email := createRescuer(t, officer, domain.DepartmentFire)
	rescuer := loginAsRescuer(t, email)
	incident := reportIncident(t, "role checks")

	tests := []struct {
		name       string
		client     func() (*http.Response, error)
		wantStatus int
	}{
		{
			name:       "rescuer cannot delete incidents",
			client:     func() (*http.Response, error) { return rescuer.DELETE("/api/v1/incidents/" + incident.ID) },
			wantStatus: http.StatusForbidden,
		},
		{
			name: "rescuer cannot register rescuers",
			client: func() (*http.Response, error) {
				return rescuer.POST("/api/v1/rescuers", map[string]string{
					"name": "x", "department": "Fire", "email": testutil.RandomEmail(), "password": "password123",
				})
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "officer cannot reconcile",
			client:     func() (*http.Response, error) { return officer.POST("/api/v1/admin/reconcile", nil) },
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rescuer.SetT(t)
			officer.SetT(t)
			resp, err := tt.client()
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}
