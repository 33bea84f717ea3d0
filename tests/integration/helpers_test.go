//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/testutil"
	"github.com/stretchr/testify/require"
)

const rescuerPassword = "rescuer-password"

// loginAsAdmin returns a client authenticated as the bootstrap administrator.
func loginAsAdmin(t *testing.T) *testutil.Client {
	t.Helper()
	client := newTestClient(t)
	client.LoginAs(t, adminEmail, adminPassword)
	return client
}

// loginAsOfficer registers a fresh officer and returns an authenticated client.
func loginAsOfficer(t *testing.T) *testutil.Client {
	t.Helper()
	client := newTestClient(t)
	email := testutil.RandomEmail()

	resp, err := client.POST("/api/v1/register", map[string]string{
		"name":     "Officer",
		"email":    email,
		"password": "officer-password",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, testutil.ReadBody(t, resp))
	_ = resp.Body.Close()

	client.LoginAs(t, email, "officer-password")
	return client
}

// createRescuer registers a rescuer through the officer API and returns it
// along with its login email.
func createRescuer(t *testing.T, officer *testutil.Client, department domain.Department) (*domain.Rescuer, string) {
	t.Helper()
	email := testutil.RandomEmail()

	resp, err := officer.POST("/api/v1/rescuers", map[string]string{
		"name":       "Rescuer",
		"department": string(department),
		"vehicleId":  "UNIT-1",
		"email":      email,
		"password":   rescuerPassword,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data domain.Rescuer `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return &result.Data, email
}

// loginAsRescuer returns a client authenticated as the rescuer with email.
func loginAsRescuer(t *testing.T, email string) *testutil.Client {
	t.Helper()
	client := newTestClient(t)
	client.LoginAs(t, email, rescuerPassword)
	return client
}

// reportIncident files a text-only report without authentication.
func reportIncident(t *testing.T, description string) *domain.Incident {
	t.Helper()
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/incidents", map[string]interface{}{
		"type":        "Fire",
		"description": description,
		"lat":         12.97,
		"lng":         77.59,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return &result.Data
}

func getIncident(t *testing.T, client *testutil.Client, id string) *domain.Incident {
	t.Helper()
	resp, err := client.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return &result.Data
}

func getRescuer(t *testing.T, client *testutil.Client, id string) *domain.Rescuer {
	t.Helper()
	resp, err := client.GET("/api/v1/rescuers/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data domain.Rescuer `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return &result.Data
}

func updateIncident(t *testing.T, client *testutil.Client, id string, body map[string]interface{}) *http.Response {
	t.Helper()
	resp, err := client.PUT("/api/v1/incidents/"+id, body)
	require.NoError(t, err)
	return resp
}
