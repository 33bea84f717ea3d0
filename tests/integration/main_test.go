//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/resilio/internal/app"
	"github.com/bissquit/resilio/internal/config"
	"github.com/bissquit/resilio/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
	testApp       *app.App

	// classifier is the fake enrichment service. Its reply can be swapped per test.
	classifier      *httptest.Server
	classifierReply atomic.Value // string
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

const defaultClassifierReply = `{"analysis":{"incident":"Fire","human_at_risk":true,"severity":"critical","reason":"flames visible"}}`

// newTestClient creates a new test client with OpenAPI validation enabled.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

// newTestClientWithoutValidation creates a test client without OpenAPI validation.
func newTestClientWithoutValidation() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	redisContainer, err := testutil.NewRedisContainer(ctx)
	if err != nil {
		log.Fatalf("start redis: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("terminate redis: %v", err)
		}
	}()

	minioContainer, err := testutil.NewMinioContainer(ctx)
	if err != nil {
		log.Fatalf("start minio: %v", err)
	}
	defer func() {
		if err := minioContainer.Terminate(ctx); err != nil {
			log.Printf("terminate minio: %v", err)
		}
	}()

	classifierReply.Store(defaultClassifierReply)
	classifier = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["emergencyId"] == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(classifierReply.Load().(string)))
	}))
	defer classifier.Close()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Database = config.DatabaseConfig{
		URL:             pgContainer.ConnectionString,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  30 * time.Second,
		ConnectAttempts: 3,
		AutoMigrate:     true,
	}
	cfg.Log = config.LogConfig{Level: "error", Format: "text"}
	cfg.JWT.SecretKey = "test-secret-key"
	cfg.Auth = config.AuthConfig{
		BootstrapAdminEmail:    adminEmail,
		BootstrapAdminPassword: adminPassword,
	}
	// Reconciliation is triggered explicitly by tests.
	cfg.Workflow.ReconcileInterval = 0
	cfg.Realtime.Redis.Enabled = true
	cfg.Realtime.Redis.Addr = redisContainer.Addr
	cfg.Enrichment = config.EnrichmentConfig{
		Enabled:    true,
		URL:        classifier.URL,
		Timeout:    5 * time.Second,
		NumWorkers: 2,
		QueueSize:  16,
	}
	cfg.Media = config.MediaConfig{
		Enabled:        true,
		Endpoint:       minioContainer.Addr,
		AccessKey:      testutil.MinioAccessKey,
		SecretKey:      testutil.MinioSecretKey,
		Bucket:         "resilio-test",
		MaxUploadBytes: 1 << 20,
	}

	testApp, err = app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(testApp.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	if missing := testValidator.Uncovered(); len(missing) > 0 {
		log.Printf("documented operations without a validated response: %v", missing)
	}

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := testApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
