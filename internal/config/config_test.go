package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database:
  url: postgres://file/db
jwt:
  secret_key: file-secret
workflow:
  strict_transitions: true
  reconcile_interval: 1m
realtime:
  buffer_size: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/db", cfg.Database.URL)
	assert.Equal(t, "file-secret", cfg.JWT.SecretKey)
	assert.True(t, cfg.Workflow.StrictTransitions)
	assert.Equal(t, time.Minute, cfg.Workflow.ReconcileInterval)
	assert.Equal(t, 8, cfg.Realtime.BufferSize)

	// untouched defaults survive
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TokenDuration)
	assert.Equal(t, 30*time.Second, cfg.Enrichment.Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
database:
  url: postgres://file/db
jwt:
  secret_key: file-secret
`)
	t.Setenv("RESILIO_DATABASE__URL", "postgres://env/db")
	t.Setenv("RESILIO_DATABASE__MAX_OPEN_CONNS", "7")
	t.Setenv("RESILIO_ENRICHMENT__TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.Enrichment.Timeout)
	assert.Equal(t, "file-secret", cfg.JWT.SecretKey)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("RESILIO_DATABASE__URL", "postgres://env/db")
	t.Setenv("RESILIO_JWT__SECRET_KEY", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.SecretKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing database url",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "database.url is required",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.JWT.SecretKey = "" },
			wantErr: "jwt.secret_key is required",
		},
		{
			name:    "enrichment without url",
			mutate:  func(c *Config) { c.Enrichment.Enabled = true },
			wantErr: "enrichment.url is required",
		},
		{
			name: "media without endpoint",
			mutate: func(c *Config) {
				c.Media.Enabled = true
			},
			wantErr: "media.endpoint and media.bucket are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://localhost/db"
			cfg.JWT.SecretKey = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
