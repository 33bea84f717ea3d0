// Package config loads application configuration from defaults, a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys use a double underscore: RESILIO_DATABASE__URL.
const EnvPrefix = "RESILIO_"

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	JWT        JWTConfig        `koanf:"jwt"`
	CORS       CORSConfig       `koanf:"cors"`
	Auth       AuthConfig       `koanf:"auth"`
	Workflow   WorkflowConfig   `koanf:"workflow"`
	Realtime   RealtimeConfig   `koanf:"realtime"`
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	Media      MediaConfig      `koanf:"media"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains token signing settings.
type JWTConfig struct {
	SecretKey     string        `koanf:"secret_key"`
	TokenDuration time.Duration `koanf:"token_duration"`
}

// CORSConfig contains allowed origins for browsers and websocket upgrades.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig contains self-registration policy and the bootstrap account.
// When BootstrapAdminEmail is set the administrator is created on start-up
// unless an account with that email already exists.
type AuthConfig struct {
	AllowAdminSignup       bool   `koanf:"allow_admin_signup"`
	BootstrapAdminEmail    string `koanf:"bootstrap_admin_email"`
	BootstrapAdminPassword string `koanf:"bootstrap_admin_password"`
}

// WorkflowConfig contains incident lifecycle policy.
type WorkflowConfig struct {
	StrictTransitions bool          `koanf:"strict_transitions"`
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
}

// RealtimeConfig contains push channel settings.
type RealtimeConfig struct {
	BufferSize   int           `koanf:"buffer_size"`
	MaxDropped   int           `koanf:"max_dropped"`
	PingInterval time.Duration `koanf:"ping_interval"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	Redis        RedisConfig   `koanf:"redis"`
}

// RedisConfig contains the optional cross-instance relay settings.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Channel  string `koanf:"channel"`
}

// EnrichmentConfig contains AI classifier settings.
type EnrichmentConfig struct {
	Enabled    bool          `koanf:"enabled"`
	URL        string        `koanf:"url"`
	Timeout    time.Duration `koanf:"timeout"`
	RateLimit  float64       `koanf:"rate_limit"`
	Burst      int           `koanf:"burst"`
	NumWorkers int           `koanf:"num_workers"`
	QueueSize  int           `koanf:"queue_size"`
}

// MediaConfig contains object storage settings.
type MediaConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Endpoint       string `koanf:"endpoint"`
	AccessKey      string `koanf:"access_key"`
	SecretKey      string `koanf:"secret_key"`
	Bucket         string `koanf:"bucket"`
	UseSSL         bool   `koanf:"use_ssl"`
	PublicBaseURL  string `koanf:"public_base_url"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  60 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			TokenDuration: 24 * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Workflow: WorkflowConfig{
			ReconcileInterval: 5 * time.Minute,
		},
		Realtime: RealtimeConfig{
			BufferSize:   64,
			MaxDropped:   32,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "resilio:incidents",
			},
		},
		Enrichment: EnrichmentConfig{
			Timeout:    30 * time.Second,
			RateLimit:  5,
			Burst:      5,
			NumWorkers: 4,
			QueueSize:  256,
		},
		Media: MediaConfig{
			Bucket:         "resilio-media",
			MaxUploadBytes: 32 << 20,
		},
	}
}

// Load reads configuration. Values from the environment override the file,
// and the file overrides defaults. A .env file in the working directory is
// loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.JWT.TokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.token_duration must be positive"))
	}
	if c.Auth.BootstrapAdminEmail != "" && len(c.Auth.BootstrapAdminPassword) < 8 {
		errs = append(errs, errors.New("auth.bootstrap_admin_password must be at least 8 characters"))
	}
	if c.Enrichment.Enabled && c.Enrichment.URL == "" {
		errs = append(errs, errors.New("enrichment.url is required when enrichment is enabled"))
	}
	if c.Media.Enabled && (c.Media.Endpoint == "" || c.Media.Bucket == "") {
		errs = append(errs, errors.New("media.endpoint and media.bucket are required when media is enabled"))
	}
	if c.Realtime.Redis.Enabled && c.Realtime.Redis.Addr == "" {
		errs = append(errs, errors.New("realtime.redis.addr is required when redis is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
