// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/resilio/internal/config"
	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/enrichment"
	"github.com/bissquit/resilio/internal/identity"
	"github.com/bissquit/resilio/internal/identity/jwt"
	identitypostgres "github.com/bissquit/resilio/internal/identity/postgres"
	"github.com/bissquit/resilio/internal/incidents"
	incidentspostgres "github.com/bissquit/resilio/internal/incidents/postgres"
	"github.com/bissquit/resilio/internal/media"
	"github.com/bissquit/resilio/internal/pkg/ctxlog"
	"github.com/bissquit/resilio/internal/pkg/httputil"
	"github.com/bissquit/resilio/internal/pkg/metrics"
	"github.com/bissquit/resilio/internal/pkg/postgres"
	redisclient "github.com/bissquit/resilio/internal/pkg/redis"
	"github.com/bissquit/resilio/internal/realtime"
	"github.com/bissquit/resilio/internal/rescuers"
	rescuerspostgres "github.com/bissquit/resilio/internal/rescuers/postgres"
	"github.com/bissquit/resilio/internal/version"
	"github.com/bissquit/resilio/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const requestTimeout = 60 * time.Second

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server

	hub        *realtime.Hub
	broker     *realtime.RedisBroker
	worker     *enrichment.Worker
	incidents  *incidents.Service
	background context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		background: backgroundCancel,
	}

	router, err := app.setupRouter(connectCtx, backgroundCtx)
	if err != nil {
		app.release()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.goBackground(func() { metrics.RunDBPoolCollector(backgroundCtx, db, metrics.DefaultDBPoolInterval) })

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. In-flight requests finish
// first, then queued enrichment jobs are abandoned and websocket clients are
// disconnected before the stores are closed.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	for name, server := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	a.release()

	return errors.Join(errs...)
}

// release stops background work and closes connections. The enrichment
// worker stops before the background context is cancelled so that in-flight
// jobs finish, and the broker flushes before the hub disconnects sockets.
func (a *App) release() {
	if a.worker != nil {
		a.worker.Stop()
	}

	a.background()
	a.wg.Wait()

	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warn("failed to close realtime relay", "error", err)
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", "error", err)
		}
	}
	a.db.Close()
}

func (a *App) goBackground(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Incidents returns the incident service. Used in tests to run
// reconciliation and apply enrichment results directly.
func (a *App) Incidents() *incidents.Service {
	return a.incidents
}

// Hub returns the local realtime hub.
func (a *App) Hub() *realtime.Hub {
	return a.hub
}

// setupPublisher creates the hub and, when configured, the Redis relay that
// shares it with other instances.
func (a *App) setupPublisher(ctx, backgroundCtx context.Context) (realtime.Publisher, error) {
	a.hub = realtime.NewHub(a.config.Realtime.MaxDropped)

	redisCfg := a.config.Realtime.Redis
	if !redisCfg.Enabled {
		slog.Info("realtime relay disabled, events stay on this instance")
		return a.hub, nil
	}

	client, err := redisclient.Connect(ctx, redisclient.Config{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	if err != nil {
		return nil, err
	}
	a.redis = client

	broker := realtime.NewRedisBroker(client, redisCfg.Channel, a.hub)
	if err := broker.Start(backgroundCtx); err != nil {
		_ = broker.Close()
		return nil, fmt.Errorf("start realtime relay: %w", err)
	}
	a.broker = broker

	return broker, nil
}

func (a *App) setupMediaStore(ctx context.Context) (media.Store, error) {
	cfg := a.config.Media
	if !cfg.Enabled {
		slog.Warn("media storage is disabled: reports with attachments will be rejected")
		return media.Disabled{}, nil
	}

	store, err := media.NewMinioStore(ctx, media.Config{
		Endpoint:      cfg.Endpoint,
		AccessKey:     cfg.AccessKey,
		SecretKey:     cfg.SecretKey,
		Bucket:        cfg.Bucket,
		UseSSL:        cfg.UseSSL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create media store: %w", err)
	}
	return store, nil
}

func (a *App) setupRouter(ctx, backgroundCtx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Resilio API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	publisher, err := a.setupPublisher(ctx, backgroundCtx)
	if err != nil {
		return nil, err
	}

	store, err := a.setupMediaStore(ctx)
	if err != nil {
		return nil, err
	}

	usersRepo := identitypostgres.NewRepository(a.db)
	rescuersService := rescuers.NewService(rescuerspostgres.NewRepository(a.db), usersRepo)
	rescuersHandler := rescuers.NewHandler(rescuersService)

	var enricher incidents.Enricher = enrichment.Disabled{}
	if a.config.Enrichment.Enabled {
		client := enrichment.NewClient(enrichment.Config{
			URL:       a.config.Enrichment.URL,
			Timeout:   a.config.Enrichment.Timeout,
			RateLimit: a.config.Enrichment.RateLimit,
			Burst:     a.config.Enrichment.Burst,
		})
		a.worker = enrichment.NewWorker(enrichment.WorkerConfig{
			NumWorkers: a.config.Enrichment.NumWorkers,
			QueueSize:  a.config.Enrichment.QueueSize,
			JobTimeout: a.config.Enrichment.Timeout + 15*time.Second,
		}, client)
		enricher = a.worker
	} else {
		slog.Warn("enrichment is disabled: incidents keep pending severity until triaged")
	}

	a.incidents = incidents.NewService(
		incidentspostgres.NewRepository(a.db),
		rescuersService,
		publisher,
		enricher,
		incidents.ServiceConfig{StrictTransitions: a.config.Workflow.StrictTransitions},
	)
	incidentsHandler := incidents.NewHandler(a.incidents, store, a.config.Media.MaxUploadBytes)

	if a.worker != nil {
		a.worker.Start(backgroundCtx, a.incidents)
	}
	if interval := a.config.Workflow.ReconcileInterval; interval > 0 {
		a.goBackground(func() { a.incidents.RunReconciler(backgroundCtx, interval) })
	}

	identityService := identity.NewService(
		usersRepo,
		rescuersService,
		jwt.NewAuthenticator(jwt.Config{
			SecretKey:     a.config.JWT.SecretKey,
			TokenDuration: a.config.JWT.TokenDuration,
		}),
		identity.Config{AllowAdminSignup: a.config.Auth.AllowAdminSignup},
	)
	identityHandler := identity.NewHandler(identityService)

	if email := a.config.Auth.BootstrapAdminEmail; email != "" {
		created, err := identityService.EnsureAdmin(ctx, email, a.config.Auth.BootstrapAdminPassword)
		if err != nil {
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			slog.Info("bootstrap admin created", "email", email)
		}
	}

	wsHandler := realtime.NewHandler(a.hub, realtime.HandlerConfig{
		BufferSize:     a.config.Realtime.BufferSize,
		PingInterval:   a.config.Realtime.PingInterval,
		WriteTimeout:   a.config.Realtime.WriteTimeout,
		AllowedOrigins: a.config.CORS.AllowedOrigins,
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Websocket connections are long lived and must not inherit the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))
			wsHandler.RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			identityHandler.RegisterRoutes(r)
			incidentsHandler.RegisterPublicRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.AuthMiddleware(identityService))

				identityHandler.RegisterProtectedRoutes(r)
				incidentsHandler.RegisterRoutes(r)
				rescuersHandler.RegisterRoutes(r)

				r.Group(func(r chi.Router) {
					r.Use(httputil.RequireRole(domain.RoleOfficer))
					incidentsHandler.RegisterOfficerRoutes(r)
					rescuersHandler.RegisterOfficerRoutes(r)
				})

				r.Group(func(r chi.Router) {
					r.Use(httputil.RequireRole(domain.RoleAdmin))
					incidentsHandler.RegisterAdminRoutes(r)
				})
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
