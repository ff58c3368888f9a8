package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"huddle/internal/admission"
	"huddle/internal/api"
	"huddle/internal/assistant"
	"huddle/internal/backoff"
	"huddle/internal/config"
	"huddle/internal/database"
	"huddle/internal/dispatch"
	"huddle/internal/identity"
	"huddle/internal/project"
	"huddle/internal/room"
	"huddle/internal/websocket"
	pkgdatabase "huddle/pkg/database"
	"huddle/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	dbManager  *database.Manager
	redis      *redis.Client
	cache      *project.Cache
	registry   *room.Registry
	dispatcher *dispatch.Dispatcher
	stopAI     context.CancelFunc
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// Option customizes construction, mostly for tests.
type Option func(*options)

type options struct {
	backend assistant.Backend
	sleeper backoff.Sleeper
}

// WithBackend replaces the Gemini backend.
func WithBackend(backend assistant.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithSleeper replaces the timer between assistant retries.
func WithSleeper(sleep backoff.Sleeper) Option {
	return func(o *options) { o.sleeper = sleep }
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Directory → Identity → Admission → Assistant → Rooms → Dispatcher → Transport → API → HTTP
func NewApplication(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.RequireSecrets(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &Application{config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.closeStores()
		}
	}()

	// STEP 1: Project store with schema migrations
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.MigrationsPath = cfg.Database.MigrationsPath

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	app.dbManager = dbManager

	if err := dbManager.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("database migrations applied")

	// STEP 2: Project directory, optionally cached in Redis
	var directory interfaces.ProjectDirectory = dbManager
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		app.redis = redis.NewClient(redisOpts)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = app.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}

		app.cache = project.NewCache(dbManager, app.redis, logger,
			project.WithTTL(cfg.Redis.TTL),
			project.WithNegativeTTL(cfg.Redis.NegativeTTL),
		)
		directory = app.cache
		logger.Info().Msg("project lookups cached in redis")
	}

	// STEP 3: Identity verification and admission
	verifierOpts := []identity.Option{identity.WithLeeway(cfg.Auth.Leeway)}
	if cfg.Auth.Issuer != "" {
		verifierOpts = append(verifierOpts, identity.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Auth.Audience != "" {
		verifierOpts = append(verifierOpts, identity.WithAudience(cfg.Auth.Audience))
	}
	verifier, err := identity.NewJWTVerifier(cfg.Auth.JWTSecret, verifierOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity verifier: %w", err)
	}

	controller := admission.NewController(directory, verifier, logger,
		admission.WithMembershipEnforcement(cfg.Auth.RequireMembership))

	// STEP 4: Assistant pipeline
	backend := o.backend
	if backend == nil {
		httpClient := &http.Client{Timeout: cfg.Assistant.RequestTimeout}
		backend, err = assistant.NewGeminiBackend(assistant.GeminiConfig{
			BaseURL:           cfg.Assistant.BaseURL,
			APIKey:            cfg.Assistant.APIKey,
			Model:             cfg.Assistant.Model,
			SystemInstruction: cfg.Assistant.SystemInstruction,
			Temperature:       cfg.Assistant.Temperature,
			ResponseMIMEType:  cfg.Assistant.ResponseMIMEType,
		}, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize assistant backend: %w", err)
		}
	}

	policy, err := backoff.New(backoff.Config{
		Kind:       cfg.Assistant.RetryKind,
		Attempts:   cfg.Assistant.RetryAttempts,
		Delay:      cfg.Assistant.RetryDelay,
		Multiplier: cfg.Assistant.RetryMultiplier,
		MaxDelay:   cfg.Assistant.RetryMaxDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid assistant retry policy: %w", err)
	}

	pipelineOpts := []assistant.Option{assistant.WithFallbackText(cfg.Assistant.FallbackText)}
	if o.sleeper != nil {
		pipelineOpts = append(pipelineOpts, assistant.WithSleeper(o.sleeper))
	}
	pipeline := assistant.NewPipeline(backend, policy, logger, pipelineOpts...)

	// STEP 5: Rooms and dispatch; assistant replies live as long as the process
	app.registry = room.NewRegistry(logger)

	aiCtx, stopAI := context.WithCancel(context.Background())
	app.stopAI = stopAI
	app.dispatcher = dispatch.New(aiCtx, app.registry, pipeline, dispatch.Config{
		Trigger:    cfg.Assistant.Trigger,
		RateLimit:  cfg.Assistant.RateLimit,
		RateWindow: cfg.Assistant.RateWindow,
	}, logger)

	// STEP 6: WebSocket transport
	app.wsHandler = websocket.NewHandler(controller, app.dispatcher, websocket.HandlerConfig{
		PongWait:         cfg.WebSocket.ReadTimeout,
		PingInterval:     cfg.WebSocket.PingInterval,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		ReadLimit:        cfg.WebSocket.ReadLimit,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		Connection: websocket.Options{
			SendBuffer:   cfg.WebSocket.BufferSize,
			WriteTimeout: cfg.WebSocket.WriteTimeout,
		},
	}, logger)

	// STEP 7: HTTP surface
	deps := api.Dependencies{
		Database:    dbManager,
		Rooms:       app.registry,
		WebSocket:   app.wsHandler,
		Verifier:    verifier,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}
	if app.cache != nil {
		deps.Cache = app.cache
	}
	app.apiServer = api.NewServer(deps, logger)

	app.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           app.apiServer,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	ok = true
	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Store exposes the project store for provisioning commands.
func (app *Application) Store() interfaces.ProjectStore {
	return app.dbManager
}

// Start begins application execution
// The listener is bound before returning so address errors surface here
func (app *Application) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	app.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("env", app.config.Env).
		Msg("huddle started")
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → WebSockets → Assistant → Redis → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info().Msg("shutting down huddle")

	var errs []error

	// STEP 1: Stop accepting new requests; hijacked sockets are not tracked here
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Close every chat connection
	if err := app.wsHandler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}

	// STEP 3: Cancel pending assistant calls and wait for their goroutines
	app.stopAI()
	done := make(chan struct{})
	go func() {
		app.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("assistant shutdown: %w", ctx.Err()))
	}

	// STEP 4: Close stores
	if err := app.closeStores(); err != nil {
		errs = append(errs, err)
	}

	app.logger.Info().Msg("huddle shutdown complete")
	return errors.Join(errs...)
}

func (app *Application) closeStores() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetAddr returns the bound address once started, the configured one before.
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
