package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storegate/storegate/db"
	"github.com/storegate/storegate/internal/api"
	"github.com/storegate/storegate/internal/apikey"
	"github.com/storegate/storegate/internal/config"
	"github.com/storegate/storegate/internal/log"
	"github.com/storegate/storegate/internal/observability"
	"github.com/storegate/storegate/internal/prompt"
	"github.com/storegate/storegate/internal/rag"
	"github.com/storegate/storegate/internal/tenant"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	keys, err := apikey.NewPostgres(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating key store: %w", err)
	}
	a.Keys = keys

	prompts, err := prompt.NewPostgres(pool, cfg.MaxPromptsPerStore, logger)
	if err != nil {
		return nil, fmt.Errorf("creating prompt store: %w", err)
	}
	a.Prompts = prompts

	// Without a provider credential the service starts in degraded
	// mode: key and prompt management stay up, provider routes 503.
	if cfg.HasProviderCredential() {
		provider, err := rag.NewGemini(ctx, cfg.GeminiAPIKey, cfg.ModelName, logger)
		if err != nil {
			return nil, fmt.Errorf("creating provider: %w", err)
		}
		a.Provider = provider

		router, err := tenant.NewRouter(a.Keys, provider, logger)
		if err != nil {
			return nil, fmt.Errorf("creating tenant router: %w", err)
		}
		a.Router = router
	} else {
		logger.Warn("no provider credential configured, starting degraded")
	}

	srv, err := api.NewServer(api.ServerConfig{
		Logger:        logger,
		Keys:          a.Keys,
		Prompts:       a.Prompts,
		Provider:      a.Provider,
		Router:        a.Router,
		Pool:          pool,
		ModelName:     cfg.ModelName,
		AllowedModels: cfg.AllowedModels,
		CORSOrigins:   cfg.CORSOrigins,
		TrustProxy:    cfg.TrustProxy,
		RateBurst:     cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a.Server = srv

	return a, nil
}

// provideOtelShutdown sets up trace export when enabled. Returns a
// cleanup that flushes pending spans with a bounded timeout.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.Otel.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Otel.AgentHost,
		Environment: cfg.Otel.Environment,
		ServiceName: cfg.Otel.ServiceName,
	}, logger)
	if err != nil {
		logger.Warn("setting up tracing", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
