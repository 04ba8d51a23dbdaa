// Package main is the entry point of the progression engine API.
//
// The process loads the environment config and the rules table, connects to
// PostgreSQL (or runs on the in-memory store when DATABASE_URL is empty),
// attaches the Redis state cache and event publisher, and serves the REST
// API until SIGINT/SIGTERM.
//
// Schema maintenance without starting the server:
//
//	engine migrate up|down|status
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledojo/progression-engine/config"
	"github.com/ledojo/progression-engine/internal/application/command"
	"github.com/ledojo/progression-engine/internal/application/query"
	"github.com/ledojo/progression-engine/internal/application/service"
	"github.com/ledojo/progression-engine/internal/domain/progression"
	"github.com/ledojo/progression-engine/internal/domain/shared"
	"github.com/ledojo/progression-engine/internal/infrastructure/messaging"
	"github.com/ledojo/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/ledojo/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/ledojo/progression-engine/internal/infrastructure/persistence/redis"
	httpapi "github.com/ledojo/progression-engine/internal/interface/http"
	"github.com/ledojo/progression-engine/internal/interface/http/handlers"
	"github.com/ledojo/progression-engine/pkg/logger"
	"github.com/ledojo/progression-engine/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = migrate(ctx, os.Args[2:])
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer log.Sync()

	log.Info("starting progression engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. RULES
	// ─────────────────────────────────────────────────────────────────────────
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	engineCfg, err := rules.EngineConfig()
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	engine := service.NewEngine(engineCfg, log)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.SetTimeout(2 * time.Second)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. STORE (PostgreSQL, or in-memory for development)
	// ─────────────────────────────────────────────────────────────────────────
	store, closeStore, err := setupStore(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (state cache + event publisher)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		stateCache query.StateCache
		external   shared.EventPublisher
	)
	if !cfg.Redis.Disabled {
		cache, err := connectRedis(ctx, cfg, log)
		if err != nil {
			log.Warn("redis unavailable, running without cache and event forwarding", logger.Err(err))
		} else {
			defer cache.Close()
			stateCache = redis.NewStateCache(cache, cfg.Redis.StateTTL)
			external = redis.NewEventPublisher(cache, 0)
			health.AddCheck("redis", handlers.NewPingCheck(cache))
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		_ = bus.Close()
		log.Info("event bus drained", logger.Any("metrics", bus.Metrics()))
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	stateQuery := query.NewGetProgressionStateHandler(store, engine, stateCache, log)
	runner := command.NewRunner(store, bus, log, command.WithStateInvalidator(stateQuery))

	if err := messaging.Wire(bus, external, log); err != nil {
		return fmt.Errorf("failed to wire event subscribers: %w", err)
	}

	deps := httpapi.Dependencies{
		InitializeUser:      command.NewInitializeUserHandler(runner, engine.Clock),
		CompleteSession:     command.NewCompleteSessionHandler(runner, engine),
		SpinWheel:           command.NewSpinWheelHandler(runner, engine),
		UnlockSkill:         command.NewUnlockSkillHandler(runner, engine),
		AddTrick:            command.NewAddTrickHandler(runner, engine),
		MarkTrickReady:      command.NewMarkTrickReadyHandler(runner, engine),
		RateConfidence:      command.NewRateConfidenceHandler(runner, engine),
		GetProgressionState: stateQuery,
		GetXPHistory:        query.NewGetXPHistoryHandler(store),
		HealthChecker:       health,
		Logger:              log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER + GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.CORSOrigins
	httpCfg.Release = cfg.IsProduction()
	server := httpapi.NewServer(httpCfg, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Log.Level)
	opts.Format = cfg.Log.Format
	opts.File = cfg.Log.File
	opts.MaxSizeMB = cfg.Log.MaxSizeMB
	opts.MaxBackups = cfg.Log.MaxBackups
	opts.MaxAgeDays = cfg.Log.MaxAgeDays

	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// setupStore connects to PostgreSQL with retries and applies migrations.
// An empty DATABASE_URL selects the in-memory store.
func setupStore(ctx context.Context, cfg *config.Config, log *logger.Logger, health *handlers.CompositeHealthChecker) (progression.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store (state is lost on exit)")
		return memory.NewStore(), func() {}, nil
	}

	conn, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	health.AddCheck("postgres", handlers.NewPingCheck(conn))

	return postgres.NewStore(conn), func() {
		log.Info("closing database connection")
		conn.Close()
	}, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig(cfg.Database.URL)
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	var conn *postgres.Connection
	err := retry.ConnectRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("database not reachable, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}).Do(ctx, func(ctx context.Context) error {
		c, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")
	return conn, nil
}

// migrate applies, reverts or lists schema migrations.
func migrate(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("migrate: DATABASE_URL is required")
	}
	log := setupLogger(cfg)
	defer log.Sync()

	conn, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	m := postgres.NewMigrator(conn)
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "up":
		err = m.Migrate(ctx)
	case "down":
		err = m.Rollback(ctx)
	case "status":
	default:
		return fmt.Errorf("migrate: unknown action %q (want up, down or status)", action)
	}
	if err != nil {
		return err
	}

	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	for _, mig := range status {
		fields := []logger.Field{
			logger.Int("version", mig.Version),
			logger.String("name", mig.Name),
			logger.Any("applied", mig.IsApplied),
		}
		if mig.IsApplied {
			fields = append(fields, logger.Duration("age", time.Since(mig.AppliedAt).Round(time.Second)))
		}
		log.Info("migration", fields...)
	}
	return nil
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Cache, error) {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	var cache *redis.Cache
	err := retry.ConnectRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("redis not reachable, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}).Do(ctx, func(ctx context.Context) error {
		c, err := redis.NewCache(ctx, rc)
		if err != nil {
			return err
		}
		cache = c
		return nil
	})
	return cache, err
}
