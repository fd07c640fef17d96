// Package main is the entry point of the HomeQuest reward API.
//
// The server owns the reward engine: it decides whether a completed module
// task counts, scores it, and credits currency, experience and population to
// the profile. Storage is PostgreSQL in production and an in-process store
// for development; Redis caches profile summaries when available.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/homequest/homequest/config"
	"github.com/homequest/homequest/internal/application/command"
	"github.com/homequest/homequest/internal/application/eventhandler"
	"github.com/homequest/homequest/internal/application/query"
	"github.com/homequest/homequest/internal/domain/profile"
	"github.com/homequest/homequest/internal/domain/progression"
	"github.com/homequest/homequest/internal/infrastructure/messaging"
	"github.com/homequest/homequest/internal/infrastructure/metrics"
	"github.com/homequest/homequest/internal/infrastructure/persistence/memory"
	"github.com/homequest/homequest/internal/infrastructure/persistence/postgres"
	"github.com/homequest/homequest/internal/infrastructure/persistence/redis"
	httpapi "github.com/homequest/homequest/internal/interface/http"
	"github.com/homequest/homequest/internal/interface/http/handlers"
	"github.com/homequest/homequest/pkg/circuitbreaker"
	"github.com/homequest/homequest/pkg/logger"
	"github.com/homequest/homequest/pkg/timeutil"
)

// store is what the engine and the read side need from storage.
type store interface {
	command.UnitOfWork
	progression.LedgerReader
	profile.Reader
	Ping(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: true,
	})
	defer func() { _ = log.Sync() }()

	log.Info("starting HomeQuest",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location().String()),
		logger.String("storage", cfg.Database.Driver),
	)

	categories, err := config.LoadCategories(cfg.Rewards.CategoriesFile, progression.NewScoringRegistry(nil))
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	log.Info("categories loaded", logger.Int("count", categories.Len()))

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.SetTimeout(cfg.HTTP.HealthTimeout)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Storage
	// ─────────────────────────────────────────────────────────────────────────
	st, storeCheck, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	health.AddCheck("storage", storeCheck)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Redis summary cache (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		summaryCache query.SummaryCache
		invalidator  eventhandler.SummaryInvalidator
	)
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, summary cache disabled", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()
			breaker := circuitbreaker.CacheBreaker("redis-summary", func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			profiles := redis.NewProfileCache(cache, breaker)
			summaryCache, invalidator = profiles, profiles
			health.AddCheck("redis", handlers.NewPingCheck(cache))
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Metrics & events
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rewardMetrics := metrics.MustNew(registry)

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
	})
	defer func() { _ = bus.Close() }()

	if err := eventhandler.Register(bus,
		eventhandler.NewOnRewardGrantedHandler(invalidator, log),
		eventhandler.NewOnMilestoneHandler(log),
	); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Application layer
	// ─────────────────────────────────────────────────────────────────────────
	calendar := timeutil.NewCalendar(cfg.App.Location())

	engine := command.NewCompleteTaskHandler(categories, st, command.CompleteTaskHandlerConfig{
		Publisher: bus,
		Metrics:   rewardMetrics,
		Calendar:  calendar,
		Logger:    log,
	})

	server := httpapi.NewServer(httpapi.Config{
		Addr:                  cfg.HTTP.Addr,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:        httpapi.DefaultConfig().MaxHeaderBytes,
		MaxBodyBytes:          httpapi.DefaultConfig().MaxBodyBytes,
		EnableMetrics:         cfg.Observability.MetricsEnabled,
		CompletionMaxAttempts: cfg.Rewards.CompletionMaxAttempts,
	}, httpapi.Dependencies{
		CompleteTask:     engine,
		CheckIn:          command.NewCheckInHandler(engine),
		Slots:            command.NewSlotHandler(categories, st, nil, log),
		ProfileProgress:  query.NewGetProfileProgressHandler(st, summaryCache, cfg.Redis.SummaryTTL, log),
		CategoryProgress: query.NewGetCategoryProgressHandler(categories, st, nil),
		Calendar:         calendar,
		HealthChecker:    health,
		Metrics:          rewardMetrics,
		Gatherer:         registry,
		Logger:           log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Serve until a signal arrives
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("HomeQuest stopped",
		logger.Int64("events_handled", bus.Stats().Snapshot().Handled),
	)
	return nil
}

// openStore connects the configured storage backend and returns its health
// check and closer.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store, handlers.HealthCheckFunc, func(), error) {
	if cfg.Database.Driver == config.StorageMemory {
		log.Warn("using in-memory storage; progress is lost on restart")
		st := memory.NewStore()
		return st, handlers.NewPingCheck(st), func() {}, nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = cfg.Database.MaxConns
	pgCfg.MinConns = cfg.Database.MinConns
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.LockTimeout = cfg.Database.LockTimeout

	log.Info("connecting to database")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Any("applied", applied))
	}

	st := postgres.NewStore(conn)
	return st, st.Check, func() {
		log.Info("closing database connection")
		conn.Close()
	}, nil
}
