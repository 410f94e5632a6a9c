// Package app wires the API server's dependencies together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/SmallJobs/internal/auth"
	"github.com/utafrali/SmallJobs/internal/config"
	"github.com/utafrali/SmallJobs/internal/event"
	handler "github.com/utafrali/SmallJobs/internal/handler/http"
	"github.com/utafrali/SmallJobs/internal/repository/postgres"
	"github.com/utafrali/SmallJobs/internal/service"
	"github.com/utafrali/SmallJobs/migrations"
	"github.com/utafrali/SmallJobs/pkg/database"
	"github.com/utafrali/SmallJobs/pkg/health"
	pkgkafka "github.com/utafrali/SmallJobs/pkg/kafka"
	"github.com/utafrali/SmallJobs/pkg/middleware"
	"github.com/utafrali/SmallJobs/pkg/tracing"
)

// App wires together all dependencies and runs the API server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	limiter        middleware.Limiter
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	// PostgreSQL
	pgCfg := cfg.PostgresConfig()
	a.pool, err = database.NewPostgresPool(ctx, pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, config.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	guard := database.NewGuard(cfg.GuardConfig(), logger)
	store := postgres.NewStore(a.pool, guard)

	// Redis is optional unless it backs the rate limiter.
	if cfg.RedisEnabled() {
		a.redis, err = database.NewRedisClient(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisConfig().Addr()))
	}

	switch cfg.RateLimitBackend {
	case config.LimiterRedis:
		a.limiter = middleware.NewRedisLimiter(a.redis, "smalljobs:ratelimit")
	default:
		a.limiter = middleware.NewMemoryLimiter(maxWindow(cfg.RatePolicies()))
	}
	logger.Info("rate limiter initialized", slog.String("backend", cfg.RateLimitBackend))

	// Kafka. A nil publisher keeps the event producer a no-op.
	var publisher event.Publisher
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka disabled, events will not be published")
	}
	events := event.NewProducer(publisher, logger)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry)
	hasher := auth.NewHasher(cfg.BcryptCost)

	jobService := service.NewJobService(store, events, logger, cfg.JobTitleUnique)
	userService := service.NewUserService(store, hasher, jwtManager, events, logger)

	healthHandler := health.NewHandler().WithLogger(logger)
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	if a.redis != nil {
		check := healthHandler.RegisterNonCritical
		if cfg.RateLimitBackend == config.LimiterRedis {
			check = healthHandler.RegisterCritical
		}
		check("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	policies := cfg.RatePolicies()
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: config.ServiceName,
		Jobs:        jobService,
		Users:       userService,
		Tokens:      jwtManager.TokenValidator(),
		Health:      healthHandler,
		RateLimits: handler.RateLimits{
			Limiter: a.limiter,
			Global:  policies[0],
			Auth:    policies[1],
			JobPost: policies[2],
		},
		PprofCIDRs: cfg.PprofAllowedCIDRs,
		Logger:     logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	if l, ok := a.limiter.(*middleware.MemoryLimiter); ok {
		go l.Run(ctx)
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush spans from drained requests)
// 3. Kafka producer, Redis and the PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.closeResources())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything but the HTTP server. It is also used to
// unwind a partially built App.
func (a *App) closeResources() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	return errors.Join(errs...)
}

// maxWindow is how long an idle in-memory bucket must be kept so that no
// policy forgets a caller early.
func maxWindow(policies []middleware.Policy) time.Duration {
	var w time.Duration
	for _, p := range policies {
		w = max(w, p.Window)
	}
	return w
}
