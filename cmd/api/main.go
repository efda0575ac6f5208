package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebalkanli/verify-engine/internal/config"
	"github.com/ebalkanli/verify-engine/internal/domain"
	"github.com/ebalkanli/verify-engine/internal/engine"
	"github.com/ebalkanli/verify-engine/internal/handler"
	"github.com/ebalkanli/verify-engine/internal/infra/postgresql"
	"github.com/ebalkanli/verify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/ebalkanli/verify-engine/internal/infra/redis"
	"github.com/ebalkanli/verify-engine/internal/observability"
	"github.com/ebalkanli/verify-engine/internal/provider"
	"github.com/ebalkanli/verify-engine/internal/queue"
	"github.com/ebalkanli/verify-engine/internal/ratelimit"
	"github.com/ebalkanli/verify-engine/internal/repository"
	"github.com/ebalkanli/verify-engine/internal/service"
	"github.com/ebalkanli/verify-engine/internal/transport"
	"github.com/ebalkanli/verify-engine/internal/verify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional result store.
	var (
		sqlDB      *sql.DB
		resultRepo repository.ResultRepository
	)
	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("postgres initialization failed", zap.Error(err))
		}
		if err := migrations.Migrate(db); err != nil {
			logger.Fatal("database migrations failed", zap.Error(err))
		}
		sqlDB, err = db.DB()
		if err != nil {
			logger.Fatal("postgres underlying db init failed", zap.Error(err))
		}
		defer sqlDB.Close()
		resultRepo = repository.NewGormResultRepo(db)
		logger.Info("result store enabled")
	}

	// Optional distributed rate limiter; local pacing otherwise.
	var (
		rdb     *goredis.Client
		limiter ratelimit.RateLimiter
	)
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()
		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.LookupRatePerSec)
		if err != nil {
			logger.Fatal("redis rate limiter init failed", zap.Error(err))
		}
		logger.Info("distributed rate limiter enabled")
	} else {
		limiter = ratelimit.NewLocalRateLimiter(cfg.LookupRatePerSec)
	}

	// Optional broker for result publication and persistence.
	var (
		publisher queue.Publisher
		consumer  queue.Consumer
	)
	if cfg.RabbitMQURL != "" {
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
		defer mq.Close()
		publisher = queue.NewRabbitMQPublisher(mq)
		consumer = queue.NewRabbitMQConsumer(mq, cfg.MaxConcurrentChecks, logger)
		logger.Info("result publication enabled")
	}

	registry := engine.NewRegistry(cfg.Retention(), logger)
	registry.StartSweeper(ctx, cfg.SweepInterval())

	emailVerifier := verify.NewEmailVerifier(verify.EmailVerifierConfig{
		Port:       cfg.SMTPPort,
		HeloDomain: cfg.HeloDomain,
		MailFrom:   cfg.MailFrom,
		Timeout:    cfg.ItemTimeout(),
		RetryCount: cfg.RetryCount,
	}, logger)
	phoneVerifier := verify.NewPhoneVerifier(cfg.RetryCount, logger)

	var sessions verify.SessionFactory
	if cfg.LookupAPIURL != "" {
		sessions, err = provider.NewHTTPLookupProvider(cfg.LookupAPIURL)
		if err != nil {
			logger.Fatal("lookup provider init failed", zap.Error(err))
		}
		logger.Info("phone lookup enabled")
	}

	defaults := domain.JobConfig{
		MaxConcurrent: cfg.MaxConcurrentChecks,
		ItemTimeout:   cfg.ItemTimeout(),
		RetryCount:    cfg.RetryCount,
		ChunkSize:     cfg.ChunkSize,
		MaxSessions:   cfg.MaxConcurrentSessions,
		RejectedCap:   cfg.RejectedSampleCap,
		AcceptedCap:   cfg.AcceptedCap,
	}

	eng, err := engine.NewEngine(registry, emailVerifier, phoneVerifier, sessions, limiter, defaults, logger)
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}
	eng.SetMetrics(metrics)
	// With a broker the persister is the sole writer; wiring the store into
	// the engine as well would save every result twice.
	if resultRepo != nil && consumer == nil {
		eng.SetStore(resultRepo)
	}
	if publisher != nil {
		eng.SetPublisher(publisher)
	}

	// Out-of-band persistence when both the broker and the store are up.
	if resultRepo != nil && consumer != nil {
		persister, err := service.NewPersisterService(resultRepo, consumer, len(queue.ResultQueueNames()), logger)
		if err != nil {
			logger.Fatal("persister init failed", zap.Error(err))
		}
		persister.SetMetrics(metrics)
		go func() {
			if err := persister.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("persister stopped", zap.Error(err))
			}
		}()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterVerificationRoutes(app, eng, resultRepo); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("verify-engine api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
