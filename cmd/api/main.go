package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/kursadbilgin/birthday-reminder/internal/config"
	"github.com/kursadbilgin/birthday-reminder/internal/handler"
	"github.com/kursadbilgin/birthday-reminder/internal/infra/database"
	"github.com/kursadbilgin/birthday-reminder/internal/infra/database/migrations"
	infraredis "github.com/kursadbilgin/birthday-reminder/internal/infra/redis"
	"github.com/kursadbilgin/birthday-reminder/internal/observability"
	"github.com/kursadbilgin/birthday-reminder/internal/provider"
	"github.com/kursadbilgin/birthday-reminder/internal/queue"
	"github.com/kursadbilgin/birthday-reminder/internal/repository"
	"github.com/kursadbilgin/birthday-reminder/internal/service"
	"github.com/kursadbilgin/birthday-reminder/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepTimeout    = time.Minute
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("birthday-reminder stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("birthday-reminder stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("underlying sql db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	limiter, err := infraredis.NewLimiter(rdb, cfg.EmailRateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	broker, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close()

	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, 1, logger)

	jobs, err := queue.NewRedisDelayedQueue(rdb, queue.DelayedQueueOptions{
		MaxAttempts:  cfg.JobMaxAttempts,
		BackoffBase:  cfg.JobBackoffBase(),
		FailedJobTTL: cfg.RecoveryWindow(),
	})
	if err != nil {
		return fmt.Errorf("delayed queue initialization failed: %w", err)
	}

	sender, err := provider.NewEmailServiceProvider(cfg.EmailServiceURL, cfg.EmailTimeout())
	if err != nil {
		return fmt.Errorf("email provider initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()
	repos := repository.NewGormRepositories(db)

	users, err := service.NewUserNotificationService(repos, repository.NewGormTxManager(db), jobs, cfg.RecoveryWindow(), logger)
	if err != nil {
		return err
	}
	users.SetMetrics(metrics)

	deliveries, err := service.NewDeliveryWorker(repos, users, sender, limiter, logger)
	if err != nil {
		return err
	}
	deliveries.SetMetrics(metrics)

	workers, err := service.NewWorkerService(deliveries, jobs, consumer, cfg.WorkerConcurrency, logger)
	if err != nil {
		return err
	}
	workers.SetMetrics(metrics)

	promoter, err := service.NewPromoter(jobs, publisher, cfg.PromoterInterval(), cfg.PromoterBatchSize, logger)
	if err != nil {
		return err
	}

	recovery, err := service.NewRecoveryCron(users, cfg.RecoverySchedule, sweepTimeout, logger)
	if err != nil {
		return err
	}

	app := transport.NewApp(logger, metrics)
	handler.RegisterHealthRoutes(app, sqlDB, rdb, metrics)
	if err := handler.RegisterUserRoutes(app, users); err != nil {
		return err
	}

	// Catch up on notifications that came due while the process was down.
	sweepCtx, cancelSweep := context.WithTimeout(ctx, sweepTimeout)
	queued, err := users.RecoverUnsentMessages(sweepCtx)
	cancelSweep()
	if err != nil {
		logger.Error("startup recovery sweep failed", zap.Int("queued", queued), zap.Error(err))
	} else {
		logger.Info("startup recovery sweep done", zap.Int("queued", queued))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("birthday-reminder api started", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})
	g.Go(func() error { return promoter.Start(groupCtx) })
	g.Go(func() error { return workers.Start(groupCtx) })
	g.Go(func() error { return recovery.Start(groupCtx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
