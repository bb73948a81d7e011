package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/changes"
	"github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/internal/cron"
	"github.com/cribnosh/cribnosh-backend/internal/notifications"
	"github.com/cribnosh/cribnosh-backend/internal/orders"
	"github.com/cribnosh/cribnosh-backend/internal/users"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/instance"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
	"github.com/cribnosh/cribnosh-backend/pkg/migrate"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.ForApp("cron-worker", cfg.App)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	registry, err := buildRegistry(cfg, logg, dbClient, metrics.NewOrderMetrics(promRegistry))
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, func(job string) string {
		return redisClient.LockKey("cron:" + job)
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, orderMetrics *metrics.OrderMetrics) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	userRepo := users.NewRepository(conn)

	adminLogs, err := adminlogs.NewService(adminlogs.NewRepository(conn), logg)
	if err != nil {
		return nil, err
	}
	chatSvc, err := chat.NewService(chat.ServiceParams{
		Repo:   chat.NewRepository(conn),
		Tx:     dbClient,
		Outbox: emitter,
		Users:  userRepo,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Tx:        dbClient,
		Outbox:    emitter,
		Chat:      chatSvc,
		AdminLogs: adminLogs,
		Users:     userRepo,
		Metrics:   orderMetrics,
		Logger:    logg,
		Config:    cfg.Orders,
	})
	if err != nil {
		return nil, err
	}

	refundJob, err := cron.NewRefundWindowExpiryJob(ordersSvc, cfg.Cron.RefundExpiryBatchSize, logg)
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationCleanupJob(notifications.NewRepository(conn), logg)
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(outboxRepo, logg)
	if err != nil {
		return nil, err
	}
	dlqJob, err := cron.NewDLQRetentionJob(outbox.NewDLQRepository(conn), logg)
	if err != nil {
		return nil, err
	}
	changesJob, err := cron.NewChangeFeedRetentionJob(changes.NewRepository(conn), logg)
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	registry.Register(refundJob, cfg.Cron.RefundExpiryInterval)
	registry.Register(notificationJob, cfg.Cron.CleanupInterval)
	registry.Register(outboxJob, cfg.Cron.CleanupInterval)
	registry.Register(dlqJob, cfg.Cron.CleanupInterval)
	registry.Register(changesJob, cfg.Cron.CleanupInterval)
	return registry, nil
}
