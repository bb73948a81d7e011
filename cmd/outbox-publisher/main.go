package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/instance"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
	"github.com/cribnosh/cribnosh-backend/pkg/migrate"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/registry"
	"github.com/cribnosh/cribnosh-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg := logger.ForApp(serviceName, cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeWith(ctx, logg, "pubsub client", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(promRegistry),
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting outbox publisher")
		return service.Run(groupCtx)
	})
	group.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
