package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/joho/godotenv"

	"github.com/cribnosh/cribnosh-backend/internal/changes"
	"github.com/cribnosh/cribnosh-backend/internal/consumers"
	"github.com/cribnosh/cribnosh-backend/internal/notifications"
	"github.com/cribnosh/cribnosh-backend/internal/webhooks"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/instance"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/migrate"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/idempotency"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/registry"
	pkgpubsub "github.com/cribnosh/cribnosh-backend/pkg/pubsub"
	"github.com/cribnosh/cribnosh-backend/pkg/rabbitmq"
	"github.com/cribnosh/cribnosh-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.ForApp("worker", cfg.App)

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

	pubsubClient, err := pkgpubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	once, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	conn, err := rabbitmq.Dial(cfg.RabbitMQ)
	if err != nil {
		logg.Error(context.Background(), "failed to connect to rabbitmq", err)
		os.Exit(1)
	}
	defer conn.Close()
	fanout, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQ.ChangeExchange)
	if err != nil {
		logg.Error(context.Background(), "failed to create change fanout publisher", err)
		os.Exit(1)
	}
	defer fanout.Close()

	notificationConsumer, err := notifications.NewConsumer(notifications.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification consumer", err)
		os.Exit(1)
	}
	feedHandler, err := changes.NewFeedHandler(changes.NewRepository(dbClient.DB()), fanout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create change feed handler", err)
		os.Exit(1)
	}

	type binding struct {
		subscription *pubsub.Subscriber
		handler      consumers.Handler
	}
	bindings := []binding{
		{pubsubClient.NotificationsSubscription(), notificationConsumer},
		{pubsubClient.ChangeFeedSubscription(), feedHandler},
	}
	if cfg.FeatureFlags.Webhooks && len(cfg.Webhooks.Targets) > 0 {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhooks, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create webhook dispatcher", err)
			os.Exit(1)
		}
		bindings = append(bindings, binding{pubsubClient.WebhooksSubscription(), dispatcher})
	}

	runners := make([]runner, 0, len(bindings))
	for _, b := range bindings {
		if b.subscription == nil {
			logg.Error(context.Background(), "subscription not configured", errors.New(b.handler.Name()))
			os.Exit(1)
		}
		r, err := consumers.NewRunner(b.subscription, b.handler, eventRegistry, once, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create consumer runner", err)
			os.Exit(1)
		}
		runners = append(runners, r)
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		Checks: []pinger{
			{name: "database", ping: dbClient.Ping},
			{name: "redis", ping: redisClient.Ping},
			{name: "pubsub", ping: pubsubClient.Ping},
		},
		Runners: runners,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
