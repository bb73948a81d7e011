package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/cribnosh/cribnosh-backend/api/controllers"
	"github.com/cribnosh/cribnosh-backend/api/routes"
	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/changes"
	"github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/internal/notifications"
	"github.com/cribnosh/cribnosh-backend/internal/orders"
	"github.com/cribnosh/cribnosh-backend/internal/realtime"
	"github.com/cribnosh/cribnosh-backend/internal/support"
	"github.com/cribnosh/cribnosh-backend/internal/users"
	"github.com/cribnosh/cribnosh-backend/pkg/auth/session"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/instance"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
	"github.com/cribnosh/cribnosh-backend/pkg/migrate"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/rabbitmq"
	"github.com/cribnosh/cribnosh-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.ForApp("api", cfg.App)

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

	var sessions session.AccessSessionChecker = session.AllowAll{}
	if cfg.JWT.EnforceSessions {
		checker, err := session.NewChecker(redisClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create session checker", err)
			os.Exit(1)
		}
		sessions = checker
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svcs, err := buildServices(cfg, logg, dbClient, metrics.NewOrderMetrics(promRegistry))
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	if err := seedSupportAgent(ctx, cfg.Support, svcs.users); err != nil {
		logg.Error(ctx, "failed to seed support agent account", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var wsHandler http.Handler
	if cfg.FeatureFlags.Realtime {
		hub := realtime.NewHub(metrics.NewRealtimeMetrics(promRegistry), logg)
		conn, err := rabbitmq.Dial(cfg.RabbitMQ)
		if err != nil {
			logg.Error(ctx, "failed to connect to rabbitmq", err)
			os.Exit(1)
		}
		defer conn.Close()
		subscriber, err := rabbitmq.NewSubscriber(conn, cfg.RabbitMQ.ChangeExchange, logg)
		if err != nil {
			logg.Error(ctx, "failed to create change subscriber", err)
			os.Exit(1)
		}
		relay, err := realtime.NewRelay(subscriber, hub, logg)
		if err != nil {
			logg.Error(ctx, "failed to create realtime relay", err)
			os.Exit(1)
		}
		group.Go(func() error { return hub.Run(groupCtx) })
		group.Go(func() error { return relay.Run(groupCtx) })
		wsHandler = realtime.NewHandler(hub, cfg.JWT, cfg.Realtime, sessions, logg)
	}

	handler := routes.NewRouter(routes.Dependencies{
		Config:   cfg,
		Logger:   logg,
		Gatherer: promRegistry,
		Metrics:  metrics.NewHTTPMetrics(promRegistry),
		Sessions: sessions,
		Redis:    redisClient,
		Checks: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Realtime:      wsHandler,
		Orders:        svcs.orders,
		Chat:          svcs.chat,
		Support:       svcs.support,
		Notifications: svcs.notifications,
		Changes:       svcs.changes,
		AdminLogs:     svcs.adminLogs,
		Users:         svcs.users,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		logg.Info(logg.WithField(groupCtx, "addr", server.Addr), "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

type services struct {
	orders        orders.Service
	chat          chat.Service
	support       support.Service
	notifications notifications.Service
	changes       *changes.Service
	adminLogs     *adminlogs.Service
	users         *users.Service
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, orderMetrics *metrics.OrderMetrics) (*services, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
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
	supportSvc, err := support.NewService(support.ServiceParams{
		Repo:      support.NewRepository(conn),
		Tx:        dbClient,
		Outbox:    emitter,
		Chat:      chatSvc,
		AdminLogs: adminLogs,
		Users:     userRepo,
		Logger:    logg,
		Config:    cfg.Support,
	})
	if err != nil {
		return nil, err
	}
	notificationsSvc, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(conn),
		Tx:     dbClient,
		Outbox: emitter,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	usersSvc, err := users.NewService(userRepo, adminLogs, logg)
	if err != nil {
		return nil, err
	}
	changesSvc, err := changes.NewService(changes.ServiceParams{
		Repo:      changes.NewRepository(conn),
		Tx:        dbClient,
		Outbox:    emitter,
		AdminLogs: adminLogs,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		orders:        ordersSvc,
		chat:          chatSvc,
		support:       supportSvc,
		notifications: notificationsSvc,
		changes:       changesSvc,
		adminLogs:     adminLogs,
		users:         usersSvc,
	}, nil
}

func seedSupportAgent(ctx context.Context, cfg config.SupportConfig, svc *users.Service) error {
	id, err := uuid.Parse(strings.TrimSpace(cfg.AIAgentUserID))
	if err != nil {
		return err
	}
	_, err = svc.EnsureAccount(ctx, users.CreateUserDTO{
		ID:        id,
		Email:     "support-agent@cribnosh.internal",
		FirstName: "CribNosh",
		LastName:  "Support",
		Roles:     []enums.UserRole{enums.RoleStaff},
	})
	return err
}
