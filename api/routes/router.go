package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cribnosh/cribnosh-backend/api/controllers"
	admincontrollers "github.com/cribnosh/cribnosh-backend/api/controllers/admin"
	chatcontrollers "github.com/cribnosh/cribnosh-backend/api/controllers/chat"
	ordercontrollers "github.com/cribnosh/cribnosh-backend/api/controllers/orders"
	supportcontrollers "github.com/cribnosh/cribnosh-backend/api/controllers/support"
	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/changes"
	"github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/internal/notifications"
	"github.com/cribnosh/cribnosh-backend/internal/orders"
	"github.com/cribnosh/cribnosh-backend/internal/support"
	"github.com/cribnosh/cribnosh-backend/pkg/auth/session"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
)

// redisStore is the slice of the Redis client the HTTP layer needs.
type redisStore interface {
	middleware.ReplayStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTPMetrics
	Sessions session.AccessSessionChecker
	Redis    redisStore
	Checks   map[string]controllers.Pinger
	Realtime http.Handler

	Orders        orders.Service
	Chat          chat.Service
	Support       support.Service
	Notifications notifications.Service
	Changes       *changes.Service
	AdminLogs     *adminlogs.Service
	Users         admincontrollers.UserStatusSetter
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Checks))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if deps.Realtime != nil {
		r.Method(http.MethodGet, "/ws", deps.Realtime)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))
		r.Use(middleware.RateLimit(cfg.RateLimit, deps.Redis, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
				r.Patch("/", ordercontrollers.Update(deps.Orders, logg))
				r.Get("/history", ordercontrollers.History(deps.Orders, logg))
				r.Post("/confirm", ordercontrollers.Confirm(deps.Orders, logg))
				r.Post("/prepare", ordercontrollers.Prepare(deps.Orders, logg))
				r.Post("/ready", ordercontrollers.MarkReady(deps.Orders, logg))
				r.Post("/deliver", ordercontrollers.Deliver(deps.Orders, logg))
				r.Post("/complete", ordercontrollers.Complete(deps.Orders, logg))
				r.Post("/review", ordercontrollers.Review(deps.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(deps.Orders, logg))
				r.Get("/notes", ordercontrollers.ListNotes(deps.Orders, logg))
				r.Post("/notes", ordercontrollers.AddNote(deps.Orders, logg))
				r.Get("/refund-eligibility", ordercontrollers.RefundEligibility(deps.Orders, logg))
				r.With(middleware.RequireAnyRole(logg, enums.RoleChef, enums.RoleStaff, enums.RoleAdmin)).
					Post("/notifications", ordercontrollers.SendNotification(deps.Orders, deps.Notifications, logg))
			})
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/messages", chatcontrollers.SendDirectMessage(deps.Chat, logg))
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", chatcontrollers.ListConversations(deps.Chat, logg))
				r.Post("/", chatcontrollers.CreateConversation(deps.Chat, logg))
				r.Route("/{chatId}", func(r chi.Router) {
					r.Get("/", chatcontrollers.GetConversation(deps.Chat, logg))
					r.Post("/read", chatcontrollers.MarkRead(deps.Chat, logg))
					r.Get("/messages", chatcontrollers.ListMessages(deps.Chat, logg))
					r.Post("/messages", chatcontrollers.SendMessage(deps.Chat, logg))
					r.Route("/messages/{messageId}", func(r chi.Router) {
						r.Patch("/", chatcontrollers.EditMessage(deps.Chat, logg))
						r.Delete("/", chatcontrollers.DeleteMessage(deps.Chat, logg))
						r.Post("/reactions", chatcontrollers.React(deps.Chat, logg))
						r.Delete("/reactions", chatcontrollers.Unreact(deps.Chat, logg))
					})
				})
			})
		})

		r.Route("/support/cases", func(r chi.Router) {
			r.Get("/", supportcontrollers.ListCases(deps.Support, logg))
			r.Post("/", supportcontrollers.CreateCase(deps.Support, logg))
			r.Get("/{caseId}", supportcontrollers.GetCase(deps.Support, logg))
			r.Patch("/{caseId}/status", supportcontrollers.UpdateStatus(deps.Support, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})

		r.Get("/changes", controllers.ListChanges(deps.Changes, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAnyRole(logg, enums.RoleAdmin, enums.RoleStaff))
			r.Get("/logs", admincontrollers.ListLogs(deps.AdminLogs, logg))
			r.Post("/broadcasts", admincontrollers.Broadcast(deps.Changes, logg))
			r.Post("/support/cases/{caseId}/assign", admincontrollers.AssignCase(deps.Support, logg))
			r.Patch("/users/{userId}/status", admincontrollers.SetUserStatus(deps.Users, logg))
			r.Put("/orders/{orderId}/refund-window", ordercontrollers.SetRefundWindow(deps.Orders, logg))
		})
	})

	return r
}
