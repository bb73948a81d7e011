package controllers

import (
	"net/http"
	"strings"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/api/validators"
	"github.com/cribnosh/cribnosh-backend/internal/notifications"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
)

// ListNotifications returns the caller's notifications, newest first.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unread, err := validators.ParseQueryBool(r, "unreadOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.List(r.Context(), notifications.ListParams{
			UserID:     actor.UserID,
			Limit:      limit,
			Cursor:     strings.TrimSpace(r.URL.Query().Get("cursor")),
			UnreadOnly: unread,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// MarkNotificationRead marks one of the caller's notifications as read.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notificationID, err := validators.URLParamUUID(r, "notificationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkRead(r.Context(), actor.UserID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"read": true})
	}
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.MarkAllRead(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"updated": updated})
	}
}
