// Package admin serves the operator-only endpoints under /api/v1/admin.
package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/api/validators"
	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/changes"
	internalsupport "github.com/cribnosh/cribnosh-backend/internal/support"
	"github.com/cribnosh/cribnosh-backend/internal/users"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/google/uuid"
)

type logLister interface {
	List(ctx context.Context, input adminlogs.ListInput) (*adminlogs.LogList, error)
}

type broadcaster interface {
	Broadcast(ctx context.Context, input changes.BroadcastInput) (*changes.ChangeDTO, error)
}

// UserStatusSetter changes an account's soft lifecycle status.
type UserStatusSetter interface {
	SetStatus(ctx context.Context, input users.StatusInput) (*users.UserDTO, error)
}

type caseAssigner interface {
	AssignAgent(ctx context.Context, input internalsupport.AssignInput) (*internalsupport.CaseDTO, error)
}

// ListLogs returns the admin action trail, newest first.
func ListLogs(svc logLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adminID, err := validators.ParseQueryUUID(r, "admin_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), adminlogs.ListInput{
			Actor:   actor,
			AdminID: adminID,
			Action:  strings.TrimSpace(r.URL.Query().Get("action")),
			Cursor:  strings.TrimSpace(r.URL.Query().Get("cursor")),
			Limit:   limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type broadcastRequest struct {
	Type string         `json:"type" validate:"required,oneof=announcement maintenance configuration"`
	Data map[string]any `json:"data" validate:"required"`
}

// Broadcast records a system change that every connected client receives.
func Broadcast(svc broadcaster, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req broadcastRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		change, err := svc.Broadcast(r.Context(), changes.BroadcastInput{Actor: actor, Type: req.Type, Data: req.Data})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, change)
	}
}

type assignRequest struct {
	AgentID uuid.UUID `json:"agent_id" validate:"required"`
}

func AssignCase(svc caseAssigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "support service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := validators.URLParamUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.AgentID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "agent_id is required"))
			return
		}
		updated, err := svc.AssignAgent(r.Context(), internalsupport.AssignInput{Actor: actor, CaseID: caseID, AgentID: req.AgentID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

type userStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended deleted"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// SetUserStatus suspends, reactivates or soft-deletes an account.
func SetUserStatus(svc UserStatusSetter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.URLParamUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req userStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.SetStatus(r.Context(), users.StatusInput{
			Actor:  actor,
			UserID: userID,
			Status: enums.UserStatus(req.Status),
			Reason: validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}
