package support

import (
	"net/http"
	"strings"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/api/validators"
	internalsupport "github.com/cribnosh/cribnosh-backend/internal/support"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func actorOrFail(w http.ResponseWriter, r *http.Request, svc internalsupport.Service, logg *logger.Logger) (auth.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "support service unavailable"))
		return auth.Actor{}, false
	}
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return auth.Actor{}, false
	}
	return actor, true
}

// ListCases returns the caller's cases; staff and admins see every case.
func ListCases(svc internalsupport.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r, svc, logg)
		if !ok {
			return
		}
		input := internalsupport.ListCasesInput{Actor: actor}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseSupportStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		var err error
		if input.Page, err = validators.ParseQueryInt(r, "page", 1, 1, 10000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.Limit, err = validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListCases(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type createCaseRequest struct {
	Subject     string     `json:"subject" validate:"required,max=200"`
	Message     string     `json:"message" validate:"required,max=5000"`
	Category    string     `json:"category" validate:"required,oneof=order payment account technical other"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	OrderID     *uuid.UUID `json:"order_id"`
	Attachments []string   `json:"attachments" validate:"max=10,dive,url"`
}

// CreateCase opens a case and its support chat.
func CreateCase(svc internalsupport.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r, svc, logg)
		if !ok {
			return
		}
		var req createCaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subject := validators.SanitizeString(req.Subject, 200)
		message := validators.SanitizeString(req.Message, 5000)
		if subject == "" || message == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subject and message are required"))
			return
		}

		created, err := svc.CreateCase(r.Context(), internalsupport.CreateCaseInput{
			Actor:       actor,
			Subject:     subject,
			Message:     message,
			Category:    enums.SupportCategory(req.Category),
			Priority:    enums.SupportPriority(req.Priority),
			OrderID:     req.OrderID,
			Attachments: req.Attachments,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, created)
	}
}

func GetCase(svc internalsupport.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r, svc, logg)
		if !ok {
			return
		}
		caseID, err := validators.URLParamUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		found, err := svc.GetCase(r.Context(), actor, caseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, found)
	}
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=open resolved closed"`
}

// UpdateStatus moves a case between open, resolved and closed. Owners may
// only close their own case.
func UpdateStatus(svc internalsupport.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrFail(w, r, svc, logg)
		if !ok {
			return
		}
		caseID, err := validators.URLParamUUID(r, "caseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateStatus(r.Context(), internalsupport.StatusInput{
			Actor:  actor,
			CaseID: caseID,
			Status: enums.SupportStatus(req.Status),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}
