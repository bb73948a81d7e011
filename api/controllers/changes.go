package controllers

import (
	"context"
	"math"
	"net/http"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/api/validators"
	"github.com/cribnosh/cribnosh-backend/internal/changes"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
)

type changeFeed interface {
	ListSince(ctx context.Context, input changes.ListSinceInput) (*changes.ChangeList, error)
}

// ListChanges serves the polling fallback of the realtime feed. Clients pass
// the next_cursor of their previous page as cursor; after only seeds the
// first poll.
func ListChanges(svc changeFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "change feed unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := validators.ParseQueryInt(r, "cursor", 0, 0, math.MaxInt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		after, err := validators.ParseQueryTime(r, "after")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListSince(r.Context(), changes.ListSinceInput{
			Actor:  actor,
			Cursor: int64(cursor),
			After:  after,
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
