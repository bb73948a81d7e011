package middleware

import (
	"net/http"
	"slices"

	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

// RequireAnyRole admits actors holding one of roles. The request is logged
// under the most privileged role that matched.
func RequireAnyRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	allowed := slices.Clone(roles)
	unauthenticated := pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	forbidden := pkgerrors.New(pkgerrors.CodeForbidden, "role required").WithDetails(map[string]any{"roles": allowed})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := ActorFromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, unauthenticated)
				return
			}
			role, ok := actor.RoleAmong(allowed)
			if !ok {
				responses.WriteError(ctx, logg, w, forbidden)
				return
			}
			if logg != nil {
				ctx = logg.WithActorRole(ctx, string(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
