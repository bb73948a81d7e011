package middleware

import (
	"net/http"

	"github.com/cribnosh/cribnosh-backend/api/responses"
	pkgAuth "github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/auth/session"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

// Auth requires a bearer token with a live session and stores the actor on
// the request context.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	var checker pkgAuth.SessionChecker
	if verifier != nil {
		checker = verifier
	}
	authn := pkgAuth.NewAuthenticator(cfg, checker)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authn.Authenticate(r.Context(), pkgAuth.BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID.String())
				ctx = logg.WithActorRole(ctx, string(actor.PrimaryRole()))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
