package middleware

import (
	"context"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/google/uuid"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor stores the authenticated caller on the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	if !ok || actor.UserID == uuid.Nil {
		return auth.Actor{}, false
	}
	return actor, true
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

// RequireActor returns the caller or an UNAUTHORIZED error for handlers
// mounted outside Auth by mistake.
func RequireActor(ctx context.Context) (auth.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}
