package auth

import (
	"context"
	"strings"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
)

// SessionChecker reports whether the session behind a token id is still live.
type SessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Authenticator turns a raw access token into an Actor. It is shared by the
// HTTP middleware and the websocket upgrade.
type Authenticator struct {
	cfg      config.JWTConfig
	sessions SessionChecker
}

// NewAuthenticator builds an Authenticator; a nil checker skips the session
// lookup.
func NewAuthenticator(cfg config.JWTConfig, sessions SessionChecker) *Authenticator {
	return &Authenticator{cfg: cfg, sessions: sessions}
}

// Authenticate returns UNAUTHORIZED for missing, invalid or revoked tokens
// and DEPENDENCY when the session store cannot be reached.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := ParseAccessToken(a.cfg, token)
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if a.sessions != nil {
		live, err := a.sessions.HasSession(ctx, claims.ID)
		if err != nil {
			return Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}
	return claims.Actor(), nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. Any other scheme yields "".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
