package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redisclient "github.com/cribnosh/cribnosh-backend/pkg/redis"
)

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type sessionStore interface {
	Exists(ctx context.Context, key string) (bool, error)
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
}

// Checker looks up access sessions written by the identity service. A token whose
// jti has no session key was revoked by logout.
type Checker struct {
	store sessionStore
	keyer sessionKeyer
}

func NewChecker(client *redisclient.Client) (*Checker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Checker{store: client, keyer: client}, nil
}

// HasSession reports whether accessID still maps to a live session.
func (c *Checker) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errors.New("access id is required")
	}
	return c.store.Exists(ctx, c.keyer.AccessSessionKey(accessID))
}

// AllowAll is used when session enforcement is disabled.
type AllowAll struct{}

func (AllowAll) HasSession(context.Context, string) (bool, error) { return true, nil }
