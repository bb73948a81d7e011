package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/cribnosh/cribnosh-backend/pkg/redis"
)

// ErrAlreadyProcessed is returned by Once when the event was handled before.
var ErrAlreadyProcessed = errors.New("event already processed")

// Manager records which consumer handled which event. Each claim is one
// SETNX key, cn:idempotency:evt:processed:<consumer>:<event_id>, holding the
// claim time and expiring after ttl.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Once runs fn unless consumer already claimed eventID. A failing fn gives the
// claim back so the redelivery runs again; fn's error is returned for the nack.
func (m *Manager) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339Nano), m.ttl)
	if err != nil {
		return fmt.Errorf("idempotency claim: %w", err)
	}
	if !claimed {
		return ErrAlreadyProcessed
	}

	runErr := fn(ctx)
	if runErr == nil {
		return nil
	}
	if delErr := m.store.Del(ctx, key); delErr != nil {
		return multierr.Append(runErr, fmt.Errorf("release idempotency claim: %w", delErr))
	}
	return runErr
}

// ClaimedAt reports when consumer claimed eventID, or ok=false when no claim
// is held.
func (m *Manager) ClaimedAt(ctx context.Context, consumer string, eventID uuid.UUID) (at time.Time, ok bool, err error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return time.Time{}, false, err
	}
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	at, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse claim time %q: %w", raw, err)
	}
	return at, true, nil
}

// Forget drops a claim so the event can be replayed deliberately.
func (m *Manager) Forget(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
