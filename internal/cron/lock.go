package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/instance"
	"github.com/google/uuid"
)

// Lock coordinates job runs across cron worker instances. Holding a job's lock
// for its interval marks the period as taken.
type Lock interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key, want string) (bool, error)
}

// RedisLock holds one key per job whose value names the owning instance and
// acquisition.
type RedisLock struct {
	store  lockStore
	keyFor func(job string) string
	holder string

	mu   sync.Mutex
	held map[string]string
}

func NewRedisLock(store lockStore, keyFor func(job string) string) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case keyFor == nil:
		return nil, errors.New("lock key builder required")
	}
	return &RedisLock{store: store, keyFor: keyFor, holder: instance.ID(), held: map[string]string{}}, nil
}

func (l *RedisLock) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("lock ttl must be positive")
	}
	token := l.holder + "/" + uuid.NewString()
	won, err := l.store.SetNX(ctx, l.keyFor(job), token, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", job, err)
	}
	if won {
		l.mu.Lock()
		l.held[job] = token
		l.mu.Unlock()
	}
	return won, nil
}

// Release gives the key back unless it expired and another instance took it.
// Releasing a job this lock never acquired is a no-op.
func (l *RedisLock) Release(ctx context.Context, job string) error {
	l.mu.Lock()
	token, ok := l.held[job]
	delete(l.held, job)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if _, err := l.store.DeleteIfEquals(ctx, l.keyFor(job), token); err != nil {
		return fmt.Errorf("release lock %s: %w", job, err)
	}
	return nil
}
