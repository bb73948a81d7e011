package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values   map[string]string
	setNXErr error
	delErr   error
	ttls     map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if f.delErr != nil {
		return f.delErr
	}
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "cn:idempotency:" + scope + ":" + id
}

func fixedManager(t *testing.T, store *fakeStore, at time.Time) *Manager {
	t.Helper()
	m, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	m.now = func() time.Time { return at }
	return m
}

func TestOnceClaimsKeyWithTTL(t *testing.T) {
	store := newFakeStore()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := fixedManager(t, store, at)
	eventID := uuid.New()

	require.NoError(t, m.Once(context.Background(), "order-notifications", eventID, func(context.Context) error { return nil }))

	key := "cn:idempotency:evt:processed:order-notifications:" + eventID.String()
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	claimed, ok, err := m.ClaimedAt(context.Background(), "order-notifications", eventID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, claimed.Equal(at))
}

func TestOnceSkipsDuplicates(t *testing.T) {
	m := fixedManager(t, newFakeStore(), time.Now())
	eventID := uuid.New()
	calls := 0
	fn := func(context.Context) error { calls++; return nil }

	require.NoError(t, m.Once(context.Background(), "webhooks", eventID, fn))
	assert.ErrorIs(t, m.Once(context.Background(), "webhooks", eventID, fn), ErrAlreadyProcessed)
	assert.Equal(t, 1, calls)

	// Claims are per consumer.
	require.NoError(t, m.Once(context.Background(), "change-feed", eventID, fn))
	assert.Equal(t, 2, calls)
}

func TestOnceReleasesClaimOnFailure(t *testing.T) {
	store := newFakeStore()
	m := fixedManager(t, store, time.Now())
	eventID := uuid.New()
	boom := errors.New("downstream failed")

	err := m.Once(context.Background(), "webhooks", eventID, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	_, ok, err := m.ClaimedAt(context.Background(), "webhooks", eventID)
	require.NoError(t, err)
	assert.False(t, ok)

	ran := false
	require.NoError(t, m.Once(context.Background(), "webhooks", eventID, func(context.Context) error { ran = true; return nil }))
	assert.True(t, ran)
}

func TestOnceJoinsReleaseFailure(t *testing.T) {
	store := newFakeStore()
	store.delErr = errors.New("redis down")
	m := fixedManager(t, store, time.Now())
	boom := errors.New("downstream failed")

	err := m.Once(context.Background(), "webhooks", uuid.New(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, store.delErr)
}

func TestOnceStoreError(t *testing.T) {
	store := newFakeStore()
	store.setNXErr = errors.New("boom")
	m := fixedManager(t, store, time.Now())

	called := false
	err := m.Once(context.Background(), "change-feed", uuid.New(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, store.setNXErr)
	assert.False(t, called)
}

func TestForget(t *testing.T) {
	m := fixedManager(t, newFakeStore(), time.Now())
	eventID := uuid.New()
	fn := func(context.Context) error { return nil }

	require.NoError(t, m.Once(context.Background(), "webhooks", eventID, fn))
	require.NoError(t, m.Forget(context.Background(), "webhooks", eventID))
	assert.NoError(t, m.Once(context.Background(), "webhooks", eventID, fn))
}

func TestValidation(t *testing.T) {
	m := fixedManager(t, newFakeStore(), time.Now())
	noop := func(context.Context) error { return nil }

	assert.Error(t, m.Once(context.Background(), " ", uuid.New(), noop))
	assert.Error(t, m.Once(context.Background(), "c", uuid.Nil, noop))
	_, _, err := m.ClaimedAt(context.Background(), "", uuid.New())
	assert.Error(t, err)

	_, err = NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newFakeStore(), -time.Second)
	assert.Error(t, err)
}
