package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/google/uuid"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitBlocksPerUser(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(config.RateLimitConfig{Window: time.Minute, Requests: 2}, store, nil)(okHandler())
	actor := auth.Actor{UserID: uuid.New()}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req = req.WithContext(WithActor(req.Context(), actor))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
		if resp.Code == http.StatusTooManyRequests && resp.Header().Get(retryAfterHeader) != "60" {
			t.Fatalf("expected Retry-After 60 got %q", resp.Header().Get(retryAfterHeader))
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	// A different user has their own window.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req = req.WithContext(WithActor(req.Context(), auth.Actor{UserID: uuid.New()}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected other user allowed got %d", resp.Code)
	}
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(config.RateLimitConfig{Window: time.Minute, Requests: 1}, store, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if store.counts["api:ip:10.0.0.1"] != 1 {
		t.Fatalf("expected forwarded ip scope, got %v", store.counts)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := RateLimit(config.RateLimitConfig{Window: time.Minute, Requests: 1}, store, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 when limiter is down got %d", resp.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{}, newFakeRateStore(), nil)(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
