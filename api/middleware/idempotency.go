package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cribnosh/cribnosh-backend/api/responses"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	pkgredis "github.com/cribnosh/cribnosh-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"
	maxKeyLength      = 255

	writeReplayTTL    = 24 * time.Hour
	criticalReplayTTL = 7 * 24 * time.Hour
	inFlightTTL       = 2 * time.Minute
)

// replayRule marks a write route as replayable. Templates use {name} for one
// path segment and a trailing * for any remainder. Required rules reject
// requests without an Idempotency-Key.
type replayRule struct {
	method   string
	segments []string
	ttl      time.Duration
	required bool
}

func rule(method, template string, ttl time.Duration, required bool) replayRule {
	return replayRule{method: method, segments: splitPath(template), ttl: ttl, required: required}
}

// First match wins.
var replayRules = []replayRule{
	rule(http.MethodPost, "/api/v1/orders", criticalReplayTTL, true),
	rule(http.MethodPost, "/api/v1/orders/{orderId}/cancel", criticalReplayTTL, true),
	rule(http.MethodPost, "/api/v1/support/cases", criticalReplayTTL, true),
	rule(http.MethodPut, "/api/v1/admin/orders/{orderId}/refund-window", criticalReplayTTL, true),
	rule(http.MethodPost, "/api/v1/orders/{orderId}/*", writeReplayTTL, false),
	rule(http.MethodPost, "/api/v1/chat/*", writeReplayTTL, false),
	rule(http.MethodPost, "/api/v1/notifications/{notificationId}/read", writeReplayTTL, false),
	rule(http.MethodPost, "/api/v1/notifications/read-all", writeReplayTTL, false),
	rule(http.MethodPost, "/api/v1/admin/broadcasts", writeReplayTTL, false),
	rule(http.MethodPost, "/api/v1/admin/support/cases/{caseId}/assign", writeReplayTTL, false),
	rule(http.MethodPatch, "/api/v1/admin/users/{userId}/status", writeReplayTTL, false),
}

func (rr replayRule) matches(method string, path []string) bool {
	if rr.method != method {
		return false
	}
	for i, seg := range rr.segments {
		if seg == "*" {
			return len(path) > i
		}
		if i >= len(path) {
			return false
		}
		if strings.HasPrefix(seg, "{") {
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return len(path) == len(rr.segments)
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func findRule(method, path string) (replayRule, bool) {
	segments := splitPath(path)
	for _, rr := range replayRules {
		if rr.matches(method, segments) {
			return rr, true
		}
	}
	return replayRule{}, false
}

// ReplayStore is the Redis surface the middleware needs.
type ReplayStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// storedResponse is what gets replayed for a repeated key. While the first
// request is still running the key holds an in-flight marker instead.
type storedResponse struct {
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
	InFlight    bool   `json:"in_flight,omitempty"`
}

// Idempotency replays the first non-5xx response for a repeated
// Idempotency-Key. Keys are scoped to the caller, method and path. Reusing a
// key with a different body, or while the first request is still running, is
// a conflict. A 5xx or a panic releases the key so the client can retry.
func Idempotency(store ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rr, ok := findRule(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "" && rr.required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			case clientKey == "":
				next.ServeHTTP(w, r)
				return
			case len(clientKey) > maxKeyLength:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := fingerprintOf(body)
			key := store.IdempotencyKey(callerScope(r), clientKey)

			prior, err := claim(ctx, store, key, fingerprint)
			switch {
			case err != nil:
				responses.WriteError(ctx, logg, w, err)
				return
			case prior == nil:
			case prior.Fingerprint != fingerprint:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
				return
			case prior.InFlight:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
				return
			default:
				replay(w, prior)
				return
			}

			// The response is stored even if the client has gone away.
			storeCtx := context.WithoutCancel(ctx)
			settled := false
			defer func() {
				if !settled {
					_ = store.Del(storeCtx, key)
				}
			}()

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusOrOK()
			if status >= http.StatusInternalServerError {
				return
			}
			payload, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err == nil {
				err = store.Set(storeCtx, key, string(payload), rr.ttl)
			}
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "store idempotent response", err)
				}
				return
			}
			settled = true
		})
	}
}

// claim takes the key with an in-flight marker. It returns nil when this
// request now owns the key, otherwise whatever the key already holds.
func claim(ctx context.Context, store ReplayStore, key, fingerprint string) (*storedResponse, error) {
	marker, err := json.Marshal(storedResponse{Fingerprint: fingerprint, InFlight: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency marker")
	}
	won, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if won {
		return nil, nil
	}
	prior, err := lookup(ctx, store, key)
	if err == nil && prior == nil {
		// released between SETNX and GET; the owner is finishing up
		return &storedResponse{Fingerprint: fingerprint, InFlight: true}, nil
	}
	return prior, err
}

func lookup(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key")
	}
	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored response")
	}
	return &prior, nil
}

func replay(w http.ResponseWriter, prior *storedResponse) {
	if prior.ContentType != "" {
		w.Header().Set("Content-Type", prior.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(prior.Status)
	_, _ = w.Write(prior.Body)
}

func callerScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
