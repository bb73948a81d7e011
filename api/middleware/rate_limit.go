package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

const retryAfterHeader = "Retry-After"

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit throttles requests per authenticated user, falling back to the
// client IP for anonymous callers. A zero limit or window disables it.
func RateLimit(cfg config.RateLimitConfig, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || cfg.Requests <= 0 || cfg.Window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scope := "api:ip:" + clientIP(r)
			if userID := UserIDFromContext(ctx); userID != "" {
				scope = "api:user:" + userID
			}

			allowed, count, err := store.FixedWindowAllow(ctx, scope, int64(cfg.Requests), cfg.Window)
			if err != nil {
				// Fail open.
				if logg != nil {
					logg.Error(ctx, "rate limit check failed", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"scope":          scope,
						"attempts":       count,
						"limit":          cfg.Requests,
						"window_seconds": int(cfg.Window.Seconds()),
					}), "api.rate_limit.blocked")
				}
				w.Header().Set(retryAfterHeader, strconv.Itoa(int(cfg.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
