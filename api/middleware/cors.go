package middleware

import (
	"net/http"
	"strings"

	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/go-chi/cors"
)

// CORS applies the configured allowed origin policy. A lone "*" allows any
// origin without credentials.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	wildcard := len(origins) == 0 || (len(origins) == 1 && origins[0] == "*")
	if wildcard {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{requestIDHeader, retryAfterHeader},
		AllowCredentials: !wildcard,
		MaxAge:           cfg.MaxAgeSeconds,
	}).Handler
}
