package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

const (
	envHeader         = "X-Cribnosh-Env"
	readyCheckTimeout = 2 * time.Second
)

// Pinger is satisfied by the db, redis and pubsub clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports each by name. Any failure
// turns the whole response into a 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name, check := range checks {
		if check != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		results := make(map[string]string, len(names))
		failed := map[string]string{}
		for _, name := range names {
			if err := checks[name].Ping(ctx); err != nil {
				results[name] = "down"
				failed[name] = err.Error()
				continue
			}
			results[name] = "up"
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": results})
	}
}
