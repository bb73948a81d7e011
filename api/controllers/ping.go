package controllers

import (
	"net/http"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the authenticated caller, which helps clients debug tokens.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{"scope": "private", "status": "ok"}
		if actor, ok := middleware.ActorFromContext(r.Context()); ok {
			payload["user_id"] = actor.UserID
			payload["roles"] = actor.Roles
		}
		responses.WriteSuccess(w, payload)
	}
}
