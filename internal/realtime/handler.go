package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cribnosh/cribnosh-backend/api/responses"
	pkgauth "github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/auth/session"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/gorilla/websocket"
)

const defaultSendBuffer = 256

// Handler upgrades GET /ws?token=JWT into a hub client.
type Handler struct {
	hub        *Hub
	authn      *pkgauth.Authenticator
	upgrader   websocket.Upgrader
	sendBuffer int
	logg       *logger.Logger
}

func NewHandler(hub *Hub, jwtCfg config.JWTConfig, cfg config.RealtimeConfig, sessions session.AccessSessionChecker, logg *logger.Logger) *Handler {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	var checker pkgauth.SessionChecker
	if sessions != nil {
		checker = sessions
	}
	return &Handler{
		hub:   hub,
		authn: pkgauth.NewAuthenticator(jwtCfg, checker),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		sendBuffer: buffer,
		logg:       logg,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = pkgauth.BearerToken(r.Header.Get("Authorization"))
	}
	actor, err := h.authn.Authenticate(ctx, token)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logg.Warn(ctx, "websocket upgrade failed: "+err.Error())
		return
	}

	client := &Client{
		hub:      h.hub,
		conn:     conn,
		userID:   actor.UserID,
		operator: actor.IsOperator(),
		send:     make(chan []byte, h.sendBuffer),
		logg:     h.logg,
		logCtx:   h.logg.WithUserID(context.Background(), actor.UserID.String()),
	}
	if err := h.hub.join(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
		_ = conn.Close()
		return
	}
	h.logg.Info(client.logCtx, "websocket client connected")

	go client.writePump()
	go client.readPump()
}

// originChecker allows any origin when none are configured, otherwise only the
// listed origins. Requests without an Origin header are not browsers and pass.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(origin)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
