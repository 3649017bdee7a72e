package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avilenka/devmatch/internal/realtime"
	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	httperrors "github.com/avilenka/devmatch/internal/transport/http/errors"
)

// Handler upgrades authenticated HTTP requests to websocket connections and
// hands them to the realtime hub.
type Handler struct {
	hub      *realtime.Hub
	auth     *authsvc.Service
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHandler(hub *realtime.Hub, auth *authsvc.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}

	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 4 << 10,
			// Browser clients cannot set an Authorization header on the
			// upgrade request, so the token travels in the query string
			// and origin checking is left to the deployment's proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil || h.auth == nil {
		httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
			Code:    "REALTIME_UNAVAILABLE",
			Message: "realtime service is unavailable",
		})
		return
	}

	token := extractToken(r)
	if token == "" {
		httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
			Code:    "UNAUTHORIZED",
			Message: "missing access token",
		})
		return
	}

	claims, err := h.auth.ValidateAccessToken(r.Context(), token)
	if err != nil {
		h.log.Debug("websocket auth failed", zap.Error(err))
		httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
			Code:    "UNAUTHORIZED",
			Message: "invalid access token",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	// The request context dies when this handler returns, but the pumps
	// outlive it. Tie them to the background context instead.
	realtime.NewClient(context.Background(), h.hub, conn, claims.UserID)
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
