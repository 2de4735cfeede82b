package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"furadapt/api/internal/realtime"
)

// WSHandler upgrades authenticated requests into realtime sessions.
type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler accepts upgrades from the given origins. A "*" entry, or an
// empty list, allows any origin.
func NewWSHandler(hub *realtime.Hub, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	anyOrigin := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		allowed[o] = true
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || allowed[origin]
			},
		},
	}
}

// Connect handles GET /ws. AuthMiddleware has already resolved the caller,
// usually from the token query parameter.
func (h *WSHandler) Connect(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		zap.L().Warn("websocket upgrade failed", zap.String("user_id", actor.UserID.Hex()), zap.Error(err))
		return
	}
	h.hub.Attach(conn, actor.UserID)
}
