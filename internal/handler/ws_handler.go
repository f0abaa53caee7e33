package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"marketchat/internal/app/chat"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/limiter"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc that authenticates, upgrades and binds a
// persistent connection. The principal is resolved from the Authorization header before
// the upgrade; a rejected handshake never becomes a connection.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", limiter.ClientIP(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		principal, err := deps.Handshake.Authenticate(r)
		if err != nil {
			logx.Info("WebSocket handshake rejected.", "reason", err.Error())
			resp.RespondErr(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket", "subject", principal.Subject)
			return
		}

		client := chat.NewClient(deps.Hub, conn, chat.NewBinding(principal), deps.Commands)
		if !deps.Hub.Register(client) {
			logx.Warn("WebSocket connection refused: hub is shutting down.", "subject", principal.Subject)
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			_ = conn.Close()
			return
		}

		client.SendConnected()

		go client.WritePump()

		logx.Info("WebSocket connection established and bound.",
			"connection_id", client.Binding().ConnectionID,
			"subject", principal.Subject,
		)

		client.ReadPump()
	}
}
