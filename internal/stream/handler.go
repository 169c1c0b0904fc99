package stream

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/narvanalabs/fleet-monitor/internal/auth"
)

// ServeWS upgrades the request and admits it as a stream session. The
// access token is read from the "token" query parameter. A bad token still
// completes the upgrade so the client receives a policy-violation close
// carrying the reason.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn := NewWebSocketConn(ws, b.cfg.WriteTimeout)

	claims, err := b.authenticate(r.URL.Query().Get("token"))
	if err != nil {
		b.logger.Info("stream connection rejected", "remote_addr", r.RemoteAddr, "error", err)
		_ = conn.Close(ClosePolicyViolation, rejectReason(err))
		return
	}

	if _, err := b.Admit(r.Context(), conn, claims.UserID); err != nil {
		// Admit has already closed the connection.
		return
	}
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Browser clients authenticate with a token, not cookies.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

func (b *Broadcaster) authenticate(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	if b.deps.Tokens == nil {
		return nil, auth.ErrInvalidToken
	}
	return b.deps.Tokens.ValidateToken(token)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	default:
		return "Invalid token"
	}
}
