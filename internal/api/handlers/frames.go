package handlers

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/camera"
	"github.com/your-org/facegate/internal/fetch"
	"github.com/your-org/facegate/internal/scan"
	"github.com/your-org/facegate/internal/session"
)

type framePusher interface {
	PushFrame(data []byte) error
}

// Frames accepts a browser camera stream for a push session or scanner.
// Binary messages are JPEG frames; text messages are data URLs.
func (h *SessionHandler) Frames(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	e, err := h.sessions.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	pusher, ok := e.(framePusher)
	if !ok {
		respondError(c, session.ErrNotPush)
		return
	}

	conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("frames upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ == websocket.TextMessage {
			if data, err = fetch.DecodeDataURL(string(data)); err != nil {
				slog.Debug("drop undecodable frame", "session_id", id, "error", err)
				continue
			}
		}

		err = pusher.PushFrame(data)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrNotPush), errors.Is(err, scan.ErrNotPush), errors.Is(err, camera.ErrStopped):
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			return
		default:
			slog.Debug("drop frame", "session_id", id, "error", err)
		}
	}
}
