package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"qistsync/internal/auth"
	"qistsync/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The bearer token already gates this endpoint.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type refreshEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Events streams change notifications over a WebSocket: one message per
// successful background refresh, carrying the merged snapshot. This is
// how a UI re-renders without polling.
func (ct *Controller) Events(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := auth.FromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug(ctx, "WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := ct.engine.Notifier().Subscribe()
	defer cancel()

	// Reader goroutine: surfaces client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.UserID != userID {
				continue
			}
			payload, err := json.Marshal(refreshEvent{Event: "data-refreshed", Data: ev.Snapshot})
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug(ctx, "WebSocket write failed", "error", err)
				return
			}
		}
	}
}
