package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"optiongate/internal/infra"
	"optiongate/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Auth already happened in the middleware; the terminal runs on a
	// different origin than the gateway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTickStream upgrades the connection and runs one relay loop for it.
// Each observer gets its own loop; a slow or dead socket only tears down
// its own stream.
func (s *Server) handleTickStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	infra.GlobalMetrics.IncrementObservers()
	defer infra.GlobalMetrics.DecrementObservers()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Drain client frames so pings and close frames are processed; any read
	// error means the peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	loop := relay.NewLoop(s.session.Cache(), s.session.FeedActive, conn).
		WithInterval(s.cfg.RelayInterval())
	loop.Run(ctx)

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// handlePullTicks is the fallback for clients without a socket: cheap
// version check, full delta only when something changed.
func (s *Server) handlePullTicks(c *gin.Context) {
	since, _ := strconv.ParseInt(c.DefaultQuery("since", "-1"), 10, 64)
	c.JSON(http.StatusOK, relay.Pull(s.session.Cache(), s.session.FeedActive(), since))
}
