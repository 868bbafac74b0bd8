// Package server exposes the gateway over HTTP and WebSocket: REST command
// endpoints for the trading terminal and a push relay for market data.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"optiongate/internal/infra"
	"optiongate/internal/infra/storage"
	"optiongate/internal/session"

	"github.com/gin-gonic/gin"
)

// Server wires the gin engine to one broker session.
type Server struct {
	cfg     *infra.Config
	session *session.Session
	journal *storage.Journal
	engine  *gin.Engine
	httpSrv *http.Server
}

// New builds the router. The journal may be nil; journal endpoints then
// answer 404.
func New(cfg *infra.Config, sess *session.Session, journal *storage.Journal) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		cfg:     cfg,
		session: sess,
		journal: journal,
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ts": time.Now().Unix()})
	})

	auth := terminalAuth(s.cfg.Server.AuthToken)

	s.engine.GET("/ws/ticks", auth, s.handleTickStream)

	api := s.engine.Group("/api", auth)
	{
		api.POST("/connect", s.handleConnect)
		api.POST("/disconnect", s.handleDisconnect)

		api.GET("/expiries", s.handleExpiries)
		api.GET("/spot", s.handleSpot)
		api.GET("/optionchain", s.handleOptionChain)
		api.GET("/quote", s.handleQuote)
		api.POST("/ws/subscribe", s.handleSubscribe)
		api.GET("/ticks", s.handlePullTicks)

		api.POST("/order", s.handlePlaceOrder)
		api.POST("/strategy/execute", s.handleStrategy)
		api.POST("/squareoff", s.handleSquareOff)
		api.POST("/order/cancel", s.handleCancelOrder)
		api.PATCH("/order/modify", s.handleModifyOrder)

		api.GET("/orders", s.handleOrderBook)
		api.GET("/trades", s.handleTradeBook)
		api.GET("/positions", s.handlePositions)
		api.GET("/funds", s.handleFunds)
		api.GET("/historical", s.handleHistorical)
		api.GET("/ratelimit", s.handleRateLimit)
		api.GET("/metrics", s.handleMetrics)
		api.GET("/journal", s.handleJournal)
		api.POST("/checksum", s.handleChecksum)
	}
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", s.cfg.Server.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"connected":     s.session.Connected(),
		"feed_live":     s.session.FeedActive(),
		"subscriptions": s.session.SubscriptionCount(),
		"cache_entries": s.session.Cache().Len(),
		"cache_version": s.session.Cache().Version(),
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// Relay sockets stay open for hours; logging them on close is noise.
		if c.IsWebsocket() {
			return
		}
		slog.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
