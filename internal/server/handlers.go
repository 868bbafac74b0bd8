package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"optiongate/internal/domain"
	"optiongate/internal/infra"
	"optiongate/internal/infra/breeze"
	"optiongate/internal/pacing"
	"optiongate/internal/session"

	"github.com/gin-gonic/gin"
)

// fail maps domain errors onto HTTP statuses. Pacing pressure is a 503 so
// terminals know to back off rather than retry hot.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var pt *domain.PacingTimeoutError
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		status = http.StatusConflict
	case errors.As(err, &pt), errors.Is(err, pacing.ErrEvicted), errors.Is(err, domain.ErrQueueClosed):
		status = http.StatusServiceUnavailable
	default:
		var bc *domain.BrokerCallError
		if errors.As(err, &bc) {
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleConnect(c *gin.Context) {
	var body struct {
		SessionToken string `json:"session_token"`
	}
	// Body is optional; the configured token is the default.
	_ = c.ShouldBindJSON(&body)

	creds := domain.Credentials{
		APIKey:       s.cfg.API.Breeze.APIKey,
		APISecret:    s.cfg.API.Breeze.APISecret,
		SessionToken: s.cfg.API.Breeze.SessionToken,
	}
	if body.SessionToken != "" {
		creds.SessionToken = body.SessionToken
	}

	info, err := s.session.Connect(c.Request.Context(), creds)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "user": info.Name})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.session.Disconnect()
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

func (s *Server) handleExpiries(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", "NIFTY")
	count, _ := strconv.Atoi(c.DefaultQuery("count", "5"))
	c.JSON(http.StatusOK, gin.H{
		"symbol":   symbol,
		"expiries": session.WeeklyExpiries(symbol, count, time.Now()),
	})
}

func (s *Server) handleSpot(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	exchange := c.DefaultQuery("exchange", "NSE")

	price, source, err := s.session.SpotPrice(c.Request.Context(), symbol, exchange)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "ltp": price, "source": source})
}

func (s *Server) handleOptionChain(c *gin.Context) {
	req := domain.OptionChainRequest{
		Symbol:   c.Query("symbol"),
		Exchange: c.DefaultQuery("exchange", "NFO"),
		Expiry:   c.Query("expiry"),
		Right:    domain.RightFromString(c.DefaultQuery("right", "CE")),
		Strike:   c.Query("strike"),
	}
	if req.Symbol == "" || req.Expiry == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and expiry are required"})
		return
	}

	rows, err := s.session.FetchOptionChain(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "rows": rows})
}

func (s *Server) handleQuote(c *gin.Context) {
	req := domain.QuoteRequest{
		Symbol:   c.Query("symbol"),
		Exchange: c.DefaultQuery("exchange", "NSE"),
		Expiry:   c.Query("expiry"),
		Right:    c.Query("right"),
		Strike:   c.Query("strike"),
	}
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	rows, err := s.session.Quote(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var body struct {
		Symbol   string   `json:"symbol"`
		Exchange string   `json:"exchange_code"`
		Expiry   string   `json:"expiry_date"`
		Strikes  []int    `json:"strikes"`
		Rights   []string `json:"rights"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Symbol == "" || body.Expiry == "" || len(body.Strikes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol, expiry_date and strikes are required"})
		return
	}
	if body.Exchange == "" {
		body.Exchange = domain.ExchangeNFO
	}

	rights := make([]domain.Right, 0, len(body.Rights))
	for _, r := range body.Rights {
		rights = append(rights, domain.RightFromString(r))
	}

	// Replace the watch set wholesale; stale strikes would otherwise keep
	// streaming after the terminal moves to a new expiry.
	s.session.UnsubscribeAll(c.Request.Context())
	res, err := s.session.SubscribeOptionChain(c.Request.Context(),
		body.Symbol, body.Exchange, body.Expiry, body.Strikes, rights)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleOrderBook(c *gin.Context) {
	rows, err := s.session.OrderBook(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows})
}

func (s *Server) handleTradeBook(c *gin.Context) {
	rows, err := s.session.TradeBook(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows})
}

func (s *Server) handlePositions(c *gin.Context) {
	pos, err := s.session.PortfolioPositions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleFunds(c *gin.Context) {
	funds, err := s.session.Funds(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, funds)
}

func (s *Server) handleHistorical(c *gin.Context) {
	req := domain.HistoricalRequest{
		Symbol:   c.Query("symbol"),
		Exchange: c.DefaultQuery("exchange", "NFO"),
		Interval: c.DefaultQuery("interval", "5minute"),
		From:     c.Query("from"),
		To:       c.Query("to"),
		Expiry:   c.Query("expiry"),
		Right:    c.Query("right"),
		Strike:   c.Query("strike"),
	}
	if req.Symbol == "" || req.From == "" || req.To == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol, from and to are required"})
		return
	}

	rows, err := s.session.Historical(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "candles": rows})
}

func (s *Server) handleRateLimit(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.RateStatus())
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, infra.GlobalMetrics.Snapshot())
}

func (s *Server) handleJournal(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var entries any
	var err error
	if symbol := c.Query("symbol"); symbol != "" {
		entries, err = s.journal.BySymbol(symbol, limit)
	} else {
		entries, err = s.journal.Recent(limit)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleChecksum(c *gin.Context) {
	var body struct {
		Timestamp string `json:"timestamp"`
		Body      string `json:"body"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Timestamp == "" {
		body.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05") + ".000Z"
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": body.Timestamp,
		"checksum":  breeze.Checksum(body.Timestamp, body.Body, s.cfg.API.Breeze.APISecret),
	})
}
