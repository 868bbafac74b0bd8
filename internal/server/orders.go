package server

import (
	"net/http"

	"optiongate/internal/domain"

	"github.com/gin-gonic/gin"
)

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var leg domain.OrderLeg
	if err := c.ShouldBindJSON(&leg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := s.session.PlaceOrder(c.Request.Context(), leg)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}

// handleStrategy fires all legs concurrently and always answers with one
// result per leg, in input order, even when some legs fail or time out.
func (s *Server) handleStrategy(c *gin.Context) {
	var body struct {
		Legs []domain.OrderLeg `json:"legs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := s.session.PlaceStrategy(c.Request.Context(), body.Legs)
	if err != nil {
		fail(c, err)
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(results),
		"succeeded": succeeded,
		"results":   results,
	})
}

// handleSquareOff reverses the given legs. Best effort per leg, same
// result shape as strategy execution.
func (s *Server) handleSquareOff(c *gin.Context) {
	var body struct {
		Legs []domain.OrderLeg `json:"legs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := make([]domain.LegResult, 0, len(body.Legs))
	succeeded := 0
	for _, leg := range body.Legs {
		res := s.session.SquareOff(c.Request.Context(), leg)
		if res.Success {
			succeeded++
		}
		results = append(results, res)
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(results),
		"succeeded": succeeded,
		"results":   results,
	})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	var body struct {
		OrderID  string `json:"order_id"`
		Exchange string `json:"exchange_code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}
	if body.Exchange == "" {
		body.Exchange = domain.ExchangeNFO
	}

	if err := s.session.CancelOrder(c.Request.Context(), body.OrderID, body.Exchange); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": body.OrderID})
}

func (s *Server) handleModifyOrder(c *gin.Context) {
	var req domain.ModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}
	if req.Exchange == "" {
		req.Exchange = domain.ExchangeNFO
	}

	if err := s.session.ModifyOrder(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": req.OrderID})
}
