package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradegate/tradegate/internal/decision"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "tradegate",
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.monitor.Status()
	status := "ok"
	if report.SafeMode {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"system_health": report.SystemHealth,
		"safe_mode":     report.SafeMode,
		"paused":        s.orchestrator.Paused(),
	})
}

// handleDecide runs one full decision cycle over the posted snapshot. Every
// outcome, including rejection, is a valid decision and returns 200.
func (s *Server) handleDecide(c *gin.Context) {
	var snap decision.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if snap.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	d := s.orchestrator.Decide(c.Request.Context(), &snap)
	s.stream.Broadcast(d)
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"health":    s.monitor.Status(),
		"breakers":  s.breakers.AllStatus(),
		"limiter":   s.limiter.Status(),
		"caches":    s.caches.AllStats(),
		"decisions": s.orchestrator.Stats(),
		"paused":    s.orchestrator.Paused(),
	})
}

func (s *Server) handleRecentDecisions(c *gin.Context) {
	n := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		n = parsed
	}
	c.JSON(http.StatusOK, gin.H{"decisions": s.journal.Recent(n)})
}

func (s *Server) handlePause(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Reason == "" {
		body.Reason = "manual pause"
	}
	s.orchestrator.Pause(body.Reason)
	c.JSON(http.StatusOK, gin.H{"paused": true, "reason": body.Reason})
}

func (s *Server) handleResume(c *gin.Context) {
	s.orchestrator.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}
