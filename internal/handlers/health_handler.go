package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"relay-backend/internal/security"
	"relay-backend/internal/services"
)

// HealthHandler serves liveness and dependency health endpoints.
type HealthHandler struct {
	health *services.HealthService
	sec    *security.State
}

func NewHealthHandler(health *services.HealthService, sec *security.State) *HealthHandler {
	return &HealthHandler{
		health: health,
		sec:    sec,
	}
}

// BasicHandler GET /health
func (h *HealthHandler) BasicHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "relay-backend",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DetailedHandler GET /chain/health/detailed
func (h *HealthHandler) DetailedHandler(c *gin.Context) {
	report := h.health.Check(c.Request.Context())

	status := http.StatusOK
	if report.Status != services.StatusHealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"success":   report.Status == services.StatusHealthy,
		"status":    report.Status,
		"services":  report.Services,
		"cached":    report.Cached,
		"cached_at": report.CachedAt.UTC().Format(time.RFC3339),
	})
}

// SecurityHandler GET /chain/health/security
func (h *HealthHandler) SecurityHandler(c *gin.Context) {
	report := h.health.Check(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"status":   report.Status,
		"degraded": report.Status != services.StatusHealthy,
		"rate_limiter": gin.H{
			"active_windows": h.sec.RateLimiter.ActiveWindows(),
			"window_seconds": int(h.sec.RateLimiter.Window().Seconds()),
		},
		"blocklist": gin.H{
			"counts": h.sec.Blocklist.Counts(),
		},
		"abuse": gin.H{
			"counters": h.sec.Abuse.Counters(),
		},
		"idempotency": gin.H{
			"entries": h.sec.Idempotency.Size(),
		},
	})
}
