package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/cache"
	"github.com/orkutrevival/backend/internal/database"
)

// Health reports service and dependency status
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	status, state := http.StatusOK, "ok"
	checks := gin.H{"database": "ok"}

	if err := database.Health(); err != nil {
		status, state = http.StatusServiceUnavailable, "degraded"
		checks["database"] = err.Error()
	}

	if redis := cache.GetRedisClient(); redis != nil {
		if err := redis.Ping(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "disabled"
	}

	checks["search"] = "disabled"
	if h.search.Enabled() {
		checks["search"] = "ok"
	}
	checks["github"] = "disabled"
	if h.ledger != nil && h.ledger.RemoteConfigured() {
		checks["github"] = "ok"
	}

	c.JSON(status, gin.H{
		"status":    state,
		"service":   "orkut-backend",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
