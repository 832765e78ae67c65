package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/database"
)

type HealthHandler struct {
	db        *database.DB
	cache     *services.CacheService
	scheduler *services.SchedulerService
}

func NewHealthHandler(db *database.DB, cache *services.CacheService, scheduler *services.SchedulerService) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cache,
		scheduler: scheduler,
	}
}

// GetHealth returns basic health status - always returns 200 if server is running
// This is used for basic liveness probes
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "gary-ai-backend",
	})
}

// GetReady returns readiness status - only returns 200 when the database
// and cache answer. Used for readiness probes in container orchestration.
func (h *HealthHandler) GetReady(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	ready := true

	if err := h.db.HealthCheck(ctx); err != nil {
		checks["database"] = err.Error()
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.cache.HealthCheck(ctx); err != nil {
		checks["cache"] = err.Error()
		ready = false
	} else {
		checks["cache"] = "ok"
	}

	if h.scheduler != nil {
		checks["scheduler"] = h.scheduler.GetStatus()
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
	})
}
