package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"templestock/internal/infrastructure/http/v1/dto"
)

// Checker reports whether a dependency is usable.
type Checker interface {
	Check(ctx context.Context) error
}

// StatsFunc returns a snapshot of a dependency's usage counters.
type StatsFunc func() any

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]Checker
	stats  map[string]StatsFunc
}

// NewHealthHandler creates a health handler. Nil checkers and stats are skipped.
func NewHealthHandler(checks map[string]Checker, stats map[string]StatsFunc) *HealthHandler {
	active := make(map[string]Checker, len(checks))
	for name, c := range checks {
		if c != nil {
			active[name] = c
		}
	}
	sources := make(map[string]StatsFunc, len(stats))
	for name, fn := range stats {
		if fn != nil {
			sources[name] = fn
		}
	}
	return &HealthHandler{checks: active, stats: sources}
}

// Health reports process and dependency health.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := dto.HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for name, check := range h.checks {
		if err := check.Check(c.Request.Context()); err != nil {
			resp.Status = "error"
			resp.Checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "healthy"
	}

	c.JSON(status, resp)
}

// Info returns usage counters of the wired dependencies.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	resp := dto.HealthInfoResponse{App: "templestock", Stats: make(map[string]any, len(h.stats))}
	for name, fn := range h.stats {
		resp.Stats[name] = fn()
	}
	c.JSON(http.StatusOK, resp)
}
