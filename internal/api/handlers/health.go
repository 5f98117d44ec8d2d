package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
	status func() map[string]interface{}
}

// NewHealthHandler creates the handler. status, when set, adds scheduler state to
// the readiness response.
func NewHealthHandler(checks map[string]Check, status func() map[string]interface{}) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		status: status,
	}
}

// GetHealth returns 200 whenever the process is serving.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"service": "market-value-forecast",
	})
}

// GetReady returns 200 only when every configured dependency answers.
func (h *HealthHandler) GetReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := true
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			ready = false
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{"dependencies": deps}
	if h.status != nil {
		body["scheduler"] = h.status()
	}
	if ready {
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
		return
	}
	body["status"] = "not_ready"
	c.JSON(http.StatusServiceUnavailable, body)
}
