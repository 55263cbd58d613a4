package api

import (
	"net/http"
	"time"

	"ironflex/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports service health
type HealthHandler struct {
	checker *health.Checker
	version string
	started time.Time
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status     string                       `json:"status"`
	Timestamp  time.Time                    `json:"timestamp"`
	Version    string                       `json:"version"`
	Uptime     string                       `json:"uptime"`
	Components map[string]*health.Component `json:"components"`
}

// NewHealthHandler creates a health handler over checker
func NewHealthHandler(checker *health.Checker, version string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version, started: time.Now()}
}

// Health returns 200 while every critical component is up, 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Components: h.checker.GetStatus(),
	}
	code := http.StatusOK
	if !h.checker.IsSystemHealthy() {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// RegisterHealthRoutes registers health check related routes
func (h *HealthHandler) RegisterHealthRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
}
