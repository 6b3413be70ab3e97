package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RedisPinger is the health handler's view of the dev-monitor Redis bridge: the
// only thing a readiness probe needs to know is whether it can still reach
// Redis. Modeled as an interface so tests can supply a fake instead of a
// live *pubsub.RedisBridge.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Handler manages health check endpoints
type Handler struct {
	redis RedisPinger
}

// NewHandler creates a new health check handler. redis may be nil; when
// the dev-monitor bridge isn't configured, Redis is reported healthy by
// definition (there's nothing depending on it).
func NewHandler(redis RedisPinger) *Handler {
	return &Handler{redis: redis}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy
// Returns 503 if any dependency is unhealthy
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkRedis verifies Redis connectivity via the dev-monitor bridge's Ping.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redis == nil {
		return "healthy"
	}
	if err := h.redis.Ping(ctx); err != nil {
		slog.Error("redis health check failed", "error", err)
		return "unhealthy"
	}
	return "healthy"
}

// HealthCheckResponse is a generic health check response for backward compatibility
type HealthCheckResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for better formatting
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
