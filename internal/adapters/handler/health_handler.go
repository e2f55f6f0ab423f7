package handler

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthHandler handles health check endpoints
// OpenShift compatible: /health, /health/ready, /health/live
type HealthHandler struct {
	checks map[string]func(ctx context.Context) error
}

// NewHealthHandler creates a health handler probing the database and,
// when configured, the Redis instance backing the generation lock
func NewHealthHandler(db *sql.DB, redisClient *redis.Client) *HealthHandler {
	checks := map[string]func(ctx context.Context) error{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return &HealthHandler{checks: checks}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Health handles GET /health - general health check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now()})
}

// Ready handles GET /health/ready - readiness probe
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	response := HealthResponse{Status: "ready", Checks: map[string]string{}, Timestamp: time.Now()}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			log.Printf("Readiness check %s failed: %v", name, err)
			response.Checks[name] = "down"
			response.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "up"
	}

	writeJSON(w, status, response)
}

// Live handles GET /health/live - liveness probe
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "alive", Timestamp: time.Now()})
}
