package server

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health is the /health response.
type Health struct {
	Status      HealthStatus               `json:"status"`
	Timestamp   time.Time                  `json:"timestamp"`
	Version     string                     `json:"version,omitempty"`
	Commit      string                     `json:"commit,omitempty"`
	Environment string                     `json:"environment,omitempty"`
	Components  map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   any             `json:"details,omitempty"`
}

const (
	healthCheckTimeout = 5 * time.Second
	slowCheck          = time.Second
)

// HandleHealth reports database and storage health. Unhealthy answers 503,
// degraded still answers 200.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// HandleReady is the readiness probe: can we reach the database?
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "database unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleLive is the liveness probe; it answers as long as the process does.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:   time.Now().UTC(),
		Version:     s.build.Version,
		Commit:      s.build.Commit,
		Environment: s.env,
		Components: map[string]ComponentHealth{
			"database": s.checkDatabaseHealth(ctx),
			"storage":  s.checkStorageHealth(ctx),
		},
	}
	health.Status = determineOverallHealth(health.Components)
	return health
}

func (s *Server) checkDatabaseHealth(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	details := map[string]any{"backend": s.store.Backend()}
	if b, ok := s.store.(breakerStats); ok {
		details["circuit"] = b.Stats()
	}

	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "database ping failed",
			Details: details,
		}
	}

	c := ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   "database connected",
		LatencyMs: float64(latency.Milliseconds()),
		Details:   details,
	}
	if latency > slowCheck {
		c.Status = ComponentStatusDegraded
		c.Message = "database latency high"
	}
	return c
}

func (s *Server) checkStorageHealth(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	details := map[string]any{"location": s.blobs.Location()}

	start := time.Now()
	err := s.blobs.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "storage unavailable",
			Details: details,
		}
	}

	c := ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   "storage reachable",
		LatencyMs: float64(latency.Milliseconds()),
		Details:   details,
	}
	if latency > 2*slowCheck {
		c.Status = ComponentStatusDegraded
		c.Message = "storage latency high"
	}
	return c
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var downCount, degradedCount int
	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}
