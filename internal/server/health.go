package server

import (
	"context"
	"net/http"
	"time"
)

const healthStatusHealthy = "healthy"

// ComponentStatus is the state of an optional dependency.
type ComponentStatus string

const (
	ComponentStatusUp   ComponentStatus = "up"
	ComponentStatusDown ComponentStatus = "down"
)

type healthResp struct {
	Status     string                     `json:"status"`
	Service    string                     `json:"service"`
	ModelReady bool                       `json:"model_ready"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of a single dependency.
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
}

// handleHealth reports liveness plus whether the model is loaded. Calling it
// triggers the lazy model load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResp{
		Status:     healthStatusHealthy,
		Service:    serviceName,
		ModelReady: s.deps.Generator.Ready(),
	}
	if s.deps.Store != nil {
		resp.Components = map[string]ComponentHealth{
			"storage": s.checkStorage(r.Context()),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// checkStorage never fails the health check; the mirror is best effort.
func (s *Server) checkStorage(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := s.deps.Store.Ping(ctx)
	latency := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		return ComponentHealth{Status: ComponentStatusDown, Message: err.Error(), LatencyMs: latency}
	}
	return ComponentHealth{Status: ComponentStatusUp, LatencyMs: latency}
}
