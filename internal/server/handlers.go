package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Journal       string `json:"journal"`
	CycleRunning  bool   `json:"cycle_running"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// handleHealth answers 503 when the order journal cannot be read
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:        "healthy",
		Service:       "rebalancer",
		Journal:       "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	status := http.StatusOK

	if s.journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.journal.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Health check: journal unavailable")
			response.Status = "unhealthy"
			response.Journal = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if s.cycles != nil {
		response.CycleRunning = s.cycles.Running()
	}

	s.writeJSON(w, status, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
