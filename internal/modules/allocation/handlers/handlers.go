// Package handlers provides HTTP handlers for target allocation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/ratings"
	"github.com/rs/zerolog"
)

// Handler handles allocation HTTP requests
type Handler struct {
	filter  ratings.Filter
	weights map[int]float64
	log     zerolog.Logger
}

// NewHandler creates a new allocation handler using the configured watchlist policy
func NewHandler(filter ratings.Filter, weights map[int]float64, log zerolog.Logger) *Handler {
	return &Handler{
		filter:  filter,
		weights: weights,
		log:     log.With().Str("handler", "allocation").Logger(),
	}
}

// ComputeRequest carries a ratings snapshot.
// Weights, when present, replace the configured overrides for this request.
type ComputeRequest struct {
	Ratings []domain.RatingEntry `json:"ratings"`
	Weights map[int]float64      `json:"weights,omitempty"`
}

// HandleCompute handles POST /api/allocation/compute
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	weights := h.weights
	if len(req.Weights) > 0 {
		if err := allocation.ValidateWeights(req.Weights); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		weights = req.Weights
	}

	lookup := ratings.NewLookup(req.Ratings)
	scored := h.filter.Apply(lookup)

	target, err := allocation.Compute(scored, weights)
	if err != nil {
		if errors.Is(err, domain.ErrNoValidRatings) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to compute allocation")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"allocation": target,
			"count":      len(target),
			"total":      target.Sum(),
			"filtered":   lookup.Len() - len(scored),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
