// Package handlers provides HTTP handlers for rebalancing.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// CycleRunner runs rebalance cycles
type CycleRunner interface {
	RunWithTrigger(ctx context.Context, trigger string) (*rebalancing.CycleResult, error)
	LastResult() *rebalancing.CycleResult
}

// Handler handles rebalancing HTTP requests
type Handler struct {
	runner CycleRunner
	log    zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(runner CycleRunner, log zerolog.Logger) *Handler {
	return &Handler{
		runner: runner,
		log:    log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HoldingRequest is a position as submitted to the diff endpoint
type HoldingRequest struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

// DiffRequest is the request body for the diff endpoint.
// Prices cover symbols not held, or held without a price.
type DiffRequest struct {
	Target    domain.TargetAllocation `json:"target"`
	Positions []HoldingRequest        `json:"positions"`
	Prices    map[string]float64      `json:"prices"`
}

// HandleDiff handles POST /api/rebalancing/diff.
// It reconciles a submitted allocation against submitted holdings without touching the broker.
func (h *Handler) HandleDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	book := portfolio.NewBook()
	for _, p := range req.Positions {
		if err := book.Ingest("", p.Symbol, p.Quantity, p.Price); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	snapshot, err := book.Finalize()
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	prices := domain.PriceProviderFunc(func(_ context.Context, symbol string) (float64, error) {
		if price, ok := req.Prices[symbol]; ok {
			return price, nil
		}
		return 0, fmt.Errorf("no price supplied for %s: %w", symbol, domain.ErrPriceUnavailable)
	})

	orders, err := rebalancing.Diff(r.Context(), req.Target, snapshot.Positions, snapshot.TotalMarketValue, prices)
	if err != nil {
		if errors.Is(err, domain.ErrMissingPrice) || errors.Is(err, domain.ErrEmptyPortfolio) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to reconcile positions")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"orders":             orders,
			"positions":          snapshot.Positions,
			"total_market_value": snapshot.TotalMarketValue,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRun handles POST /api/rebalancing/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunWithTrigger(r.Context(), rebalancing.TriggerAPI)
	if err != nil {
		if errors.Is(err, rebalancing.ErrCycleInProgress) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Rebalance cycle failed")
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": err.Error(),
			"data":  result,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetLast handles GET /api/rebalancing/last
func (h *Handler) HandleGetLast(w http.ResponseWriter, r *http.Request) {
	result := h.runner.LastResult()
	if result == nil {
		h.writeError(w, http.StatusNotFound, "No completed cycle yet")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
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
