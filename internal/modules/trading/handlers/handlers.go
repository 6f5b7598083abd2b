// Package handlers provides HTTP handlers for the order journal.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/rebalancer/internal/modules/trading"
	"github.com/rs/zerolog"
)

// Handler handles trading HTTP requests
type Handler struct {
	journal *trading.Journal
	log     zerolog.Logger
}

// NewHandler creates a new trading handler
func NewHandler(journal *trading.Journal, log zerolog.Logger) *Handler {
	return &Handler{
		journal: journal,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

// HandleGetOrders handles GET /api/trading/orders
// With ?cycle_id= it returns that cycle's orders, otherwise the most recent ones (?limit=, default 50).
func (h *Handler) HandleGetOrders(w http.ResponseWriter, r *http.Request) {
	cycleID := r.URL.Query().Get("cycle_id")

	var (
		entries []trading.JournalEntry
		err     error
	)
	if cycleID != "" {
		entries, err = h.journal.ListByCycle(r.Context(), cycleID)
	} else {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, convErr := strconv.Atoi(raw)
			if convErr != nil || parsed <= 0 {
				h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}
		entries, err = h.journal.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.log.Error().Err(err).Str("cycle_id", cycleID).Msg("Failed to list orders")
		h.writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"orders": entries,
			"count":  len(entries),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"cycle_id":  cycleID,
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
