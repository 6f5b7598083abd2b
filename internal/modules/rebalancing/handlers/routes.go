package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rebalancing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rebalancing", func(r chi.Router) {
		r.Post("/diff", h.HandleDiff)
		r.Post("/run", h.HandleRun)
		r.Get("/last", h.HandleGetLast)
	})
}
