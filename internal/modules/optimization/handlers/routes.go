package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Post("/optimize", h.HandleOptimize)
		r.Post("/simulate", h.HandleSimulate)
		r.Get("/simulate/stream", h.HandleSimulateStream)
	})
}
