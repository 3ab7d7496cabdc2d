package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stocks", func(r chi.Router) {
		r.Get("/price/{symbol}", h.HandleGetStockPrice)
		r.Get("/history/{symbol}", h.HandleGetStockHistory)
	})
	r.Get("/crypto/price/{id}", h.HandleGetCryptoPrice)
	r.Get("/financials/{symbol}", h.HandleGetFinancials)
}
