package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all span routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/spans", func(r chi.Router) {
		r.Post("/", h.HandleIngest)
		r.Post("/batch", h.HandleIngestBatch)
		r.Get("/", h.HandleList)
		r.Get("/{spanID}", h.HandleGet)
	})

	r.Get("/search", h.HandleSearch)
	r.Get("/services", h.HandleServices)
}
