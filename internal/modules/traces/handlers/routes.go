package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trace routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/traces", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{traceID}", h.HandleGet)
		r.Get("/{traceID}/spans", h.HandleGetSpans)
	})
}
