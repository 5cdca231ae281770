package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/VAB-Companion/internal/api/response"
	"github.com/ramonehamilton/VAB-Companion/internal/version"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	// WebSocket endpoint (no JSON content-type requirement)
	s.router.Get("/ws", s.wsHub.ServeWs)

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.queryHandler.Query)
		r.Get("/info", s.infoHandler.GetInfo)

		r.Route("/update", func(r chi.Router) {
			r.Post("/", s.updateHandler.StartUpdate)
			r.Get("/{taskID}", s.updateHandler.GetUpdateStatus)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/{sku}", s.productHandler.GetProduct)
			r.Post("/{sku}/open", s.productHandler.OpenProduct)
		})
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "vab-companion-api",
		"version": version.GetVersion(),
	})
}
