// Package api serves the companion's REST and WebSocket interface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ramonehamilton/VAB-Companion/internal/api/handlers"
	"github.com/ramonehamilton/VAB-Companion/internal/api/websocket"
)

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	host       string
	port       int
	logger     *slog.Logger

	wsHub *websocket.Hub

	queryHandler   *handlers.QueryHandler
	infoHandler    *handlers.InfoHandler
	updateHandler  *handlers.UpdateHandler
	productHandler *handlers.ProductHandler
}

// Config holds configuration for the API server.
type Config struct {
	Host string
	Port int

	// Query executes hybrid queries and reports index health. Required.
	Query interface {
		handlers.QueryService
		handlers.InfoService
	}

	// Store looks up product records. Required.
	Store handlers.ProductStore

	// Update performs asynchronous library updates. Required.
	Update handlers.UpdateRunner

	// Opener opens products in DAZ Studio. Nil disables the endpoint.
	Opener handlers.ProductOpener

	// Logger receives server diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Query == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("product store is required")
	}
	if cfg.Update == nil {
		return nil, fmt.Errorf("update runner is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 8321
	}

	wsHub := websocket.NewHub(logger)

	s := &Server{
		router:         chi.NewRouter(),
		host:           host,
		port:           port,
		logger:         logger,
		wsHub:          wsHub,
		queryHandler:   handlers.NewQueryHandler(cfg.Query),
		infoHandler:    handlers.NewInfoHandler(cfg.Query),
		updateHandler:  handlers.NewUpdateHandler(cfg.Update, handlers.NewTaskManager(), wsHub),
		productHandler: handlers.NewProductHandler(cfg.Store, cfg.Opener),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// Queries can block behind a cold embedding model load.
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(s.jsonContentTypeMiddleware)
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;") {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the API server in a goroutine.
func (s *Server) Start() error {
	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Port returns the port the server is configured to listen on.
func (s *Server) Port() int {
	return s.port
}

// Router returns the HTTP handler, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// WebSocketHub returns the WebSocket hub for external integration.
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
