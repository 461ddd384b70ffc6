// Package server provides the HTTP REST API for the discovery service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/scholarmatch/discovery-service/internal/queryproc"
	"github.com/scholarmatch/discovery-service/internal/search"
)

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	SearchTimeout   time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// Server is the HTTP REST API server.
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	searcher       *search.Searcher
	structurer     queryproc.Structurer
	validate       *validator.Validate
	logger         zerolog.Logger
	searchTimeout  time.Duration
	metricsHandler http.Handler
	metricsPath    string
}

// NewServer creates the HTTP server. structurer may be nil when LLM query
// structuring is disabled; metricsHandler may be nil when metrics are off.
func NewServer(cfg Config, searcher *search.Searcher, structurer queryproc.Structurer, metricsHandler http.Handler, logger zerolog.Logger) *Server {
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = 45 * time.Second
	}

	s := &Server{
		searcher:       searcher,
		structurer:     structurer,
		validate:       validator.New(),
		logger:         logger.With().Str("component", "http-server").Logger(),
		searchTimeout:  cfg.SearchTimeout,
		metricsHandler: metricsHandler,
		metricsPath:    cfg.MetricsPath,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(s.requestLogMiddleware)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)

	if s.metricsHandler != nil && s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.structureQuery)
		r.Post("/search", s.searchLiterature)
		r.Post("/search/similar", s.searchSimilar)
		r.Post("/experts", s.searchExperts)
	})

	return r
}

// Handler exposes the router, useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
