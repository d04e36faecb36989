// Package server provides the HTTP and WebSocket surface of the rep counter.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/repsense/internal/exercise"
	"github.com/ayusman/repsense/internal/server/api"
	"github.com/ayusman/repsense/internal/session"
	"github.com/ayusman/repsense/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	// Catalog returns the current exercise catalog. Nil serves the built-in one.
	Catalog func() *exercise.Catalog
	// NewSession creates the session backing a /api/sessions/ws connection.
	// Nil disables the endpoint.
	NewSession func() *session.Session
	// OnSamplesChanged is called after samples for an exercise are added or removed.
	OnSamplesChanged func(exercise string)
	// Live, when set, is served at /api/live.
	Live *LiveHandler
	// Gatherer, when set, is served at /metrics.
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server represents the HTTP server for the rep counter.
type Server struct {
	config Config
	router chi.Router
	start  time.Time
	logger *slog.Logger

	mu   sync.Mutex
	http *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Catalog == nil {
		catalog := exercise.Default()
		config.Catalog = func() *exercise.Catalog { return catalog }
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
		logger: config.Logger.With("component", "server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)

	exercises := api.NewExercisesHandler(s.config.Catalog, s.config.Store, s.logger)
	r.Route("/api/exercises", func(r chi.Router) {
		r.Get("/", exercises.List)
		r.Get("/{name}", exercises.Get)
		r.Get("/{name}/envelope", exercises.Envelope)

		// Sample management needs persistence
		if s.config.Store != nil {
			samples := api.NewSamplesHandler(s.config.Catalog, s.config.Store, s.config.OnSamplesChanged, s.logger)
			r.Get("/{name}/samples", samples.List)
			r.Post("/{name}/samples", samples.Create)
			r.Delete("/{name}/samples", samples.Delete)
		}
	})

	if s.config.NewSession != nil {
		r.Get("/api/sessions/ws", NewSessionHandler(s.config.NewSession, s.config.AllowedOrigins, s.logger).ServeHTTP)
	}
	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store, s.logger)
		r.Get("/api/sessions", sessions.List)
		r.Get("/api/sessions/{id}", sessions.Get)
	}

	if s.config.Live != nil {
		r.Get("/api/live", s.config.Live.ServeHTTP)
	}

	if s.config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("HTTP server listening", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
