// Package server provides the HTTP and WebSocket API for Inkwell.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/inkwell-ai/inkwell/internal/event"
	"github.com/inkwell-ai/inkwell/internal/logging"
	"github.com/inkwell-ai/inkwell/internal/provider"
	"github.com/inkwell-ai/inkwell/internal/session"
	"github.com/inkwell-ai/inkwell/internal/store"
)

// Config holds server configuration.
type Config struct {
	Port        int
	Hostname    string
	EnableCORS  bool
	ReadTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		Hostname:    "127.0.0.1",
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	store   *store.Store
	runner  *session.Runner
	prov    provider.Provider
	bus     *event.Bus
	log     zerolog.Logger
}

// New creates a new Server instance.
func New(cfg *Config, st *store.Store, runner *session.Runner, prov provider.Provider, bus *event.Bus) *Server {
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		store:  st,
		runner: runner,
		prov:   prov,
		bus:    bus,
		log:    logging.For("server"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	if cfg.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port),
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		// No write timeout: SSE and WebSocket connections are long-lived.
	}

	return s
}

// Handler returns the router, for tests that mount it on httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
