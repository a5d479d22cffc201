// Package server exposes bb84 sessions over HTTP and streams their events to
// websocket observers.
package server

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/qkdlab/bb84sim/bb84/photon"
	"github.com/qkdlab/bb84sim/internal/config"
)

// Config holds server configuration
type Config struct {
	Log    zerolog.Logger
	Config *config.Config

	// NewSource supplies the randomness of each new session. Defaults to
	// seededSources(Config.Seed).
	NewSource func() photon.Source
}

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	cfg      *config.Config
	sessions *registry
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	newSource := cfg.NewSource
	if newSource == nil {
		newSource = seededSources(cfg.Config.Seed)
	}

	log := cfg.Log.With().Str("component", "server").Logger()
	s := &Server{
		router:   chi.NewRouter(),
		log:      log,
		cfg:      cfg.Config,
		sessions: newRegistry(cfg.Config, newSource, cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// seededSources returns a source factory. With a non-zero seed the n-th
// source (from 0) is seeded with seed+n, so a server replays the same
// sessions in creation order while no two sessions share a stream. A zero
// seed seeds every source from the clock.
func seededSources(seed int64) func() photon.Source {
	var created int64
	return func() photon.Source {
		n := atomic.AddInt64(&created, 1) - 1
		s := seed + n
		if seed == 0 {
			s = time.Now().UnixNano() + n
		}
		return photon.NewSource(rand.New(rand.NewSource(s)))
	}
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.sessionCtx)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/reset", s.handleReset)
			r.Put("/quantum-state", s.handleSetQuantumState)
			r.Post("/quantum-state/rotate", s.handleRotateQuantumState)
			r.Post("/quantum-state/measure", s.handleMeasureQuantumState)
			r.Put("/eavesdropper", s.handleSetEavesdropper)
			r.Get("/security", s.handleSecurity)
			r.Get("/events", s.handleEvents)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, abandons every session's run and
// disconnects their observers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.sessions.closeAll()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
