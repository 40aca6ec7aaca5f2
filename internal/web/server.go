// Package web serves the listening history over a small JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/skip"
	"github.com/justestif/spotify-listen-sync/internal/sync"
)

// Syncer runs sync jobs and reports the last completed one.
type Syncer interface {
	Run(ctx context.Context, mode sync.Mode) (*sync.RunSummary, error)
	LastCheckpoint(ctx context.Context) (*db.Checkpoint, error)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr    string
	Store   db.Store
	Syncer  Syncer
	Metrics http.Handler // Optional; /metrics answers 404 without it
	Logger  zerolog.Logger
}

// Server is the HTTP server for the API.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	handlers *Handlers
	logger   zerolog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("web: store is required")
	}
	if cfg.Syncer == nil {
		return nil, errors.New("web: syncer is required")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	s := &Server{
		router: r,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute, // POST /sync waits for the whole run
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}

	s.handlers = NewHandlers(HandlersConfig{
		Store:    cfg.Store,
		Syncer:   cfg.Syncer,
		Detector: skip.NewDetector(cfg.Store.Plays()),
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Logger:   cfg.Logger,
		Now:      time.Now,
	})

	s.setupRoutes(cfg.Metrics)

	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(metrics http.Handler) {
	h := s.handlers

	s.router.Get("/health", h.Health)
	if metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics)
	}

	s.router.Post("/sync", h.Sync)
	s.router.Get("/checkpoint", h.Checkpoint)
	s.router.Get("/stats", h.Stats)
	s.router.Get("/moods", h.Moods)
	s.router.Get("/tracks/recent", h.RecentTracks)

	s.router.Route("/plays", func(r chi.Router) {
		r.Get("/untagged", h.UntaggedPlays)
		r.Get("/{id}/skip", h.SkipVerdict)
		r.Put("/{id}/tags", h.SaveTags)
	})
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and blocks until ctx is cancelled or an interrupt
// arrives, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
