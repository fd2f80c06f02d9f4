// Package api exposes the tfomics analyses over HTTP.
//
// The server wraps the same pipeline Runner the CLI uses, persists
// completed runs in a store, and serves reference-genome regions for
// ad-hoc lookups.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tfomics/tfomics/internal/config"
	"github.com/tfomics/tfomics/pkg/pipeline"
	"github.com/tfomics/tfomics/pkg/store"
)

// Server is the tfomics HTTP API server.
type Server struct {
	cfg    config.Config
	runner *pipeline.Runner
	store  store.Store
	logger *log.Logger

	http *http.Server
}

// NewServer assembles a server from its dependencies.
func NewServer(cfg config.Config, runner *pipeline.Runner, st store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:    cfg,
		runner: runner,
		store:  st,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}
	return s
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/shuffle", s.handleShuffle)
		r.Post("/asb", s.handleASB)
		r.Post("/mr", s.handleMR)
		r.Get("/sequence", s.handleSequence)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Delete("/{id}", s.handleDeleteRun)
		})
	})

	return r
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		return s.http.Shutdown(context.Background())
	}
}
