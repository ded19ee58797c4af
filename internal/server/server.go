// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Saivel1/panelsync/internal/config"
	"github.com/Saivel1/panelsync/internal/mirror"
	"github.com/Saivel1/panelsync/internal/provision"
	"github.com/Saivel1/panelsync/internal/sub"
)

var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	// Required: webhook processing
	Coordinator *mirror.Coordinator

	// Required: subscription link resolution
	Resolver *sub.Resolver

	// Required: account provisioning
	Provisioner *provision.Service
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	deps       *Deps
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		deps:   deps,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.cfg.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Coordinator == nil {
		return fmt.Errorf("%w: Coordinator", ErrMissingDep)
	}
	if deps.Resolver == nil {
		return fmt.Errorf("%w: Resolver", ErrMissingDep)
	}
	if deps.Provisioner == nil {
		return fmt.Errorf("%w: Provisioner", ErrMissingDep)
	}
	return nil
}
