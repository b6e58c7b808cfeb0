// Package api provides the HTTP REST API and WebSocket server for the
// conductor core.
//
// It exposes action submission, lifecycle queries, feedback streaming,
// run orchestration, and device management to lab frontends and
// protocol tooling.
//
// The server follows the same lifecycle pattern as the other
// subsystems:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
	"github.com/oakmere/conductor-core/internal/execution"
	"github.com/oakmere/conductor-core/internal/infrastructure/config"
	"github.com/oakmere/conductor-core/internal/infrastructure/logging"
	"github.com/oakmere/conductor-core/internal/run"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RunNotifier receives finished run records for outbound publication.
// Implemented by the events bridge; optional.
type RunNotifier interface {
	RunFinished(r run.Run)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Manager      *execution.Manager
	Orchestrator *run.Orchestrator
	Devices      *device.Registry
	Actions      *action.Registry
	Notifier     RunNotifier
	Version      string
}

// Server is the conductor HTTP API server.
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	manager      *execution.Manager
	orchestrator *run.Orchestrator
	devices      *device.Registry
	actions      *action.Registry
	notifier     RunNotifier
	version      string

	server  *http.Server
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates an API server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("execution manager is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		manager:      deps.Manager,
		orchestrator: deps.Orchestrator,
		devices:      deps.Devices,
		actions:      deps.Actions,
		notifier:     deps.Notifier,
		version:      deps.Version,
	}, nil
}

// Start builds the router and launches the HTTP listener in a
// background goroutine.
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close can stop streaming connections
	// independently of the parent.
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting for in-flight
// requests up to the shutdown timeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
