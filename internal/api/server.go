// Package api provides the HTTP REST API and WebSocket server for Fire Watch.
//
// It exposes device registry operations, the alarm ledger, broker connection
// management, and a WebSocket feed that pushes alarm notifications to
// connected user interfaces.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Kalashnok/fire-alarm/internal/alarm"
	"github.com/Kalashnok/fire-alarm/internal/device"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/config"
	"github.com/Kalashnok/fire-alarm/internal/infrastructure/logging"
	"github.com/Kalashnok/fire-alarm/internal/monitor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Session     *monitor.Session
	Registry    *device.Registry
	Ledger      *alarm.Ledger
	BrokerStore *config.BrokerStore // optional; nil disables config persistence
	Version     string
}

// Server is the HTTP API server for Fire Watch.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	session     *monitor.Session
	registry    *device.Registry
	ledger      *alarm.Ledger
	brokerStore *config.BrokerStore
	version     string
	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, session, registry, ledger)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("monitor session is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("alarm ledger is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		session:     deps.Session,
		registry:    deps.Registry,
		ledger:      deps.Ledger,
		brokerStore: deps.BrokerStore,
		version:     deps.Version,
		hub:         NewHub(deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub, which implements monitor.Notifier so the
// session can push alarm notifications to connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
//
// Parameters:
//   - ctx: Context for background goroutine cancellation
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
