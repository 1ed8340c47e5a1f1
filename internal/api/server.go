package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/logging"
	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/mqtt"
	"github.com/billchurch/bhyve-mqtt/internal/orbit"
)

const shutdownGrace = 10 * time.Second

// Errors returned by New and HealthCheck.
var (
	ErrMissingDependency = errors.New("api: missing dependency")
	ErrNotStarted        = errors.New("api: server not started")
)

// BusStatus reports the bus connection; *mqtt.Client satisfies it.
type BusStatus interface {
	IsConnected() bool
	State() mqtt.State
	SubscriptionCount() int
}

// BridgeStatus reports the cloud side; *bridge.Bridge satisfies it.
type BridgeStatus interface {
	CloudState() orbit.State
	DeviceCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bus      BusStatus
	Bridge   BridgeStatus
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the status HTTP server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bus       BusStatus
	bridge    BridgeStatus
	gatherer  prometheus.Gatherer
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("%w: logger", ErrMissingDependency)
	case deps.Bus == nil:
		return nil, fmt.Errorf("%w: bus status", ErrMissingDependency)
	case deps.Bridge == nil:
		return nil, fmt.Errorf("%w: bridge status", ErrMissingDependency)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bus:       deps.Bus,
		bridge:    deps.Bridge,
		gatherer:  deps.Gatherer,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listen address and serves in the background. A bind
// failure is returned here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}

	read := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Close drains in-flight requests for up to shutdownGrace. Safe before
// Start and on nil.
func (s *Server) Close() error {
	if s == nil || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// HealthCheck reports ErrNotStarted until Start has succeeded.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api: health check: %w", err)
	}
	if s.server == nil {
		return ErrNotStarted
	}
	return nil
}
