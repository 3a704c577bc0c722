package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/devagent/internal/actuator"
	"github.com/nerrad567/devagent/internal/agent"
	"github.com/nerrad567/devagent/internal/infrastructure/config"
	"github.com/nerrad567/devagent/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// Server timeouts. The listener only serves small status documents.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// StatusSource reports the scheduler state. *agent.Scheduler implements it.
type StatusSource interface {
	Snapshot() agent.Snapshot
}

// ActuatorSource reports the output level. *actuator.Output implements it.
type ActuatorSource interface {
	Name() string
	Level() actuator.Level
}

// AddressSource reports the device network address. *link.Manager implements it.
type AddressSource interface {
	LocalAddr() string
}

// HistorySource reads the actuator journal. *actuator.SQLiteJournal implements it.
type HistorySource interface {
	Recent(ctx context.Context, actuatorName string, limit int) ([]actuator.Transition, error)
	RecentCommands(ctx context.Context, limit int) ([]actuator.CommandRecord, error)
}

// SessionSource describes the broker session. *session.Manager implements it.
type SessionSource interface {
	ClientID() string
	CommandTopic() string
	Established() int
}

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config    config.StatusConfig
	Logger    *logging.Logger
	Scheduler StatusSource
	Actuator  ActuatorSource
	Link      AddressSource
	Session   SessionSource            // optional: nil omits the session section
	History   HistorySource            // optional: nil disables /history
	Metrics   http.Handler             // optional: nil disables /metrics
	Checks    map[string]HealthChecker // optional: extra dependency checks for /healthz
	DeviceUID string
	Version   string
}

// Server is the HTTP status server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg       config.StatusConfig
	logger    *logging.Logger
	scheduler StatusSource
	actuator  ActuatorSource
	link      AddressSource
	session   SessionSource
	history   HistorySource
	metrics   http.Handler
	checks    map[string]HealthChecker
	deviceUID string
	version   string
	started   time.Time
	server    *http.Server
	listener  net.Listener
}

// New creates a new status server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, scheduler, actuator)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if deps.Actuator == nil {
		return nil, fmt.Errorf("actuator is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
		actuator:  deps.Actuator,
		link:      deps.Link,
		session:   deps.Session,
		history:   deps.History,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		deviceUID: deps.DeviceUID,
		version:   deps.Version,
		started:   time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding status listener on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("status server starting", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the status server.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
