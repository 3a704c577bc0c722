package link

import (
	"context"

	"github.com/nerrad567/devagent/internal/clock"
	"github.com/nerrad567/devagent/internal/infrastructure/config"
	"github.com/nerrad567/devagent/internal/retry"
)

// Logger defines the logging interface for the link manager.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Manager establishes and monitors the network link.
//
// It is driven from the scheduler goroutine and is not safe for concurrent
// use.
type Manager struct {
	transport Transport
	policy    retry.Policy
	logger    Logger

	// iface and probe are reported when a connect cycle starts.
	iface string
	probe string

	// onAttemptFailed is notified after every failed attempt.
	onAttemptFailed func(attempt int, err error)
}

// NewManager creates a link manager.
//
// Parameters:
//   - transport: The network collaborator
//   - cfg: Retry delay and optional attempt limit
//   - clk: Clock used for retry pauses (nil for the system clock)
func NewManager(transport Transport, cfg config.LinkConfig, clk clock.Clock) *Manager {
	return &Manager{
		transport: transport,
		policy: retry.Policy{
			Delay:       cfg.RetryDelay,
			MaxAttempts: cfg.MaxAttempts,
			Clock:       clk,
		},
		logger: noopLogger{},
		iface:  cfg.Interface,
		probe:  cfg.ProbeAddress,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// OnAttemptFailed registers a callback run after each failed link attempt.
func (m *Manager) OnAttemptFailed(fn func(attempt int, err error)) {
	m.onAttemptFailed = fn
}

// EnsureLink blocks until the link is up.
//
// Each failed attempt is logged and followed by the fixed retry delay. With
// no attempt limit configured it only returns early when ctx is cancelled;
// otherwise it returns a wrapped retry.ErrAttemptsExhausted.
func (m *Manager) EnsureLink(ctx context.Context) error {
	if m.transport.Status() {
		return nil
	}

	m.logger.Info("link connecting",
		"interface", m.iface,
		"probe", m.probe,
	)

	policy := m.policy
	policy.OnFailure = func(attempt int, err error) {
		m.logger.Warn("link attempt failed",
			"attempt", attempt,
			"error", err,
			"retry_in", policy.Delay,
		)
		if m.onAttemptFailed != nil {
			m.onAttemptFailed(attempt, err)
		}
	}

	attempts, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		return m.transport.Connect(ctx)
	})
	if err != nil {
		return err
	}

	m.logger.Info("link connected",
		"address", m.transport.LocalAddr(),
		"attempts", attempts,
	)
	return nil
}

// IsLinkUp reports the current link status without blocking.
func (m *Manager) IsLinkUp() bool {
	return m.transport.Status()
}

// LocalAddr returns the device network address, or "" while down.
func (m *Manager) LocalAddr() string {
	return m.transport.LocalAddr()
}
