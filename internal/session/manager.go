package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/devagent/internal/clock"
	"github.com/nerrad567/devagent/internal/infrastructure/config"
	"github.com/nerrad567/devagent/internal/infrastructure/mqtt"
	"github.com/nerrad567/devagent/internal/retry"
)

// CommandQoS is the delivery level for the commands subscription
// (at least once).
const CommandQoS byte = 1

// Broker is the message broker collaborator. *mqtt.Client implements it.
type Broker interface {
	Connect(ctx context.Context, clientID string) error
	Subscribe(topic string, qos byte) error
	Publish(topic string, payload []byte) error
	SetInboundHandler(handler mqtt.InboundHandler)
	Poll() int
	IsConnected() bool
	LastErrorCode() int
	AnnounceOnline() error
}

// Logger defines the logging interface for the session manager.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager establishes and monitors the broker session.
//
// It is driven from the scheduler goroutine and is not safe for concurrent
// use.
type Manager struct {
	broker       Broker
	clientID     string
	commandTopic string
	policy       retry.Policy
	logger       Logger

	// established counts sessions opened by EnsureSession.
	established atomic.Int64

	onAttemptFailed func(attempt int, err error)
}

// NewManager creates a session manager.
//
// Parameters:
//   - broker: The broker transport
//   - device: Device identity (client ID and topic names)
//   - cfg: MQTT settings; Reconnect.Delay and Reconnect.MaxAttempts drive retries
//   - clk: Clock used for retry pauses (nil for the system clock)
func NewManager(broker Broker, device config.DeviceConfig, cfg config.MQTTConfig, clk clock.Clock) *Manager {
	topics := mqtt.Topics{Namespace: device.Namespace, DeviceUID: device.UID}
	return &Manager{
		broker:       broker,
		clientID:     device.ClientID(),
		commandTopic: topics.Commands(),
		policy: retry.Policy{
			Delay:       cfg.Reconnect.Delay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			Clock:       clk,
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetInboundHandler sets the function that receives inbound messages
// during Poll.
func (m *Manager) SetInboundHandler(handler mqtt.InboundHandler) {
	m.broker.SetInboundHandler(handler)
}

// OnAttemptFailed registers a callback run after each failed session attempt.
func (m *Manager) OnAttemptFailed(fn func(attempt int, err error)) {
	m.onAttemptFailed = fn
}

// ClientID returns the broker client identifier.
func (m *Manager) ClientID() string {
	return m.clientID
}

// CommandTopic returns the topic subscribed on every session.
func (m *Manager) CommandTopic() string {
	return m.commandTopic
}

// EnsureSession blocks until a subscribed broker session is active.
//
// While the session is down it connects, and on success subscribes to the
// commands topic. A failed connect or subscribe is logged with the broker
// return code and retried after the reconnect delay.
//
// Returns:
//   - error: nil once active; ctx.Err() on cancellation; or a wrapped
//     retry.ErrAttemptsExhausted when an attempt limit is configured
func (m *Manager) EnsureSession(ctx context.Context) error {
	if m.broker.IsConnected() {
		return nil
	}

	policy := m.policy
	policy.OnFailure = func(attempt int, err error) {
		m.logger.Warn("broker session failed",
			"attempt", attempt,
			"rc", m.broker.LastErrorCode(),
			"error", err,
			"retry_in", policy.Delay,
		)
		if m.onAttemptFailed != nil {
			m.onAttemptFailed(attempt, err)
		}
	}

	if _, err := policy.Do(ctx, m.open); err != nil {
		return err
	}
	m.established.Add(1)

	// Best effort: the commands subscription is what makes the session usable.
	if err := m.broker.AnnounceOnline(); err != nil {
		m.logger.Warn("announcing online status failed", "error", err)
	}
	return nil
}

// open makes one connect-and-subscribe attempt.
func (m *Manager) open(ctx context.Context, _ int) error {
	if err := m.broker.Connect(ctx, m.clientID); err != nil {
		return err
	}
	m.logger.Info("broker connected", "client_id", m.clientID)

	if err := m.broker.Subscribe(m.commandTopic, CommandQoS); err != nil {
		return fmt.Errorf("subscribing to %s: %w", m.commandTopic, err)
	}
	m.logger.Info("subscribed", "topic", m.commandTopic, "qos", CommandQoS)
	return nil
}

// Poll delivers queued inbound messages and returns how many were handled.
func (m *Manager) Poll() int {
	return m.broker.Poll()
}

// Publish sends payload once. A failure is logged and reported as false;
// it is never retried here.
func (m *Manager) Publish(topic string, payload []byte) bool {
	if err := m.broker.Publish(topic, payload); err != nil {
		m.logger.Error("publish failed",
			"topic", topic,
			"rc", m.broker.LastErrorCode(),
			"error", err,
		)
		return false
	}
	return true
}

// IsActive reports whether the broker session is currently open.
func (m *Manager) IsActive() bool {
	return m.broker.IsConnected()
}

// Established returns how many sessions EnsureSession has opened. Safe to
// call from any goroutine.
func (m *Manager) Established() int {
	return int(m.established.Load())
}
