package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/devagent/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as the agent's broker transport.
//
// Connect may be called repeatedly; each call opens a fresh clean session.
// Inbound messages are held in a bounded inbox until Poll is called.
//
// Thread Safety:
//   - All methods are safe for concurrent use, but the inbound handler only
//     ever runs on the goroutine calling Poll.
type Client struct {
	cfg    config.MQTTConfig
	status Status

	// newClient builds the underlying paho client; replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	client   pahomqtt.Client
	clientID string

	// connected tracks current connection state.
	connected bool
	lastCode  int
	connMu    sync.RWMutex

	inbox   chan Message
	dropped uint64
	dropMu  sync.Mutex

	handler   InboundHandler
	handlerMu sync.RWMutex

	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is one inbound publication waiting in the inbox.
type Message struct {
	Topic   string
	Payload []byte
}

// InboundHandler receives messages drained by Poll.
type InboundHandler func(topic string, payload []byte)

// New creates a disconnected client.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - status: Retained status topic used for LWT and announcements
//
// Returns:
//   - *Client: Ready for Connect
func New(cfg config.MQTTConfig, status Status) *Client {
	return &Client{
		cfg:       cfg,
		status:    status,
		newClient: pahomqtt.NewClient,
		lastCode:  CodeDisconnected,
		inbox:     make(chan Message, defaultInboxSize),
	}
}

// Connect opens a broker session under clientID.
//
// It blocks until the broker answers, the connect timeout expires, or ctx
// is cancelled. On failure LastErrorCode reports why.
//
// Returns:
//   - error: wrapped ErrConnectionFailed on failure
func (c *Client) Connect(ctx context.Context, clientID string) error {
	if clientID == "" {
		return ErrInvalidClientID
	}

	// Drop any half-open previous session before starting a new one.
	c.connMu.Lock()
	previous := c.client
	c.client = nil
	c.connected = false
	c.connMu.Unlock()
	if previous != nil && previous.IsConnectionOpen() {
		previous.Disconnect(0)
	}

	opts := buildClientOptions(c.cfg, clientID)
	configureLWT(opts, c.status, clientID, byte(c.cfg.QoS))
	opts.SetDefaultPublishHandler(c.enqueueMessage)
	var pc pahomqtt.Client
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(pc, err)
	})

	pc = c.newClient(opts)
	token := pc.Connect()

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if err := waitToken(ctx, token, timeout); err != nil {
		code := CodeConnectFailed
		if errors.Is(err, errTokenTimeout) {
			code = CodeConnectionTimeout
		}
		// The attempt may still complete later; never leave it running.
		pc.Disconnect(0)
		c.setFailure(code)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := token.Error(); err != nil {
		c.setFailure(connectReturnCode(token))
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.client = pc
	c.clientID = clientID
	c.connected = true
	c.lastCode = CodeConnected
	c.connMu.Unlock()

	return nil
}

// connectReturnCode extracts the CONNACK code from a failed connect token.
func connectReturnCode(token pahomqtt.Token) int {
	ct, ok := token.(*pahomqtt.ConnectToken)
	if !ok {
		return CodeConnectFailed
	}
	rc := ct.ReturnCode()
	// Codes above the MQTT 3.1.1 range are paho-internal network errors.
	if rc == 0 || rc > 5 {
		return CodeConnectFailed
	}
	return int(rc)
}

func (c *Client) setFailure(code int) {
	c.connMu.Lock()
	c.connected = false
	c.lastCode = code
	c.connMu.Unlock()
}

// handleConnectionLost is called by paho when the connection of source
// drops. Callbacks from a client that is no longer current are ignored.
func (c *Client) handleConnectionLost(source pahomqtt.Client, err error) {
	c.connMu.Lock()
	if source == nil || c.client != source {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.lastCode = CodeConnectionLost
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// enqueueMessage copies an inbound message into the inbox. It runs on a
// paho goroutine and never blocks; when the inbox is full the message is
// dropped and counted.
func (c *Client) enqueueMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	c.enqueue(msg.Topic(), msg.Payload())
}

func (c *Client) enqueue(topic string, payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case c.inbox <- Message{Topic: topic, Payload: buf}:
	default:
		c.dropMu.Lock()
		c.dropped++
		c.dropMu.Unlock()
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT inbox full, dropping message", "topic", topic)
		}
	}
}

// Poll drains the messages queued so far and hands each to the inbound
// handler on the calling goroutine. It returns the number delivered.
// Messages arriving during Poll wait for the next call.
func (c *Client) Poll() int {
	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()

	pending := len(c.inbox)
	delivered := 0
	for i := 0; i < pending; i++ {
		msg := <-c.inbox
		if handler == nil {
			continue
		}
		c.deliver(handler, msg)
		delivered++
	}
	return delivered
}

// deliver runs the handler with panic recovery.
func (c *Client) deliver(handler InboundHandler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic,
					"panic", r,
				)
			}
		}
	}()
	handler(msg.Topic, msg.Payload)
}

// Dropped returns how many inbound messages were discarded because the
// inbox was full.
func (c *Client) Dropped() uint64 {
	c.dropMu.Lock()
	defer c.dropMu.Unlock()
	return c.dropped
}

// Close publishes a graceful offline status and disconnects.
//
// Returns:
//   - error: always nil (connection already closed is not an error)
func (c *Client) Close() error {
	c.connMu.Lock()
	pc := c.client
	clientID := c.clientID
	c.client = nil
	c.connected = false
	c.lastCode = CodeDisconnected
	c.connMu.Unlock()

	if pc == nil {
		return nil
	}

	if pc.IsConnectionOpen() && c.status.Topic != "" {
		payload := statusPayload(false, clientID, c.status.BootID, "graceful_shutdown")
		token := pc.Publish(c.status.Topic, byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	pc.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// HealthCheck reports ErrNotConnected when no session is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnectionOpen()
}

// LastErrorCode returns the most recent connection state code: 0 when
// connected, a CONNACK return code for broker refusals, or one of the
// negative Code* constants.
func (c *Client) LastErrorCode() int {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.lastCode
}

// SetInboundHandler sets the function Poll delivers messages to.
func (c *Client) SetInboundHandler(handler InboundHandler) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// SetOnDisconnect sets a callback invoked (on a paho goroutine) when the
// connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for inbox overflow and handler panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// activeClient returns the paho client if a session is open.
func (c *Client) activeClient() (pahomqtt.Client, string, bool) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if !c.connected || c.client == nil || !c.client.IsConnectionOpen() {
		return nil, "", false
	}
	return c.client, c.clientID, true
}

// errTokenTimeout marks a token that did not complete in time.
var errTokenTimeout = errors.New("timeout")

// waitToken waits for token completion, timeout, or ctx cancellation.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", errTokenTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
