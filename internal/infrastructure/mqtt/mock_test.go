package mqtt

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a pre-completed paho token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakePublish struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// fakePaho implements pahomqtt.Client for unit tests.
type fakePaho struct {
	mu         sync.Mutex
	opts       *pahomqtt.ClientOptions
	open       bool
	connectErr error
	publishErr error
	// connectPending and publishPending hand out tokens that never complete.
	connectPending bool
	publishPending bool
	published      []fakePublish
	subscribed     []string
	disconnects    int
}

func (f *fakePaho) IsConnected() bool { return f.IsConnectionOpen() }
func (f *fakePaho) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}
func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectPending {
		return newFakeToken(nil, false)
	}
	if f.connectErr == nil {
		f.open = true
	}
	return newFakeToken(f.connectErr, true)
}
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.disconnects++
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.published = append(f.published, fakePublish{Topic: topic, QoS: qos, Retained: retained, Payload: b})
	return newFakeToken(f.publishErr, !f.publishPending)
}
func (f *fakePaho) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return newFakeToken(nil, true)
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return newFakeToken(errors.New("not supported"), true)
}
func (f *fakePaho) Unsubscribe(...string) pahomqtt.Token     { return newFakeToken(nil, true) }
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) drop() {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
}

// newTestClient returns a Client whose paho clients are fakes built from
// template settings. The most recent fake is returned by the getter.
func newTestClient(connectErr error) (*Client, func() *fakePaho) {
	c := New(testConfig(), Status{Topic: "t0/devices/dev-esp32-01/status", BootID: "boot-1"})
	var last *fakePaho
	c.newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		last = &fakePaho{opts: opts, connectErr: connectErr}
		return last
	}
	return c, func() *fakePaho { return last }
}
