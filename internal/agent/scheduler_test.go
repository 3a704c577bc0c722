package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/devagent/internal/clock"
	"github.com/nerrad567/devagent/internal/infrastructure/config"
	"github.com/nerrad567/devagent/internal/infrastructure/mqtt"
	"github.com/nerrad567/devagent/internal/link"
	"github.com/nerrad567/devagent/internal/session"
	"github.com/nerrad567/devagent/internal/telemetry"
)

// =============================================================================
// Test doubles
// =============================================================================

// fakeTransport is a link.Transport whose Connect fails a set number of times.
type fakeTransport struct {
	failures int
	calls    int
	up       bool
}

func (f *fakeTransport) Connect(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("no carrier")
	}
	f.up = true
	return nil
}

func (f *fakeTransport) Status() bool { return f.up }
func (f *fakeTransport) LocalAddr() string {
	if f.up {
		return "192.168.1.50"
	}
	return ""
}

// eventBroker is a session.Broker that records an ordered event log.
type eventBroker struct {
	mu        sync.Mutex
	connected bool
	events    []string
	handler   mqtt.InboundHandler
	inbox     []mqtt.Message
}

func (b *eventBroker) record(event string) {
	b.events = append(b.events, event)
}

func (b *eventBroker) Connect(_ context.Context, clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.record("connect " + clientID)
	return nil
}

func (b *eventBroker) Subscribe(topic string, qos byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(fmt.Sprintf("subscribe %s %d", topic, qos))
	return nil
}

func (b *eventBroker) Publish(topic string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return mqtt.ErrNotConnected
	}
	b.record("publish " + topic)
	return nil
}

func (b *eventBroker) SetInboundHandler(handler mqtt.InboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

func (b *eventBroker) Poll() int {
	b.mu.Lock()
	pending := b.inbox
	b.inbox = nil
	handler := b.handler
	b.mu.Unlock()
	for _, m := range pending {
		if handler != nil {
			handler(m.Topic, m.Payload)
		}
	}
	return len(pending)
}

func (b *eventBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *eventBroker) LastErrorCode() int { return mqtt.CodeConnectFailed }

func (b *eventBroker) AnnounceOnline() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("announce")
	return nil
}

func (b *eventBroker) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.record("drop")
}

func (b *eventBroker) log() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	copy(out, b.events)
	return out
}

type fixedSampler struct{}

func (fixedSampler) Read() (float64, int) { return 24.5, 55 }

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Info(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.warns {
		if w == msg {
			n++
		}
	}
	return n
}

// harness wires real managers to fake transports.
type harness struct {
	clock     *clock.Fake
	transport *fakeTransport
	broker    *eventBroker
	linkLog   *recordingLogger
	link      *link.Manager
	session   *session.Manager
	emitter   *telemetry.Emitter
	sched     *Scheduler
}

var testDevice = config.DeviceConfig{UID: "dev-esp32-01", Namespace: "t0", TransportPrefix: "esp32"}

func newHarness(t *testing.T, linkFailures int) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		transport: &fakeTransport{failures: linkFailures},
		broker:    &eventBroker{},
		linkLog:   &recordingLogger{},
	}

	h.link = link.NewManager(h.transport, config.LinkConfig{RetryDelay: 500 * time.Millisecond}, h.clock)
	h.link.SetLogger(h.linkLog)

	h.session = session.NewManager(h.broker, testDevice, config.MQTTConfig{
		QoS:       1,
		Reconnect: config.MQTTReconnectConfig{Delay: 5 * time.Second},
	}, h.clock)

	h.emitter = telemetry.NewEmitter(h.session, fixedSampler{}, testDevice, 0, h.clock)

	h.sched = NewScheduler(h.link, h.session, h.emitter, Config{
		PublishInterval: 5 * time.Second,
		TickInterval:    100 * time.Millisecond,
	}, h.clock)
	return h
}

// tick advances the fake clock by one tick interval and runs one Tick.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.clock.Advance(100 * time.Millisecond)
	if err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
}

// bringUp ticks until SessionUp.
func (h *harness) bringUp(t *testing.T) {
	t.Helper()
	for i := 0; i < 10 && h.sched.State() != SessionUp; i++ {
		if err := h.sched.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if h.sched.State() != SessionUp {
		t.Fatalf("State() = %v, want session_up", h.sched.State())
	}
}

func (h *harness) publishes() int {
	n := 0
	for _, e := range h.broker.log() {
		if strings.HasPrefix(e, "publish ") {
			n++
		}
	}
	return n
}

// =============================================================================
// State machine
// =============================================================================

func TestConnectivityState_String(t *testing.T) {
	tests := []struct {
		state ConnectivityState
		want  string
	}{
		{Disconnected, "disconnected"},
		{LinkUp, "link_up"},
		{SessionUp, "session_up"},
		{ConnectivityState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestTick_StartupSequence(t *testing.T) {
	h := newHarness(t, 0)
	var states []ConnectivityState
	h.sched.OnState(func(s ConnectivityState) { states = append(states, s) })

	if h.sched.State() != Disconnected {
		t.Fatalf("initial State() = %v, want disconnected", h.sched.State())
	}
	h.bringUp(t)

	if len(states) != 2 || states[0] != LinkUp || states[1] != SessionUp {
		t.Errorf("states = %v, want [link_up session_up]", states)
	}

	log := h.broker.log()
	want := []string{
		"connect esp32-dev-esp32-01",
		"subscribe t0/devices/dev-esp32-01/commands 1",
		"announce",
	}
	if len(log) != len(want) {
		t.Fatalf("broker events = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestTick_LinkDownThreeCycles(t *testing.T) {
	h := newHarness(t, 3)
	var states []ConnectivityState
	h.sched.OnState(func(s ConnectivityState) { states = append(states, s) })

	if err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	want := []ConnectivityState{Disconnected, Disconnected, Disconnected, LinkUp}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
	if got := h.linkLog.count("link attempt failed"); got != 3 {
		t.Errorf("logged retry attempts = %d, want 3", got)
	}
	if sleeps := h.clock.Sleeps(); len(sleeps) != 3 {
		t.Errorf("retry pauses = %v, want 3", sleeps)
	}
}

func TestTick_LinkLostFromSessionUp(t *testing.T) {
	h := newHarness(t, 0)
	h.bringUp(t)

	h.transport.up = false
	h.tick(t)

	if h.sched.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected after link loss", h.sched.State())
	}

	// The next tick reconnects the link.
	h.tick(t)
	if h.sched.State() != LinkUp {
		t.Errorf("State() = %v, want link_up", h.sched.State())
	}
}

func TestTick_LinkLostBeforeSession(t *testing.T) {
	h := newHarness(t, 0)
	if err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if h.sched.State() != LinkUp {
		t.Fatalf("State() = %v, want link_up", h.sched.State())
	}

	h.transport.up = false
	h.tick(t)

	if h.sched.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", h.sched.State())
	}
	if len(h.broker.log()) != 0 {
		t.Errorf("broker touched without a link: %v", h.broker.log())
	}
}

func TestTick_SessionDropResubscribesBeforePublish(t *testing.T) {
	h := newHarness(t, 0)
	h.bringUp(t)

	// Run until the first publish.
	for h.publishes() == 0 {
		h.tick(t)
	}

	h.broker.drop()
	dropAt := len(h.broker.log()) - 1
	h.clock.Advance(10 * time.Second) // a publish is overdue

	h.tick(t)
	if h.sched.State() != SessionUp {
		t.Errorf("State() = %v, want session_up after restore", h.sched.State())
	}

	h.tick(t)

	after := h.broker.log()[dropAt+1:]
	subscribeAt, publishAt := -1, -1
	for i, e := range after {
		if subscribeAt < 0 && strings.HasPrefix(e, "subscribe t0/devices/dev-esp32-01/commands") {
			subscribeAt = i
		}
		if publishAt < 0 && strings.HasPrefix(e, "publish ") {
			publishAt = i
		}
	}
	if subscribeAt < 0 {
		t.Fatalf("no re-subscribe after drop; events = %v", after)
	}
	if publishAt < 0 {
		t.Fatalf("no publish after restore; events = %v", after)
	}
	if subscribeAt > publishAt {
		t.Errorf("publish before re-subscribe; events = %v", after)
	}
	if h.session.Established() != 2 {
		t.Errorf("sessions established = %d, want 2", h.session.Established())
	}
}

// =============================================================================
// Publish cadence
// =============================================================================

func TestTick_EmissionCount(t *testing.T) {
	tests := []struct {
		name  string
		ticks int
	}{
		{"under one interval", 49},
		{"exactly one interval", 50},
		{"many intervals", 1000},
		{"ragged", 777},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			h.bringUp(t)

			for i := 0; i < tt.ticks; i++ {
				h.tick(t)
			}

			duration := time.Duration(tt.ticks) * 100 * time.Millisecond
			want := int(duration / (5 * time.Second))
			got := h.publishes()
			if got < want-1 || got > want+1 {
				t.Errorf("emissions over %v = %d, want %d ±1", duration, got, want)
			}
			if snap := h.sched.Snapshot(); snap.Emissions != got {
				t.Errorf("Snapshot().Emissions = %d, published %d", snap.Emissions, got)
			}
		})
	}
}

func TestTick_AtMostOncePerInterval(t *testing.T) {
	h := newHarness(t, 0)
	h.bringUp(t)

	var times []time.Time
	for i := 0; i < 500; i++ {
		before := h.publishes()
		h.tick(t)
		if h.publishes() > before {
			times = append(times, h.clock.Now())
		}
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 5*time.Second {
			t.Errorf("publishes %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestTick_PublishFailureAdvancesSchedule(t *testing.T) {
	h := newHarness(t, 0)
	h.bringUp(t)

	failing := &failingEmitter{}
	h.sched.emitter = failing

	for i := 0; i < 100; i++ { // 10s
		h.tick(t)
	}
	if failing.calls != 2 {
		t.Errorf("emit calls = %d, want 2 (failures are not retried early)", failing.calls)
	}
}

type failingEmitter struct{ calls int }

func (f *failingEmitter) Emit() bool { f.calls++; return false }

// =============================================================================
// Inbound commands
// =============================================================================

func TestTick_PollDeliversCommands(t *testing.T) {
	h := newHarness(t, 0)
	var got []string
	h.session.SetInboundHandler(func(_ string, payload []byte) { got = append(got, string(payload)) })
	h.bringUp(t)

	h.broker.mu.Lock()
	h.broker.inbox = append(h.broker.inbox, mqtt.Message{
		Topic:   "t0/devices/dev-esp32-01/commands",
		Payload: []byte(`{"cmd":"led_on"}`),
	})
	h.broker.mu.Unlock()

	h.tick(t)

	if len(got) != 1 || got[0] != `{"cmd":"led_on"}` {
		t.Errorf("delivered = %v", got)
	}
	if snap := h.sched.Snapshot(); snap.MessagesRead != 1 {
		t.Errorf("Snapshot().MessagesRead = %d, want 1", snap.MessagesRead)
	}
}

// =============================================================================
// Attempt limits and cancellation
// =============================================================================

func TestTick_LinkAttemptsExhaustedStaysDisconnected(t *testing.T) {
	h := newHarness(t, 100)
	h.link = link.NewManager(h.transport, config.LinkConfig{
		RetryDelay:  500 * time.Millisecond,
		MaxAttempts: 2,
	}, h.clock)
	h.sched = NewScheduler(h.link, h.session, h.emitter, Config{PublishInterval: 5 * time.Second}, h.clock)

	if err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v, want nil (retry next tick)", err)
	}
	if h.sched.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", h.sched.State())
	}
	if err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if h.transport.calls != 4 {
		t.Errorf("Connect calls = %d, want 4 (two per tick)", h.transport.calls)
	}
}

func TestTick_CancelledContext(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.sched.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Tick() error = %v, want context.Canceled", err)
	}
	if h.transport.calls != 0 {
		t.Errorf("Connect calls = %d, want 0", h.transport.calls)
	}
}

func TestTick_CancelDuringLinkRetry(t *testing.T) {
	h := newHarness(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	h.sched.OnState(func(ConnectivityState) {
		if h.transport.calls >= 5 {
			cancel()
		}
	})

	if err := h.sched.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Tick() error = %v, want context.Canceled", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	stopAfter := &cancellingEmitter{inner: h.emitter, limit: 3, cancel: cancel}
	h.sched.emitter = stopAfter

	start := h.clock.Now()
	err := h.sched.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if stopAfter.calls != 3 {
		t.Errorf("emits = %d, want 3", stopAfter.calls)
	}
	if elapsed := h.clock.Now().Sub(start); elapsed < 15*time.Second || elapsed > 16*time.Second {
		t.Errorf("fake time elapsed = %v, want about 15s", elapsed)
	}
}

type cancellingEmitter struct {
	inner  Emitter
	limit  int
	calls  int
	cancel context.CancelFunc
}

func (c *cancellingEmitter) Emit() bool {
	c.calls++
	ok := c.inner.Emit()
	if c.calls >= c.limit {
		c.cancel()
	}
	return ok
}

// =============================================================================
// Metrics hooks and snapshot
// =============================================================================

type countingRecorder struct {
	linkFailed, sessionFailed, established int
	states                                 []ConnectivityState
}

func (r *countingRecorder) LinkAttemptFailed()    { r.linkFailed++ }
func (r *countingRecorder) SessionAttemptFailed() { r.sessionFailed++ }
func (r *countingRecorder) SessionEstablished()   { r.established++ }
func (r *countingRecorder) StateChanged(s ConnectivityState) {
	r.states = append(r.states, s)
}

func TestRecorder(t *testing.T) {
	h := newHarness(t, 2)
	rec := &countingRecorder{}
	h.sched.SetRecorder(rec)

	h.bringUp(t)
	h.broker.drop()
	h.tick(t)

	if rec.linkFailed != 2 {
		t.Errorf("link failures = %d, want 2", rec.linkFailed)
	}
	if rec.established != 2 {
		t.Errorf("sessions established = %d, want 2", rec.established)
	}
	if len(rec.states) != 2 || rec.states[1] != SessionUp {
		t.Errorf("states = %v", rec.states)
	}
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, 0)
	h.bringUp(t)
	for i := 0; i < 60; i++ {
		h.tick(t)
	}

	snap := h.sched.Snapshot()
	if snap.State != SessionUp || snap.StateName != "session_up" {
		t.Errorf("state = %v (%q)", snap.State, snap.StateName)
	}
	if snap.Emissions != 1 {
		t.Errorf("Emissions = %d, want 1", snap.Emissions)
	}
	if snap.LastPublish.IsZero() || snap.Ticks != 62 {
		t.Errorf("snapshot = %+v", snap)
	}
}
