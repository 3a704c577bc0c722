package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/devagent/internal/clock"
)

// DefaultTickInterval paces Run between ticks.
const DefaultTickInterval = 50 * time.Millisecond

// LinkManager is the network link the scheduler keeps up.
// *link.Manager implements it.
type LinkManager interface {
	EnsureLink(ctx context.Context) error
	IsLinkUp() bool
	OnAttemptFailed(fn func(attempt int, err error))
}

// SessionManager is the broker session the scheduler keeps up.
// *session.Manager implements it.
type SessionManager interface {
	EnsureSession(ctx context.Context) error
	IsActive() bool
	Poll() int
	OnAttemptFailed(fn func(attempt int, err error))
}

// Emitter publishes one telemetry sample. *telemetry.Emitter implements it.
type Emitter interface {
	Emit() bool
}

// Recorder receives scheduler events for metrics. Optional.
type Recorder interface {
	LinkAttemptFailed()
	SessionAttemptFailed()
	SessionEstablished()
	StateChanged(state ConnectivityState)
}

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Config holds scheduler timing.
type Config struct {
	// PublishInterval is the minimum time between telemetry emissions.
	PublishInterval time.Duration

	// TickInterval is the pause Run takes between ticks.
	TickInterval time.Duration
}

// Snapshot is a point-in-time view of the scheduler for status reporting.
type Snapshot struct {
	State        ConnectivityState `json:"-"`
	StateName    string            `json:"state"`
	StateSince   time.Time         `json:"state_since"`
	LastPublish  time.Time         `json:"last_publish"`
	Emissions    int               `json:"emissions"`
	Ticks        uint64            `json:"ticks"`
	MessagesRead int               `json:"messages_read"`
}

// Scheduler drives the connectivity state machine.
//
// Tick and Run must be called from a single goroutine. Snapshot may be
// called from any goroutine.
type Scheduler struct {
	link     LinkManager
	session  SessionManager
	emitter  Emitter
	clock    clock.Clock
	cfg      Config
	logger   Logger
	recorder Recorder

	// observer sees every state the machine passes through, including
	// repeated Disconnected observations on failed link attempts.
	observer func(ConnectivityState)

	mu           sync.RWMutex
	state        ConnectivityState
	stateSince   time.Time
	lastPublish  time.Time
	emissions    int
	ticks        uint64
	messagesRead int
}

// NewScheduler creates a scheduler in the Disconnected state. The publish
// schedule starts at construction, so the first sample is due one interval
// later.
//
// Parameters:
//   - link: Network link manager
//   - session: Broker session manager
//   - emitter: Telemetry emitter
//   - cfg: Publish interval and tick pacing
//   - clk: Clock (nil for the system clock)
func NewScheduler(link LinkManager, session SessionManager, emitter Emitter, cfg Config, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	now := clk.Now()
	s := &Scheduler{
		link:        link,
		session:     session,
		emitter:     emitter,
		clock:       clk,
		cfg:         cfg,
		logger:      noopLogger{},
		state:       Disconnected,
		stateSince:  now,
		lastPublish: now,
	}

	link.OnAttemptFailed(func(int, error) {
		if s.recorder != nil {
			s.recorder.LinkAttemptFailed()
		}
		s.observe(Disconnected)
	})
	session.OnAttemptFailed(func(int, error) {
		if s.recorder != nil {
			s.recorder.SessionAttemptFailed()
		}
	})

	return s
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder attaches a metrics recorder.
func (s *Scheduler) SetRecorder(recorder Recorder) {
	s.recorder = recorder
}

// OnState registers a callback run for every observed state.
func (s *Scheduler) OnState(fn func(ConnectivityState)) {
	s.observer = fn
}

// State returns the current connectivity state.
func (s *Scheduler) State() ConnectivityState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the current scheduler status.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:        s.state,
		StateName:    s.state.String(),
		StateSince:   s.stateSince,
		LastPublish:  s.lastPublish,
		Emissions:    s.emissions,
		Ticks:        s.ticks,
		MessagesRead: s.messagesRead,
	}
}

// Run ticks until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"publish_interval", s.cfg.PublishInterval,
		"tick_interval", s.cfg.TickInterval,
	)
	for {
		if err := s.Tick(ctx); err != nil {
			return err
		}
		if err := s.clock.Sleep(ctx, s.cfg.TickInterval); err != nil {
			return err
		}
	}
}

// Tick advances the state machine by one step. It returns an error only
// when ctx is cancelled; connectivity failures are logged and retried on
// a later tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.ticks++
	state := s.state
	s.mu.Unlock()

	switch state {
	case Disconnected:
		if err := s.link.EnsureLink(ctx); err != nil {
			return s.recover("link", err)
		}
		s.transition(LinkUp)

	case LinkUp:
		if !s.link.IsLinkUp() {
			s.transition(Disconnected)
			return nil
		}
		if err := s.session.EnsureSession(ctx); err != nil {
			return s.recover("session", err)
		}
		s.sessionEstablished()
		s.transition(SessionUp)

	case SessionUp:
		if !s.link.IsLinkUp() {
			s.logger.Warn("link lost")
			s.transition(Disconnected)
			return nil
		}
		if !s.session.IsActive() {
			s.logger.Warn("broker session lost, reconnecting")
			if err := s.session.EnsureSession(ctx); err != nil {
				s.transition(LinkUp)
				return s.recover("session", err)
			}
			s.sessionEstablished()
			return nil
		}

		read := s.session.Poll()
		s.publishIfDue(read)
	}

	return nil
}

// publishIfDue emits one sample when a full interval has elapsed since the
// last attempt. The schedule advances whether or not the publish succeeds.
func (s *Scheduler) publishIfDue(read int) {
	now := s.clock.Now()

	s.mu.Lock()
	s.messagesRead += read
	due := now.Sub(s.lastPublish) >= s.cfg.PublishInterval
	if due {
		s.lastPublish = now
		s.emissions++
	}
	s.mu.Unlock()

	if due {
		s.emitter.Emit()
	}
}

// recover turns a failed ensure call into a log line, passing context
// cancellation through.
func (s *Scheduler) recover(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Warn("connectivity attempt gave up, retrying next tick",
		"component", what,
		"error", err,
	)
	return nil
}

func (s *Scheduler) sessionEstablished() {
	if s.recorder != nil {
		s.recorder.SessionEstablished()
	}
}

func (s *Scheduler) transition(to ConnectivityState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.stateSince = s.clock.Now()
	s.mu.Unlock()

	if from != to {
		s.logger.Info("connectivity state changed", "from", from.String(), "to", to.String())
	}
	if s.recorder != nil {
		s.recorder.StateChanged(to)
	}
	s.observe(to)
}

func (s *Scheduler) observe(state ConnectivityState) {
	if s.observer != nil {
		s.observer(state)
	}
}
