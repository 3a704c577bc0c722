package command

import (
	"context"
	"time"

	"github.com/nerrad567/devagent/internal/actuator"
)

// Outcome classifies what happened to one inbound message.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeMalformed Outcome = "malformed"
)

// journalTimeout bounds a single command journal write.
const journalTimeout = 2 * time.Second

// Output is the actuator commands drive. *actuator.Output implements it.
type Output interface {
	Set(level actuator.Level, source string)
}

// Journal records decoded commands. *actuator.SQLiteJournal implements it.
type Journal interface {
	RecordCommand(ctx context.Context, c actuator.CommandRecord) error
}

// Logger defines the logging interface for the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Dispatcher maps command names to actuator levels.
//
// HandleInbound runs on the goroutine that polls the session, so commands
// are applied one at a time in arrival order.
type Dispatcher struct {
	output     Output
	maxPayload int
	table      map[string]actuator.Level

	journal   Journal
	logger    Logger
	onOutcome func(Outcome)
}

// NewDispatcher creates a dispatcher driving output.
//
// Parameters:
//   - output: The actuator to drive
//   - maxPayload: Decode bound in bytes (0 for DefaultMaxPayload)
func NewDispatcher(output Output, maxPayload int) *Dispatcher {
	return &Dispatcher{
		output:     output,
		maxPayload: maxPayload,
		table: map[string]actuator.Level{
			LEDOn:  actuator.High,
			LEDOff: actuator.Low,
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetJournal attaches a command journal; nil disables it.
func (d *Dispatcher) SetJournal(journal Journal) {
	d.journal = journal
}

// OnOutcome registers a callback run once per handled message.
func (d *Dispatcher) OnOutcome(fn func(Outcome)) {
	d.onOutcome = fn
}

// HandleInbound decodes one message and applies it. It never panics on
// bad input and never returns an error: failures are logged and dropped.
func (d *Dispatcher) HandleInbound(topic string, payload []byte) {
	msg, err := Decode(payload, d.maxPayload)
	if err != nil {
		d.logger.Warn("command decode failed",
			"topic", topic,
			"size", len(payload),
			"error", err,
		)
		d.report(OutcomeMalformed)
		return
	}

	d.logger.Info("command received", "topic", topic, "cmd", msg.Name)

	level, known := d.table[msg.Name]
	if known {
		d.output.Set(level, actuator.SourceCommand)
	} else {
		d.logger.Debug("command ignored", "cmd", msg.Name)
	}

	d.record(topic, msg.Name, known)
	if known {
		d.report(OutcomeApplied)
	} else {
		d.report(OutcomeIgnored)
	}
}

func (d *Dispatcher) record(topic, name string, applied bool) {
	if d.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := d.journal.RecordCommand(ctx, actuator.CommandRecord{
		Topic:     topic,
		Command:   name,
		Applied:   applied,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		d.logger.Warn("recording command failed", "cmd", name, "error", err)
	}
}

func (d *Dispatcher) report(outcome Outcome) {
	if d.onOutcome != nil {
		d.onOutcome(outcome)
	}
}
