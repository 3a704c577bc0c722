package actuator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level is the output level of a digital actuator.
type Level int

const (
	Low Level = iota
	High
)

// String returns "low" or "high".
func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// MarshalText encodes the level as its name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel accepts "low" or "high" (case-insensitive). Empty means Low.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low":
		return Low, nil
	case "high":
		return High, nil
	default:
		return Low, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Sources recorded with each transition.
const (
	SourceBoot    = "boot"
	SourceCommand = "command"
)

// journalTimeout bounds a single journal write.
const journalTimeout = 2 * time.Second

// Logger defines the logging interface for the actuator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Output is a named digital output.
//
// Set is called from the scheduler goroutine; Level may be read from any
// goroutine (the status endpoint reads it).
type Output struct {
	name string

	mu     sync.RWMutex
	level  Level
	writes int

	journal Journal
	logger  Logger
}

// NewOutput creates an output driven to initial.
func NewOutput(name string, initial Level) *Output {
	return &Output{
		name:   name,
		level:  initial,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the output.
func (o *Output) SetLogger(logger Logger) {
	o.logger = logger
}

// SetJournal attaches a journal; nil disables journalling.
func (o *Output) SetJournal(journal Journal) {
	o.journal = journal
}

// Name returns the actuator name.
func (o *Output) Name() string {
	return o.name
}

// Set drives the output to level. The write happens on every call, even
// when the level is unchanged, matching a physical pin write.
func (o *Output) Set(level Level, source string) {
	o.mu.Lock()
	from := o.level
	o.level = level
	o.writes++
	o.mu.Unlock()

	o.logger.Info("actuator set",
		"actuator", o.name,
		"level", level.String(),
		"source", source,
	)

	if o.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	err := o.journal.RecordTransition(ctx, Transition{
		Actuator:  o.name,
		From:      from,
		To:        level,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		o.logger.Warn("recording actuator transition failed",
			"actuator", o.name,
			"error", err,
		)
	}
}

// Level returns the current output level.
func (o *Output) Level() Level {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.level
}

// Writes returns how many times Set has been called.
func (o *Output) Writes() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.writes
}
