package actuator

import (
	"context"
	"time"
)

// Transition is one recorded write to an output.
type Transition struct {
	ID        int64     `json:"id"`
	Actuator  string    `json:"actuator"`
	From      Level     `json:"from"`
	To        Level     `json:"to"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandRecord is one decoded inbound command.
type CommandRecord struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Command   string    `json:"command"`
	Applied   bool      `json:"applied"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal persists actuator transitions and received commands.
//
// Implementations must be safe for concurrent use and store UTC timestamps.
type Journal interface {
	RecordTransition(ctx context.Context, t Transition) error
	RecordCommand(ctx context.Context, c CommandRecord) error
}
