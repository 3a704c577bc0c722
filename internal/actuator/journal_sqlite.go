package actuator

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// SQLiteJournal implements Journal on the actuator_transitions and
// command_journal tables.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal creates a journal on an open, migrated database.
func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db}
}

// RecordTransition inserts one transition row.
func (j *SQLiteJournal) RecordTransition(ctx context.Context, t Transition) error {
	if t.Actuator == "" {
		return ErrActuatorRequired
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO actuator_transitions (actuator, from_level, to_level, source, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.Actuator,
		t.From.String(),
		t.To.String(),
		t.Source,
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// RecordCommand inserts one command row.
func (j *SQLiteJournal) RecordCommand(ctx context.Context, c CommandRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO command_journal (topic, command, applied, created_at)
		 VALUES (?, ?, ?, ?)`,
		c.Topic,
		c.Command,
		c.Applied,
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// Recent returns the latest transitions for an actuator, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - actuator: Actuator name
//   - limit: Maximum entries (default 50, max 500)
func (j *SQLiteJournal) Recent(ctx context.Context, actuator string, limit int) ([]Transition, error) {
	if actuator == "" {
		return nil, ErrActuatorRequired
	}
	limit = clampLimit(limit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, actuator, from_level, to_level, source, created_at
		 FROM actuator_transitions
		 WHERE actuator = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		actuator, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	out := make([]Transition, 0, limit)
	for rows.Next() {
		var t Transition
		var from, to, createdAt string
		if err := rows.Scan(&t.ID, &t.Actuator, &from, &to, &t.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		if t.From, err = ParseLevel(from); err != nil {
			return nil, err
		}
		if t.To, err = ParseLevel(to); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing transition timestamp: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}

// RecentCommands returns the latest journalled commands, newest first.
func (j *SQLiteJournal) RecentCommands(ctx context.Context, limit int) ([]CommandRecord, error) {
	limit = clampLimit(limit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, topic, command, applied, created_at
		 FROM command_journal
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	out := make([]CommandRecord, 0, limit)
	for rows.Next() {
		var c CommandRecord
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Topic, &c.Command, &c.Applied, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing command timestamp: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
