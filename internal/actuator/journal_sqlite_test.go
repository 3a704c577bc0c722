package actuator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/devagent/internal/infrastructure/config"
	"github.com/nerrad567/devagent/internal/infrastructure/database"
	_ "github.com/nerrad567/devagent/migrations"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteJournal(db.DB)
}

func TestSQLiteJournal_Transitions(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	steps := []Transition{
		{Actuator: "led", From: Low, To: Low, Source: SourceBoot, CreatedAt: base},
		{Actuator: "led", From: Low, To: High, Source: SourceCommand, CreatedAt: base.Add(time.Second)},
		{Actuator: "relay", From: Low, To: High, Source: SourceCommand, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, s := range steps {
		if err := j.RecordTransition(ctx, s); err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
	}

	got, err := j.Recent(ctx, "led", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d rows, want 2", len(got))
	}
	if got[0].To != High || got[0].Source != SourceCommand {
		t.Errorf("newest transition = %+v, want command to high", got[0])
	}
	if !got[1].CreatedAt.Equal(base) {
		t.Errorf("oldest CreatedAt = %v, want %v", got[1].CreatedAt, base)
	}

	limited, err := j.Recent(ctx, "led", 1)
	if err != nil {
		t.Fatalf("Recent(limit 1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Recent(limit 1) returned %d rows", len(limited))
	}
}

func TestSQLiteJournal_RequiresActuator(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if err := j.RecordTransition(ctx, Transition{}); !errors.Is(err, ErrActuatorRequired) {
		t.Errorf("RecordTransition() error = %v, want ErrActuatorRequired", err)
	}
	if _, err := j.Recent(ctx, "", 0); !errors.Is(err, ErrActuatorRequired) {
		t.Errorf("Recent() error = %v, want ErrActuatorRequired", err)
	}
}

func TestSQLiteJournal_Commands(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	records := []CommandRecord{
		{Topic: "t0/devices/dev-esp32-01/commands", Command: "led_on", Applied: true},
		{Topic: "t0/devices/dev-esp32-01/commands", Command: "reboot", Applied: false},
	}
	for _, r := range records {
		if err := j.RecordCommand(ctx, r); err != nil {
			t.Fatalf("RecordCommand() error = %v", err)
		}
	}

	got, err := j.RecentCommands(ctx, 0)
	if err != nil {
		t.Fatalf("RecentCommands() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentCommands() returned %d rows, want 2", len(got))
	}
	if got[0].Command != "reboot" || got[0].Applied {
		t.Errorf("newest command = %+v, want unapplied reboot", got[0])
	}
	if got[1].Command != "led_on" || !got[1].Applied {
		t.Errorf("oldest command = %+v, want applied led_on", got[1])
	}
}

func TestOutput_WithSQLiteJournal(t *testing.T) {
	j := newTestJournal(t)
	out := NewOutput("led", Low)
	out.SetJournal(j)

	out.Set(High, SourceCommand)

	got, err := j.Recent(context.Background(), "led", 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 || got[0].From != Low || got[0].To != High {
		t.Errorf("Recent() = %+v, want one low->high transition", got)
	}
}
