package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/devagent/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
		{},
	}
	for _, cfg := range tests {
		if New(cfg, "1.0.0") == nil {
			t.Errorf("New(%+v) = nil", cfg)
		}
	}
	if Default() == nil {
		t.Error("Default() = nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"debug+2", slog.LevelDebug + 2},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "test", &buf)

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	want := map[string]string{
		"msg":     "test message",
		"service": serviceName,
		"version": "test",
		"key":     "value",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestNewWithWriter_TextFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, "test", &buf)

	logger.Component("link").Info("link attempt", "attempt", 1)

	output := buf.String()
	if !strings.Contains(output, "component=link") {
		t.Errorf("expected component attribute in output, got %q", output)
	}
	if !strings.Contains(output, "attempt=1") {
		t.Errorf("expected attempt attribute in output, got %q", output)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, "test", &buf)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn message in output, got %q", buf.String())
	}
}

func TestNewWithWriter_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "test", &buf)

	logger.With("token", "influx-abc").Info("connecting",
		"password", "hunter2",
		"user", "agent",
	)

	output := buf.String()
	for _, secret := range []string{"hunter2", "influx-abc"} {
		if strings.Contains(output, secret) {
			t.Errorf("output leaks %q: %s", secret, output)
		}
	}
	if !strings.Contains(output, "user=agent") || !strings.Contains(output, redacted) {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestLogger_WithReturnsChild(t *testing.T) {
	logger := Discard()
	child := logger.With("component", "session")
	if child == nil || child == logger {
		t.Error("With() must return a distinct child logger")
	}
	child.Error("ignored", "error", "boom")
}
