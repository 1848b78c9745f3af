package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn).With("poller")

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("poll failed status=%s", "ERROR: Timeout")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered message leaked: %q", out)
	}
	if !strings.Contains(out, "WARN poller: poll failed status=ERROR: Timeout") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestLogger_NilIsSilent(t *testing.T) {
	var l *Logger
	l.Info("nothing")
	if l.With("x") != nil {
		t.Error("With on nil logger should stay nil")
	}
	if l.Enabled(LevelError) {
		t.Error("nil logger must not be enabled")
	}
}
