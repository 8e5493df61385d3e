package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug level", "debug", "console"},
		{"info level", "info", "console"},
		{"warn level", "warn", "console"},
		{"error level", "error", "console"},
		{"json format", "info", "json"},
		{"uppercase level", "DEBUG", "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Setup(tt.level, tt.format)
			if Log == nil {
				t.Error("expected Log to be initialized")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level  string
		expect zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel}, // default case
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := parseLevel(tt.level); got != tt.expect {
				t.Errorf("level %s: expected %v, got %v", tt.level, tt.expect, got)
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	Setup("debug", "console")

	// These should not panic
	Log.Info("test info message", "key", "value")
	Log.Debug("test debug message", "step", 42)
	Log.Warn("test warn message", "value", 3.14)
	Log.Error("test error message", "ok", false)
}

func TestLoggerWithComponent(t *testing.T) {
	Setup("info", "console")

	child := Log.With("tracker")
	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
	child.Info("component-tagged message", "step", 1)
}

func TestLoggerOddArgs(t *testing.T) {
	Setup("info", "console")

	// Odd number of args: orphan key is dropped, no panic
	Log.Info("odd args", "key1", "value1", "orphan_key")
	Log.Info("no fields")
	Log.Info("non-string key", 123, "value")
	Log.Info("nil value", "key", nil)
}
