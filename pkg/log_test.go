package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// withBuffer routes the default logger into a buffer at debug level for the
// duration of the test.
func withBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	originalLogger := DefaultLogger
	originalLevel := GetLogLevel()
	t.Cleanup(func() {
		SetLogger(originalLogger)
		SetLogLevel(originalLevel)
	})
	SetLogLevel(slog.LevelDebug)
	SetLogger(NewLogger(&buf, nil))
	return &buf
}

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	tests := []struct {
		name  string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLogLevel(tt.level)
			if got := GetLogLevel(); got != tt.level {
				t.Errorf("GetLogLevel() = %v, want %v", got, tt.level)
			}
		})
	}
}

func TestLogEnabled(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	SetLogLevel(slog.LevelWarn)
	if LogEnabled(slog.LevelDebug) {
		t.Error("LogEnabled(Debug) = true at Warn level")
	}
	if !LogEnabled(slog.LevelError) {
		t.Error("LogEnabled(Error) = false at Warn level")
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	if logger == nil {
		t.Fatal("NewJSONLogger returned nil")
	}

	logger.Info("test message")
	output := buf.String()
	if !strings.Contains(output, `"msg":"test message"`) {
		t.Errorf("JSON log output missing message: %s", output)
	}
}

func TestLogFunctions(t *testing.T) {
	tests := []struct {
		name      string
		log       func(Component, string, ...any)
		component Component
	}{
		{"debug", LogDebug, ComponentHost},
		{"info", LogInfo, ComponentCard},
		{"warn", LogWarn, ComponentTransfer},
		{"error", LogError, ComponentHAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := withBuffer(t)
			tt.log(tt.component, tt.name+" message", "unit", 0)
			output := buf.String()
			if !strings.Contains(output, tt.name+" message") {
				t.Errorf("log missing message: %s", output)
			}
			if !strings.Contains(output, "component="+string(tt.component)) {
				t.Errorf("log missing component: %s", output)
			}
			if !strings.Contains(output, "unit=0") {
				t.Errorf("log missing attribute: %s", output)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	buf := withBuffer(t)

	Logger(ComponentSim).Info("card inserted")
	if !strings.Contains(buf.String(), "component=sim") {
		t.Errorf("Logger() output missing component: %s", buf.String())
	}
}
