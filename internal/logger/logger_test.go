package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input     string
		expected  zapcore.Level
		expectOK  bool
	}{
		{input: "", expected: zapcore.InfoLevel, expectOK: true},
		{input: "debug", expected: zapcore.DebugLevel, expectOK: true},
		{input: " WARNING ", expected: zapcore.WarnLevel, expectOK: true},
		{input: "error", expected: zapcore.ErrorLevel, expectOK: true},
		{input: "verbose", expected: zapcore.InfoLevel, expectOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := ParseLevel(tt.input)
			if level != tt.expected || ok != tt.expectOK {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, level, ok, tt.expected, tt.expectOK)
			}
		})
	}
}

func TestCronZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	czl := NewCronZapLogger(zap.New(core))

	czl.Info("schedule", "entry", 3, "next", "soon")
	czl.Error(errors.New("boom"), "job failed", "entry", 3)
	czl.Info("odd", "lonely")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 log entries (including odd-args warning), got %d", len(entries))
	}

	if got := entries[0].ContextMap()["entry"]; got != int64(3) && got != 3 {
		t.Errorf("entry field = %v, want 3", got)
	}
	if got := entries[1].ContextMap()["error"]; got != "boom" {
		t.Errorf("error field = %v, want boom", got)
	}
	if entries[2].Message != "Odd number of arguments passed to logger" {
		t.Errorf("expected odd-args warning, got %q", entries[2].Message)
	}
	if got := entries[3].ContextMap()["lonely"]; got != "<missing_value>" {
		t.Errorf("lonely field = %v, want <missing_value>", got)
	}
}
