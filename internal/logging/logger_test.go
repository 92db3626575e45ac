package logging

import (
	"context"
	"log/slog"
	"testing"
)

func resetState() {
	mu.Lock()
	loggers = make(map[string]*slog.Logger)
	levelVars = make(map[string]*slog.LevelVar)
	initialized = false
	history = nil
	mu.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"stream": "debug",
			"api":    "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"stream", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			if got := handler.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := handler.Enabled(context.Background(), slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := handler.Enabled(context.Background(), slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info", Format: "text"})

	logger := GetLogger("device")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at info level")
	}

	SetModuleLevel("device", "debug")
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be enabled after SetModuleLevel")
	}
}

func TestHistoryBuffer(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info", Format: "text"})

	GetLogger("device").Info("default changed", "uid", "builtin-in")

	entries := History().ReadAll()
	if len(entries) == 0 {
		t.Fatal("expected at least one history entry")
	}
	last := entries[len(entries)-1]
	if last.Module != "device" {
		t.Errorf("module = %q, want %q", last.Module, "device")
	}
	if last.Message != "default changed" {
		t.Errorf("message = %q", last.Message)
	}
	if last.Attributes["uid"] != "builtin-in" {
		t.Errorf("uid attribute = %v", last.Attributes["uid"])
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		rb.Write(LogEntry{Message: msg})
	}

	entries := rb.ReadAll()
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Message != "b" || entries[2].Message != "d" {
		t.Errorf("unexpected order: %v, %v, %v", entries[0].Message, entries[1].Message, entries[2].Message)
	}
}
