package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	logger := Get()
	if logger == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerBasic(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	logger := Get()

	logger.Debug(ctx, "debug message", String("key", "value"))
	logger.Info(ctx, "info message", Int("count", 3), Float64("score", 61.5))
	logger.Warn(ctx, "warn message", Any("payload", map[string]int{"a": 1}))
	logger.Error(ctx, "error message", Error(errors.New("boom")))

	named := logger.Named("subsystem")
	if named == nil {
		t.Fatal("named logger is nil")
	}
	named.Info(ctx, "named message")
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	valid := []string{"debug", "info", "warn", "warning", "error", "INFO", " debug ", ""}
	for _, level := range valid {
		if err := SetLevelString(level); err != nil {
			t.Errorf("SetLevelString(%q) failed: %v", level, err)
		}
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Error("SetLevelString accepted an unknown level")
	}

	// Reset for other tests.
	SetLevel(slog.LevelInfo)
}
