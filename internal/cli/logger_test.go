package cli

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := newLogger("debug", "console")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug enabled")
	}

	logger, err = newLogger("", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) || !logger.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("expected info level by default")
	}

	if _, err := newLogger("loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
