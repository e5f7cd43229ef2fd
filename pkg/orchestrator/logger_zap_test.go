package orchestrator

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("debug msg", "key", "value")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 log entries, got %d", len(entries))
	}
	if entries[0].Message != "debug msg" {
		t.Errorf("expected first entry to be debug msg, got %q", entries[0].Message)
	}
}

func TestNewZapLogger_NilDefaultsToProduction(t *testing.T) {
	logger := NewZapLogger(nil)
	if logger.sugar == nil {
		t.Fatal("expected non-nil sugared logger")
	}
}
