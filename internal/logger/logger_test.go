package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew_Level(t *testing.T) {
	l, err := New("warn", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("info should be disabled at warn")
	}
	if !l.Core().Enabled(zap.ErrorLevel) {
		t.Fatalf("error should be enabled at warn")
	}
}

func TestNew_Development(t *testing.T) {
	l, err := New("debug", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug should be enabled")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New("loud", false); err == nil {
		t.Fatalf("expected error")
	}
}
