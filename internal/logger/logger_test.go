package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevels(t *testing.T) {
	if got := New("svc", "debug").Logger.GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", got)
	}
	t.Setenv("LOG_LEVEL", "")
	if got := New("svc", "nonsense").Logger.GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %v", got)
	}
	t.Setenv("LOG_LEVEL", "warn")
	if got := New("svc", "").Logger.GetLevel(); got != logrus.WarnLevel {
		t.Fatalf("expected warn from env, got %v", got)
	}
}
