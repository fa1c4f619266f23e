package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Info("hidden message")
	logger.Warn("shown message", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("info logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown message") || !strings.Contains(out, "key=value") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestDiscard(t *testing.T) {
	a, b := Discard(), Discard()
	if a == nil || a == b {
		t.Fatalf("Discard() = %p, %p; want two distinct loggers", a, b)
	}
	a.Error("dropped", "key", "value")
}
