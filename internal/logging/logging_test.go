package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogger_WritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo)

	l.Info("peer connected", "ip", "10.0.0.1")

	if buf.Len() == 0 {
		t.Fatal("expected log output to be written")
	}
	if !strings.Contains(buf.String(), "peer connected") {
		t.Fatalf("expected message in output, got %q", buf.String())
	}
}

func TestLogger_DebugSuppressedBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo)

	l.Debug("verbose detail")

	if buf.Len() != 0 {
		t.Fatalf("expected debug log to be suppressed at info level, got %q", buf.String())
	}
}

func TestLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo)

	scoped := l.With("component", "banledger")
	scoped.Warn("peer banned")

	if !strings.Contains(buf.String(), "banledger") {
		t.Fatalf("expected bound field in output, got %q", buf.String())
	}
}
