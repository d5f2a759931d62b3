// Package logging provides EchoWarp's logger interface and its
// devlog-backed implementation.
//
// The interface shape is grounded on the teacher's application.Logger /
// infrastructure/logging.LogLogger split (an interface consumed by domain
// and application code, with a single concrete wrapper in infrastructure);
// the devlog-over-slog backing is grounded on
// _examples/kgiusti-go-fdo-server/cmd/root.go, the only repo in the pack
// that wires hermannm.dev/devlog.
package logging

import (
	"io"
	"log/slog"

	"hermannm.dev/devlog"
)

// Logger is the narrow logging surface consumed throughout EchoWarp's
// transport, data-plane, and ban-ledger code. It mirrors slog's leveled
// methods rather than the teacher's single Printf, since spec components
// like the ban ledger and the heartbeat loop need to distinguish routine
// activity from ban/conflict/fatal conditions at a glance.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// New builds a Logger backed by devlog's human-readable handler, writing to
// w at the given minimum level.
func New(w io.Writer, level slog.Level) Logger {
	var lvl slog.LevelVar
	lvl.Set(level)
	handler := devlog.NewHandler(w, &devlog.Options{Level: &lvl})
	return &slogLogger{l: slog.New(handler)}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}
