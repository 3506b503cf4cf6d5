//go:build go1.21

// Package slog adapts a *slog.Logger to kvstore.Logger.
package slog

import (
	"context"
	"io"
	stdslog "log/slog"
	"strings"

	"github.com/motti-landau/kvstore"
)

var _ kvstore.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New builds a text logger at level ("debug", "info", "warn", "error") writing to w.
func New(level string, w io.Writer) (Logger, error) {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return Logger{}, err
	}
	h := stdslog.NewTextHandler(w, &stdslog.HandlerOptions{Level: lvl})
	return Logger{L: stdslog.New(h)}, nil
}

func (s Logger) Debug(msg string, f kvstore.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelDebug, msg, attrs(f)...)
}
func (s Logger) Info(msg string, f kvstore.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelInfo, msg, attrs(f)...)
}
func (s Logger) Warn(msg string, f kvstore.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelWarn, msg, attrs(f)...)
}
func (s Logger) Error(msg string, f kvstore.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelError, msg, attrs(f)...)
}

func attrs(f kvstore.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
