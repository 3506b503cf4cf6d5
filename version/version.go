// Package version provides the snapshot version counters used by the store.
//
// Every committed mutation bumps the counter by one. Observers (the HTTP
// view, the live terminal view) compare versions to decide whether a new
// snapshot is needed.
package version

import (
	"context"
	"sync/atomic"
)

// Counter abstracts where the version lives.
// Use Local (default) for a single process, or Redis to share one version
// between processes working on the same namespace.
type Counter interface {
	// Current returns the current version; missing => 0.
	Current(ctx context.Context) (uint64, error)
	// Bump atomically increments and returns the new version.
	Bump(ctx context.Context) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}

// Local keeps the version in-process.
type Local struct {
	v atomic.Uint64
}

var _ Counter = (*Local)(nil)

// NewLocal returns a counter starting at start.
func NewLocal(start uint64) *Local {
	l := &Local{}
	l.v.Store(start)
	return l
}

func (l *Local) Current(context.Context) (uint64, error) { return l.v.Load(), nil }

func (l *Local) Bump(context.Context) (uint64, error) { return l.v.Add(1), nil }

func (l *Local) Close(context.Context) error { return nil }
