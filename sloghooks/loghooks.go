// Package sloghooks reports store events through log/slog, with sampling
// for the noisy ones and key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/motti-landau/kvstore"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ExpiredEvery    uint64
	RowSkippedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix; use Plain to log keys as-is.
	Redact func(string) string
}

// Plain is a Redact function that leaves keys untouched.
func Plain(k string) string { return k }

type Hooks struct {
	l    *slog.Logger
	opts Options

	expiredCtr atomic.Uint64
	skippedCtr atomic.Uint64
}

var _ kvstore.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RowSkipped(key string, err error) {
	if h.l == nil || !sample(h.opts.RowSkippedEvery, &h.skippedCtr) {
		return
	}
	h.l.Warn("kvstore.row_skipped",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) Expired(key string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("kvstore.expired",
		"key", h.redact(key))
}

func (h *Hooks) SweepFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("kvstore.sweep_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) CommitFailed(op string, keys []string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("kvstore.commit_failed",
		"op", op,
		"keys", len(keys),
		"err", err)
}

func (h *Hooks) VersionBumpError(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("kvstore.version_bump_error",
		"err", err)
}

func (h *Hooks) RecentPersistFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("kvstore.recent_persist_failed",
		"key", h.redact(key),
		"err", err)
}
