// Package asynchook moves hook delivery off the mutation section.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{ExpiredEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := kvstore.Open(ctx, kvstore.Options{
//	    Namespace: "work",
//	    Backend:   be,
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/motti-landau/kvstore"
)

type Hooks struct {
	inner   kvstore.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ kvstore.Hooks = (*Hooks)(nil)

func New(inner kvstore.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Expired(k string)                { h.try(func() { h.inner.Expired(k) }) }
func (h *Hooks) VersionBumpError(err error)      { h.try(func() { h.inner.VersionBumpError(err) }) }
func (h *Hooks) RowSkipped(k string, err error)  { h.try(func() { h.inner.RowSkipped(k, err) }) }
func (h *Hooks) SweepFailed(k string, err error) { h.try(func() { h.inner.SweepFailed(k, err) }) }
func (h *Hooks) CommitFailed(op string, keys []string, err error) {
	keys = append([]string(nil), keys...)
	h.try(func() { h.inner.CommitFailed(op, keys, err) })
}
func (h *Hooks) RecentPersistFailed(k string, err error) {
	h.try(func() { h.inner.RecentPersistFailed(k, err) })
}
