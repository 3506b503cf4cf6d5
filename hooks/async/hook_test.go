package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/motti-landau/kvstore"
)

type recorder struct {
	kvstore.NopHooks
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (r *recorder) Expired(k string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.events = append(r.events, "expired:"+k)
	r.mu.Unlock()
}

func (r *recorder) CommitFailed(op string, keys []string, _ error) {
	r.mu.Lock()
	r.events = append(r.events, "commit:"+op+":"+keys[0])
	r.mu.Unlock()
}

func TestDeliversAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 1, 8)
	h.Expired("a")
	keys := []string{"b"}
	h.CommitFailed("put", keys, errors.New("x"))
	keys[0] = "mutated"
	h.Close()

	if len(rec.events) != 2 || rec.events[1] != "commit:put:b" {
		t.Fatalf("events: %v", rec.events)
	}
	h.Expired("late")
	if h.Dropped() != 1 {
		t.Fatalf("event after close should be dropped, dropped=%d", h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	h := New(rec, 1, 1)
	for i := 0; i < 10; i++ {
		h.Expired("k")
	}
	close(rec.block)
	h.Close()
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked worker and queue of 1")
	}
}
