// Package recent tracks the most recently accessed keys of a namespace.
//
// Accesses are appended to a small text log, one line per access:
//
//	<unix-nanos>\t<quoted key>
//
// On open the log is replayed (later lines win), and it is rewritten
// atomically once it grows past a few multiples of the capacity.
package recent

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

const (
	DefaultCapacity = 25
	compactFactor   = 4
)

// Entry is one tracked key.
type Entry struct {
	Key        string
	AccessedAt time.Time
}

type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	path     string
	capacity int
	entries  []Entry // most recent first
	lines    int     // lines currently in the log
	now      func() time.Time
}

// Open loads the log at path. An empty path gives a memory-only tracker.
// capacity <= 0 selects DefaultCapacity.
func Open(path string, capacity int, opts ...Option) (*Tracker, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	t := &Tracker{path: path, capacity: capacity, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	if path == "" {
		return t, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recent: creating log directory: %w", err)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recent: reading %q: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		t.lines++
		e, ok := parseLine(line)
		if !ok {
			continue
		}
		t.touch(e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("recent: scanning %q: %w", path, err)
	}
	if t.lines > compactFactor*t.capacity {
		if err := t.compactLocked(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parseLine(line string) (Entry, bool) {
	ts, quoted, ok := strings.Cut(line, "\t")
	if !ok {
		return Entry{}, false
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	key, err := strconv.Unquote(quoted)
	if err != nil || key == "" {
		return Entry{}, false
	}
	return Entry{Key: key, AccessedAt: time.Unix(0, nanos).UTC()}, true
}

func formatLine(e Entry) string {
	return strconv.FormatInt(e.AccessedAt.UnixNano(), 10) + "\t" + strconv.Quote(e.Key) + "\n"
}

// touch moves e to the front and trims to capacity. Caller holds mu.
func (t *Tracker) touch(e Entry) {
	for i, cur := range t.entries {
		if cur.Key == e.Key {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	t.entries = append([]Entry{e}, t.entries...)
	if len(t.entries) > t.capacity {
		t.entries = t.entries[:t.capacity]
	}
}

// RecordAccess marks key as just used. The in-memory order is always
// updated; the returned error only reports a failed log write.
func (t *Tracker) RecordAccess(key string) error {
	if key == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{Key: key, AccessedAt: t.now().UTC()}
	t.touch(e)
	if t.path == "" {
		return nil
	}

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("recent: open log: %w", err)
	}
	_, werr := f.WriteString(formatLine(e))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("recent: append: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("recent: close log: %w", cerr)
	}
	t.lines++
	if t.lines > compactFactor*t.capacity {
		return t.compactLocked()
	}
	return nil
}

// Forget drops key from the history.
func (t *Tracker) Forget(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, cur := range t.entries {
		if cur.Key == key {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			if t.path == "" {
				return nil
			}
			return t.compactLocked()
		}
	}
	return nil
}

// Recent returns up to limit keys, most recent first. limit <= 0 means all.
func (t *Tracker) Recent(limit int) []string {
	entries := t.Entries(limit)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

// Entries is Recent with access times.
func (t *Tracker) Entries(limit int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, t.entries[:n])
	return out
}

// Capacity returns the maximum number of tracked keys.
func (t *Tracker) Capacity() int { return t.capacity }

// Path returns the log location, empty for memory-only trackers.
func (t *Tracker) Path() string { return t.path }

// Close flushes nothing; every access is written when recorded.
func (t *Tracker) Close() error { return nil }

// compactLocked rewrites the log with the current entries, oldest first.
func (t *Tracker) compactLocked() error {
	var buf bytes.Buffer
	for i := len(t.entries) - 1; i >= 0; i-- {
		buf.WriteString(formatLine(t.entries[i]))
	}
	if err := atomic.WriteFile(t.path, &buf); err != nil {
		return fmt.Errorf("recent: compact: %w", err)
	}
	t.lines = len(t.entries)
	return nil
}
