package kvstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/recent"
	"github.com/motti-landau/kvstore/record"
	"github.com/motti-landau/kvstore/version"
)

// Store is the cache and mutation coordinator for one namespace.
// Reads are served from memory and never touch the backend.
type Store struct {
	ns       string
	backend  backend.Backend
	log      Logger
	hooks    Hooks
	recent   *recent.Tracker
	versions version.Counter
	search   *SearchCache
	now      func() time.Time

	sweepInterval time.Duration

	// writeMu is the mutation section: backend commit, version bump and
	// cache swap happen while it is held.
	writeMu sync.Mutex

	// mu guards records, keys and version. Its write lock is only taken
	// for the swap at the end of a mutation.
	mu      sync.RWMutex
	records map[string]Record
	keys    []string // sorted
	version uint64

	closed atomic.Bool

	// background sweep
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

// Open loads the namespace from opts.Backend and starts the sweep loop.
// Malformed backend rows are skipped; a backend that cannot be read at
// all yields a *LoadError.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if err := record.ValidateNamespace(opts.Namespace); err != nil {
		return nil, err
	}
	if opts.Backend == nil {
		return nil, errors.New("kvstore: backend is required")
	}

	s := &Store{
		ns:      opts.Namespace,
		backend: opts.Backend,
		search:  opts.SearchCache,
		records: make(map[string]Record),
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.sweepInterval = coalesce[time.Duration](opts.SweepInterval, defaultSweep)

	if opts.Clock != nil {
		s.now = opts.Clock
	} else {
		s.now = time.Now
	}
	if opts.Versions != nil {
		s.versions = opts.Versions
	} else {
		s.versions = version.NewLocal(0)
	}
	if opts.Recent != nil {
		s.recent = opts.Recent
	} else {
		// memory-only trackers cannot fail to open
		s.recent, _ = recent.Open("", recent.DefaultCapacity)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}

	if s.sweepInterval > 0 {
		s.ticker = time.NewTicker(s.sweepInterval)
		s.stopCh = make(chan struct{})
		s.closeWg.Add(1)
		go s.sweepLoop()
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	recs, err := s.backend.ReadAll(ctx)
	rows, fatal := backend.SplitReadErr(err)
	if fatal != nil {
		return &LoadError{Namespace: s.ns, Err: fatal}
	}
	if rows != nil {
		for _, row := range rows.Rows {
			s.hooks.RowSkipped(row.Key, row.Err)
			s.log.Warn("skipping malformed row", Fields{"ns": s.ns, "key": row.Key, "err": row.Err})
		}
	}

	for _, r := range recs {
		if err := record.ValidateKey(r.Key); err != nil {
			s.hooks.RowSkipped(r.Key, err)
			s.log.Warn("skipping row with invalid key", Fields{"ns": s.ns, "err": err})
			continue
		}
		r.Tags = record.NormalizeTags(r.Tags)
		r.CreatedAt = r.CreatedAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		if r.ExpiresAt != nil {
			exp := r.ExpiresAt.UTC()
			r.ExpiresAt = &exp
		}
		s.records[r.Key] = r
	}
	s.keys = make([]string, 0, len(s.records))
	for k := range s.records {
		s.keys = append(s.keys, k)
	}
	sort.Strings(s.keys)

	v, err := s.versions.Current(ctx)
	if err != nil {
		s.hooks.VersionBumpError(err)
		s.log.Warn("reading version failed; starting at 0", Fields{"ns": s.ns, "err": err})
		v = 0
	}
	s.version = v

	s.log.Info("namespace loaded", Fields{"ns": s.ns, "records": len(s.records), "version": v})
	return nil
}

// Namespace returns the namespace served by s.
func (s *Store) Namespace() string { return s.ns }

// Close stops the sweep loop and releases the recent tracker, the version
// counter, the search cache and the backend. Safe to call more than once.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.closeWg.Wait()
			if s.ticker != nil {
				s.ticker.Stop()
			}
		}
		// wait out an in-flight mutation
		s.writeMu.Lock()
		s.closed.Store(true)
		s.writeMu.Unlock()

		err = errors.Join(
			s.recent.Close(),
			s.versions.Close(ctx),
			s.backend.Close(ctx),
		)
		s.search.Close()
	})
	return err
}

// Get returns the live record for key. Expired records are evicted and
// reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Record, error) {
	if err := record.ValidateKey(key); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	r, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return Record{}, notFound(key)
	}
	if r.Expired(s.now()) {
		if _, err := s.evict(ctx, key); err != nil {
			s.log.Warn("lazy eviction failed", Fields{"ns": s.ns, "key": key, "err": err})
		}
		return Record{}, notFound(key)
	}
	s.touch(key)
	return r.Clone(), nil
}

// List returns the live records in key order. Expired records it meets are evicted.
func (s *Store) List(ctx context.Context) []Record {
	now := s.now()
	var expired []string

	s.mu.RLock()
	out := make([]Record, 0, len(s.keys))
	for _, k := range s.keys {
		r := s.records[k]
		if r.Expired(now) {
			expired = append(expired, k)
			continue
		}
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	for _, k := range expired {
		if _, err := s.evict(ctx, k); err != nil {
			s.log.Warn("lazy eviction failed", Fields{"ns": s.ns, "key": k, "err": err})
		}
	}
	return out
}

// Keys returns the live keys in lexical order.
func (s *Store) Keys() []string {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		if !s.records[k].Expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the number of live records.
func (s *Store) Len() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if !r.Expired(now) {
			n++
		}
	}
	return n
}

// Version returns the current snapshot version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot copies the live records together with the version they belong to.
func (s *Store) Snapshot() Snapshot {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Version: s.version, Records: make(map[string]Record, len(s.records))}
	for k, r := range s.records {
		if !r.Expired(now) {
			out.Records[k] = r.Clone()
		}
	}
	return out
}

// Poll returns a fresh snapshot when the version moved past since.
// When nothing changed it returns (Snapshot{Version: since}, false).
func (s *Store) Poll(since uint64) (Snapshot, bool) {
	if s.Version() == since {
		return Snapshot{Version: since}, false
	}
	snap := s.Snapshot()
	return snap, snap.Version != since
}

// Recent returns up to limit recently accessed keys that are still live,
// most recent first. limit <= 0 returns all of them.
func (s *Store) Recent(limit int) []recent.Entry {
	entries := s.recent.Entries(0)
	now := s.now()

	s.mu.RLock()
	out := entries[:0]
	for _, e := range entries {
		if _, ok := s.live(e.Key, now); ok {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) touch(key string) {
	if err := s.recent.RecordAccess(key); err != nil {
		s.recentFailed(key, err)
	}
}

func (s *Store) recentFailed(key string, err error) {
	s.hooks.RecentPersistFailed(key, err)
	s.log.Warn("recent history not persisted", Fields{"ns": s.ns, "key": key, "err": err})
}

// evict removes key if it is still expired once the write section is held.
func (s *Store) evict(ctx context.Context, key string) (bool, error) {
	evicted := false
	_, err := s.mutate(ctx, func(now time.Time) (mutation, error) {
		r, ok := s.records[key]
		if !ok || !r.Expired(now) {
			return mutation{}, nil
		}
		evicted = true
		return mutation{op: "evict", deletes: []string{key}}, nil
	})
	if err != nil {
		return false, err
	}
	if evicted {
		s.hooks.Expired(key)
	}
	return evicted, nil
}

// Sweep evicts every expired record, one mutation (and one version bump)
// per record. Failed evictions are reported and left for the next pass.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	var expired []string
	s.mu.RLock()
	for _, k := range s.keys {
		if s.records[k].Expired(now) {
			expired = append(expired, k)
		}
	}
	s.mu.RUnlock()

	var (
		n    int
		errs []error
	)
	for _, k := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := s.evict(ctx, k)
		if err != nil {
			s.hooks.SweepFailed(k, err)
			s.log.Warn("sweep eviction failed; retrying next cycle", Fields{"ns": s.ns, "key": k, "err": err})
			errs = append(errs, err)
			continue
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.log.Debug("sweep evicted expired records", Fields{"ns": s.ns, "count": n})
	}
	return n, errors.Join(errs...)
}

func (s *Store) sweepLoop() {
	defer s.closeWg.Done()
	for {
		select {
		case <-s.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.sweepInterval)
			_, _ = s.Sweep(ctx)
			cancel()
		case <-s.stopCh:
			return
		}
	}
}
