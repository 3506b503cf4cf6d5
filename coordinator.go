package kvstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/motti-landau/kvstore/record"
)

// mutation is one all-or-nothing change: the backend commit and the cache
// swap cover exactly these upserts and deletes.
type mutation struct {
	op      string
	upserts []Record
	deletes []string
}

func (m mutation) empty() bool { return len(m.upserts) == 0 && len(m.deletes) == 0 }

func (m mutation) keys() []string {
	out := make([]string, 0, len(m.upserts)+len(m.deletes))
	for _, r := range m.upserts {
		out = append(out, r.Key)
	}
	return append(out, m.deletes...)
}

// mutate runs plan inside the write section and applies what it returns:
// backend commit, then version bump, then cache swap. plan may read
// s.records directly (the section excludes every other writer) but must
// not modify it. An empty mutation commits nothing and keeps the version.
func (s *Store) mutate(ctx context.Context, plan func(now time.Time) (mutation, error)) (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return 0, ErrClosed
	}

	m, err := plan(s.now())
	if err != nil {
		return 0, err
	}
	if m.empty() {
		return s.version, nil
	}

	if err := s.backend.Commit(ctx, m.upserts, m.deletes); err != nil {
		keys := m.keys()
		s.hooks.CommitFailed(m.op, keys, err)
		s.log.Warn("backend commit failed", Fields{"ns": s.ns, "op": m.op, "keys": keys, "err": err})
		return 0, &BackendWriteError{Op: m.op, Keys: keys, Err: err}
	}

	next := s.nextVersion(ctx)

	s.mu.Lock()
	for _, r := range m.upserts {
		s.setLocked(r)
	}
	for _, k := range m.deletes {
		s.deleteLocked(k)
	}
	s.version = next
	s.mu.Unlock()

	for _, k := range m.deletes {
		if err := s.recent.Forget(k); err != nil {
			s.recentFailed(k, err)
		}
	}
	s.log.Debug("mutation committed", Fields{"ns": s.ns, "op": m.op, "version": next,
		"upserts": len(m.upserts), "deletes": len(m.deletes)})
	return next, nil
}

// nextVersion bumps the counter. A failing or regressing counter must not
// stall writes, so the store falls back to its own version plus one.
func (s *Store) nextVersion(ctx context.Context) uint64 {
	cur := s.version
	v, err := s.versions.Bump(ctx)
	if err == nil && v <= cur {
		err = fmt.Errorf("version counter went backwards: %d after %d", v, cur)
	}
	if err != nil {
		s.hooks.VersionBumpError(err)
		s.log.Warn("version bump failed; using local version", Fields{"ns": s.ns, "err": err, "version": cur + 1})
		return cur + 1
	}
	return v
}

func (s *Store) setLocked(r Record) {
	if _, ok := s.records[r.Key]; !ok {
		i := sort.SearchStrings(s.keys, r.Key)
		s.keys = append(s.keys, "")
		copy(s.keys[i+1:], s.keys[i:])
		s.keys[i] = r.Key
	}
	s.records[r.Key] = r
}

func (s *Store) deleteLocked(key string) {
	if _, ok := s.records[key]; !ok {
		return
	}
	delete(s.records, key)
	i := sort.SearchStrings(s.keys, key)
	if i < len(s.keys) && s.keys[i] == key {
		s.keys = append(s.keys[:i], s.keys[i+1:]...)
	}
}

// live returns the record for key if it exists and has not expired.
// Callers hold mu or the write section.
func (s *Store) live(key string, now time.Time) (Record, bool) {
	r, ok := s.records[key]
	if !ok || r.Expired(now) {
		return Record{}, false
	}
	return r, true
}

// update rewrites one live record. change reports whether anything changed;
// unchanged records are not committed.
func (s *Store) update(ctx context.Context, op, key string, change func(r *Record, now time.Time) (bool, error)) (Record, bool, error) {
	if err := record.ValidateKey(key); err != nil {
		return Record{}, false, err
	}
	var (
		out     Record
		changed bool
	)
	_, err := s.mutate(ctx, func(now time.Time) (mutation, error) {
		cur, ok := s.live(key, now)
		if !ok {
			return mutation{}, notFound(key)
		}
		next := cur.Clone()
		c, err := change(&next, now)
		if err != nil {
			return mutation{}, err
		}
		if !c {
			out = cur.Clone()
			return mutation{}, nil
		}
		next.UpdatedAt = now
		if err := next.Validate(); err != nil {
			return mutation{}, err
		}
		out, changed = next.Clone(), true
		return mutation{op: op, upserts: []Record{next}}, nil
	})
	if err != nil {
		return Record{}, false, err
	}
	return out, changed, nil
}
