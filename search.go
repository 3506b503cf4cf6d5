package kvstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/motti-landau/kvstore/internal/fuzzy"
	"github.com/motti-landau/kvstore/internal/util"
)

// Target selects what Search matches against.
type Target int

const (
	TargetBoth Target = iota
	TargetKeys
	TargetTags
)

func (t Target) String() string {
	switch t {
	case TargetKeys:
		return "keys"
	case TargetTags:
		return "tags"
	default:
		return "both"
	}
}

// ParseTarget accepts "keys", "tags", "both" and "all" (an alias of both).
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both", "all":
		return TargetBoth, nil
	case "keys", "key":
		return TargetKeys, nil
	case "tags", "tag":
		return TargetTags, nil
	default:
		return TargetBoth, invalid("target", fmt.Sprintf("%q: want keys, tags or both", s))
	}
}

// Match is one ranked search result. Matched lists the strings of the
// record (its key and/or tags) that matched, best first.
type Match struct {
	Key     string
	Record  Record
	Score   int64
	Matched []string
}

// Tier returns the match class of the best matched string.
func (m Match) Tier() fuzzy.Tier { return fuzzy.TierOf(m.Score) }

// SearchCache memoizes ranked search results. Entries are keyed by the
// store version, so any mutation makes them unreachable.
type SearchCache struct {
	c *ristretto.Cache
}

// NewSearchCache holds up to maxEntries ranked result lists.
func NewSearchCache(maxEntries int64) (*SearchCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &SearchCache{c: c}, nil
}

type searchHit struct {
	key     string
	score   int64
	matched []string
}

func (c *SearchCache) get(key string) ([]searchHit, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false
	}
	hits, ok := v.([]searchHit)
	if !ok {
		c.c.Del(key)
		return nil, false
	}
	return hits, true
}

func (c *SearchCache) set(key string, hits []searchHit) {
	if c == nil {
		return
	}
	c.c.Set(key, hits, 1)
}

// Close releases the cache. Safe on nil.
func (c *SearchCache) Close() {
	if c == nil {
		return
	}
	c.c.Close()
}

// Search ranks live records against query. Only memory is read, so it is
// cheap enough to run on every keystroke. An empty query or a non-positive
// limit yields no results.
func (s *Store) Search(query string, target Target, limit int) []Match {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil
	}
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	memoKey := util.SearchKey(s.ns, s.version, target.String(), limit, query)
	if hits, ok := s.search.get(memoKey); ok {
		if out, ok := s.materialize(hits, now); ok {
			return out
		}
	}

	var hits []searchHit
	for _, k := range s.keys {
		r := s.records[k]
		if r.Expired(now) {
			continue
		}
		if h, ok := scoreRecord(r, query, target); ok {
			hits = append(hits, h)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.matched[0] != b.matched[0] {
			return a.matched[0] < b.matched[0]
		}
		return a.key < b.key
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	s.search.set(memoKey, hits)

	out, _ := s.materialize(hits, now)
	return out
}

// materialize resolves hits against the current records. It fails when a
// hit is no longer live, which can happen to memoized hits after an expiry.
// Caller holds mu.
func (s *Store) materialize(hits []searchHit, now time.Time) ([]Match, bool) {
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		r, ok := s.live(h.key, now)
		if !ok {
			return nil, false
		}
		out = append(out, Match{
			Key:     h.key,
			Record:  r.Clone(),
			Score:   h.score,
			Matched: append([]string(nil), h.matched...),
		})
	}
	return out, true
}

func scoreRecord(r Record, query string, target Target) (searchHit, bool) {
	type cand struct {
		s     string
		score int64
	}
	var cands []cand
	try := func(str string) {
		if sc, ok := fuzzy.Score(str, query); ok {
			cands = append(cands, cand{str, sc})
		}
	}
	if target != TargetTags {
		try(r.Key)
	}
	if target != TargetKeys {
		for _, t := range r.Tags {
			try(t)
		}
	}
	if len(cands) == 0 {
		return searchHit{}, false
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].s < cands[j].s
	})
	h := searchHit{key: r.Key, score: cands[0].score, matched: make([]string, 0, len(cands))}
	for _, c := range cands {
		h.matched = append(h.matched, c.s)
	}
	return h, true
}
