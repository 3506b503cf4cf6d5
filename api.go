package kvstore

import (
	"math"
	"sort"
	"time"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/recent"
	"github.com/motti-landau/kvstore/record"
	"github.com/motti-landau/kvstore/version"
)

// Record is the stored unit; see package record.
type Record = record.Record

// Options configure a Store. Only Namespace and Backend are required.
type Options struct {
	// Required
	Namespace string
	Backend   backend.Backend

	Logger        Logger           // if nil, NopLogger is used
	Hooks         Hooks            // if nil, NopHooks is used
	SweepInterval time.Duration    // 0 => 1h; negative disables the background sweep
	Recent        *recent.Tracker  // nil => memory-only tracker with default capacity
	Versions      version.Counter  // nil => version.Local starting at 0
	SearchCache   *SearchCache     // nil => searches are not memoized
	Clock         func() time.Time // nil => time.Now
}

// PutOptions tune Put. Tags nil keeps the existing tags; a non-nil empty
// slice clears them. TTL > 0 sets the expiry to now+TTL; otherwise an
// existing expiry is kept and new records are permanent.
type PutOptions struct {
	Tags []string
	TTL  time.Duration
}

// MaxTTLMinutes is the largest minute count a time.Duration can hold.
const MaxTTLMinutes = uint64(math.MaxInt64 / int64(time.Minute))

// Minutes converts a user-supplied minute count into a TTL. Counts above
// MaxTTLMinutes are rejected under field.
func Minutes(n uint64, field string) (time.Duration, error) {
	if n > MaxTTLMinutes {
		return 0, invalid(field, "too large")
	}
	return time.Duration(n) * time.Minute, nil
}

// PutResult is the stored record and, when the key was live before, its previous state.
type PutResult struct {
	Record   Record
	Previous *Record
}

// Created reports whether Put created the key.
func (r PutResult) Created() bool { return r.Previous == nil }

// Snapshot is a consistent copy of the live records at Version.
type Snapshot struct {
	Version uint64
	Records map[string]Record
}

// Sorted returns the records in lexical key order.
func (s Snapshot) Sorted() []Record {
	out := make([]Record, 0, len(s.Records))
	for _, r := range s.Records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DocumentEntry is one record in an export document. On import, missing
// timestamps default to now (or to the existing record's creation time).
type DocumentEntry struct {
	Value     string     `json:"value" yaml:"value" cbor:"value" msgpack:"value"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty" cbor:"tags,omitempty" msgpack:"tags,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty" cbor:"created_at,omitempty" msgpack:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty" cbor:"updated_at,omitempty" msgpack:"updated_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty" cbor:"expires_at,omitempty" msgpack:"expires_at,omitempty"`
}

// Document maps keys to entries.
type Document map[string]DocumentEntry

// ImportOptions tune Import. With Replace, keys missing from the document
// are removed after the document has been applied.
type ImportOptions struct {
	Replace bool
}

// ImportResult counts what Import did.
type ImportResult struct {
	Created int
	Updated int
	Removed int
}
