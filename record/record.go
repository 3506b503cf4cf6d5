// Package record defines the unit stored by kvstore: a keyed note with tags
// and an optional expiry, plus the normalization and validation rules every
// component applies before a record reaches a backend or the cache.
package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalid is matched by every *Invalid error via errors.Is.
var ErrInvalid = errors.New("invalid input")

// Invalid describes a rejected field before any mutation was attempted.
type Invalid struct {
	Field  string
	Reason string
}

func (e *Invalid) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *Invalid) Is(target error) bool { return target == ErrInvalid }

// Record is one stored note. Tags are always normalized (see NormalizeTags).
// ExpiresAt nil means the record never expires.
type Record struct {
	Key       string     `json:"key" msgpack:"key" cbor:"key" yaml:"key"`
	Value     string     `json:"value" msgpack:"value" cbor:"value" yaml:"value"`
	Tags      []string   `json:"tags" msgpack:"tags" cbor:"tags" yaml:"tags"`
	CreatedAt time.Time  `json:"created_at" msgpack:"created_at" cbor:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" msgpack:"updated_at" cbor:"updated_at" yaml:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" msgpack:"expires_at,omitempty" cbor:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Expired reports whether r is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Clone returns a deep copy so callers can never alias cache-owned slices.
func (r Record) Clone() Record {
	out := r
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

// HasTag reports whether the normalized tag is present.
func (r Record) HasTag(tag string) bool {
	i := sort.SearchStrings(r.Tags, tag)
	return i < len(r.Tags) && r.Tags[i] == tag
}

// TTLRemaining returns the time left before expiry, and false for permanent records.
func (r Record) TTLRemaining(now time.Time) (time.Duration, bool) {
	if r.ExpiresAt == nil {
		return 0, false
	}
	return r.ExpiresAt.Sub(now), true
}

// Summary renders "key = value [tags: a, b]".
func (r Record) Summary() string {
	if len(r.Tags) == 0 {
		return fmt.Sprintf("%s = %s", r.Key, r.Value)
	}
	return fmt.Sprintf("%s = %s [tags: %s]", r.Key, r.Value, strings.Join(r.Tags, ", "))
}

// NormalizeTag trims and lower-cases a single tag.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags lower-cases, trims, drops empties, dedupes and sorts.
// The result is never nil so an explicit empty tag set stays distinguishable
// from "tags omitted" at call sites.
func NormalizeTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		n := NormalizeTag(t)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ValidateKey rejects empty or whitespace-only keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return &Invalid{Field: "key", Reason: "cannot be empty"}
	}
	return nil
}

// ValidateNamespace accepts letters, digits, '_', '-' and '.', and rejects "." and "..".
func ValidateNamespace(ns string) error {
	if ns == "" {
		return &Invalid{Field: "namespace", Reason: "cannot be empty"}
	}
	if ns == "." || ns == ".." {
		return &Invalid{Field: "namespace", Reason: fmt.Sprintf("%q is not allowed", ns)}
	}
	for _, ch := range ns {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '_' || ch == '-' || ch == '.':
		default:
			return &Invalid{
				Field:  "namespace",
				Reason: fmt.Sprintf("%q: use letters, numbers, '_', '-', or '.'", ns),
			}
		}
	}
	return nil
}

// Validate checks the write-time invariants of a fully built record.
func (r Record) Validate() error {
	if err := ValidateKey(r.Key); err != nil {
		return err
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(r.CreatedAt) {
		return &Invalid{Field: "expires_at", Reason: "must be after created_at"}
	}
	return nil
}
