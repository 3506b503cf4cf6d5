package kvstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/motti-landau/kvstore/record"
)

// Put creates or updates key. See PutOptions for how tags and expiry carry
// over from the existing record. An expired record counts as absent.
func (s *Store) Put(ctx context.Context, key, value string, opts PutOptions) (PutResult, error) {
	if err := record.ValidateKey(key); err != nil {
		return PutResult{}, err
	}
	if opts.TTL < 0 {
		return PutResult{}, invalid("ttl", "must be positive")
	}

	var res PutResult
	_, err := s.mutate(ctx, func(now time.Time) (mutation, error) {
		prev, exists := s.live(key, now)
		next := Record{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}

		switch {
		case opts.Tags != nil:
			next.Tags = record.NormalizeTags(opts.Tags)
		case exists:
			next.Tags = record.NormalizeTags(prev.Tags)
		default:
			next.Tags = []string{}
		}
		if exists {
			next.CreatedAt = prev.CreatedAt
			if prev.ExpiresAt != nil {
				exp := *prev.ExpiresAt
				next.ExpiresAt = &exp
			}
		}
		if opts.TTL > 0 {
			exp := now.Add(opts.TTL)
			next.ExpiresAt = &exp
		}
		if err := next.Validate(); err != nil {
			return mutation{}, err
		}

		res.Record = next.Clone()
		if exists {
			p := prev.Clone()
			res.Previous = &p
		}
		return mutation{op: "put", upserts: []Record{next}}, nil
	})
	if err != nil {
		return PutResult{}, err
	}
	s.touch(key)
	return res, nil
}

// Remove deletes key and returns the record it held.
func (s *Store) Remove(ctx context.Context, key string) (Record, error) {
	if err := record.ValidateKey(key); err != nil {
		return Record{}, err
	}
	var (
		removed Record
		expired bool
	)
	_, err := s.mutate(ctx, func(now time.Time) (mutation, error) {
		r, ok := s.records[key]
		if !ok {
			return mutation{}, notFound(key)
		}
		if r.Expired(now) {
			expired = true
			return mutation{op: "evict", deletes: []string{key}}, nil
		}
		removed = r.Clone()
		return mutation{op: "remove", deletes: []string{key}}, nil
	})
	if err != nil {
		return Record{}, err
	}
	if expired {
		s.hooks.Expired(key)
		return Record{}, notFound(key)
	}
	return removed, nil
}

// AddTag adds tag to key. It reports false when the tag was already present.
func (s *Store) AddTag(ctx context.Context, key, tag string) (Record, bool, error) {
	t := record.NormalizeTag(tag)
	if t == "" {
		return Record{}, false, invalid("tag", "cannot be empty")
	}
	return s.update(ctx, "tag", key, func(r *Record, _ time.Time) (bool, error) {
		if r.HasTag(t) {
			return false, nil
		}
		r.Tags = record.NormalizeTags(append(r.Tags, t))
		return true, nil
	})
}

// RemoveTag removes tag from key; a tag the record does not carry is ErrNotFound.
func (s *Store) RemoveTag(ctx context.Context, key, tag string) (Record, error) {
	t := record.NormalizeTag(tag)
	if t == "" {
		return Record{}, invalid("tag", "cannot be empty")
	}
	r, _, err := s.update(ctx, "tag", key, func(r *Record, _ time.Time) (bool, error) {
		if !r.HasTag(t) {
			return false, notFound(fmt.Sprintf("tag %q on %q", t, key))
		}
		r.Tags = without(r.Tags, t)
		return true, nil
	})
	return r, err
}

// ExtendTTL pushes the expiry of key by d, counting from the current
// expiry or from now, whichever is later. Permanent records gain an expiry.
func (s *Store) ExtendTTL(ctx context.Context, key string, d time.Duration) (Record, error) {
	if d <= 0 {
		return Record{}, invalid("ttl", "must be greater than 0")
	}
	r, _, err := s.update(ctx, "ttl", key, func(r *Record, now time.Time) (bool, error) {
		base := now
		if r.ExpiresAt != nil && r.ExpiresAt.After(now) {
			base = *r.ExpiresAt
		}
		exp := base.Add(d)
		r.ExpiresAt = &exp
		return true, nil
	})
	return r, err
}

// RenameTag replaces from with to on every live record carrying from, in
// one mutation. It returns the number of records changed.
func (s *Store) RenameTag(ctx context.Context, from, to string) (int, error) {
	f, t := record.NormalizeTag(from), record.NormalizeTag(to)
	switch {
	case f == "":
		return 0, invalid("from", "cannot be empty")
	case t == "":
		return 0, invalid("to", "cannot be empty")
	case f == t:
		return 0, invalid("to", "must differ from 'from'")
	}
	return s.retag(ctx, f, func(tags []string) []string {
		return record.NormalizeTags(append(without(tags, f), t))
	})
}

// DeleteTag removes tag from every live record, in one mutation.
func (s *Store) DeleteTag(ctx context.Context, tag string) (int, error) {
	t := record.NormalizeTag(tag)
	if t == "" {
		return 0, invalid("tag", "cannot be empty")
	}
	return s.retag(ctx, t, func(tags []string) []string { return without(tags, t) })
}

func (s *Store) retag(ctx context.Context, tag string, rewrite func([]string) []string) (int, error) {
	n := 0
	_, err := s.mutate(ctx, func(now time.Time) (mutation, error) {
		m := mutation{op: "tag"}
		for _, k := range s.keys {
			r, ok := s.live(k, now)
			if !ok || !r.HasTag(tag) {
				continue
			}
			next := r.Clone()
			next.Tags = rewrite(next.Tags)
			next.UpdatedAt = now
			m.upserts = append(m.upserts, next)
		}
		if len(m.upserts) == 0 {
			return mutation{}, notFound(fmt.Sprintf("tag %q", tag))
		}
		n = len(m.upserts)
		return m, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func without(tags []string, tag string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

// Export returns the live records as a document.
func (s *Store) Export() Document {
	snap := s.Snapshot()
	doc := make(Document, len(snap.Records))
	for k, r := range snap.Records {
		created, updated := r.CreatedAt, r.UpdatedAt
		doc[k] = DocumentEntry{
			Value:     r.Value,
			Tags:      r.Tags,
			CreatedAt: &created,
			UpdatedAt: &updated,
			ExpiresAt: r.ExpiresAt,
		}
	}
	return doc
}

// Import upserts every document entry, each as its own mutation, in key
// order. The whole document is validated first so a bad entry rejects the
// import before anything is written. With opts.Replace the keys absent
// from the document are removed in one final mutation.
func (s *Store) Import(ctx context.Context, doc Document, opts ImportOptions) (ImportResult, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.now()
	for _, k := range keys {
		var prev *Record
		s.mu.RLock()
		if r, ok := s.live(k, now); ok {
			prev = &r
		}
		s.mu.RUnlock()
		if err := importedRecord(k, doc[k], prev, now).Validate(); err != nil {
			return ImportResult{}, fmt.Errorf("import %q: %w", k, err)
		}
	}

	var res ImportResult
	for _, k := range keys {
		created := false
		_, err := s.mutate(ctx, func(now time.Time) (mutation, error) {
			var prev *Record
			if r, ok := s.live(k, now); ok {
				prev = &r
			}
			next := importedRecord(k, doc[k], prev, now)
			if err := next.Validate(); err != nil {
				return mutation{}, err
			}
			created = prev == nil
			return mutation{op: "import", upserts: []Record{next}}, nil
		})
		if err != nil {
			return res, fmt.Errorf("import %q: %w", k, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	if opts.Replace {
		_, err := s.mutate(ctx, func(time.Time) (mutation, error) {
			m := mutation{op: "import"}
			for _, k := range s.keys {
				if _, ok := doc[k]; !ok {
					m.deletes = append(m.deletes, k)
				}
			}
			res.Removed = len(m.deletes)
			return m, nil
		})
		if err != nil {
			res.Removed = 0
			return res, err
		}
	}

	s.log.Info("import applied", Fields{"ns": s.ns, "created": res.Created, "updated": res.Updated, "removed": res.Removed})
	return res, nil
}

func importedRecord(key string, e DocumentEntry, prev *Record, now time.Time) Record {
	r := Record{
		Key:       key,
		Value:     e.Value,
		Tags:      record.NormalizeTags(e.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev != nil {
		r.CreatedAt = prev.CreatedAt
	}
	if e.CreatedAt != nil {
		r.CreatedAt = e.CreatedAt.UTC()
	}
	if e.UpdatedAt != nil {
		r.UpdatedAt = e.UpdatedAt.UTC()
	}
	if e.ExpiresAt != nil {
		exp := e.ExpiresAt.UTC()
		r.ExpiresAt = &exp
	}
	return r
}
