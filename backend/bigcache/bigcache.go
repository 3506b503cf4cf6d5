// Package bigcache is an in-memory backend for scratch namespaces and
// tests. Nothing survives the process.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/codec"
	"github.com/motti-landau/kvstore/record"
)

// entries never age out; record expiry is handled by the store
const lifeWindow = 100 * 365 * 24 * time.Hour

type Backend struct {
	mu    sync.Mutex
	c     *bc.BigCache
	codec codec.Codec[record.Record]
}

var _ backend.Backend = (*Backend)(nil)

type Config struct {
	Shards             int
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited. When full, bigcache drops the oldest entries.
	Codec              codec.Codec[record.Record]
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	conf := bc.DefaultConfig(lifeWindow)
	conf.CleanWindow = 0
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	cd := cfg.Codec
	if cd == nil {
		cd = codec.Msgpack[record.Record]{}
	}
	return &Backend{c: c, codec: cd}, nil
}

func (b *Backend) ReadAll(context.Context) ([]record.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]record.Record, 0, b.c.Len())
	var skipped backend.RowErrors
	it := b.c.Iterator()
	for it.SetNext() {
		entry, err := it.Value()
		if err != nil {
			return nil, fmt.Errorf("bigcache: iterate: %w", err)
		}
		r, err := backend.DecodePayload(b.codec, entry.Key(), entry.Value())
		if err != nil {
			skipped.Add(entry.Key(), err)
			continue
		}
		out = append(out, r)
	}
	return out, skipped.Err()
}

type undo struct {
	key     string
	prev    []byte
	existed bool
}

// Commit encodes the whole batch before touching the cache and rolls back
// already applied entries if a write fails.
func (b *Backend) Commit(_ context.Context, upserts []record.Record, deletes []string) error {
	encoded := make([][]byte, len(upserts))
	for i, r := range upserts {
		p, err := backend.EncodePayload(b.codec, r)
		if err != nil {
			return fmt.Errorf("bigcache: %w", err)
		}
		encoded[i] = p
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var applied []undo
	remember := func(key string) {
		prev, err := b.c.Get(key)
		applied = append(applied, undo{key: key, prev: prev, existed: err == nil})
	}
	rollback := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			u := applied[i]
			if u.existed {
				_ = b.c.Set(u.key, u.prev)
			} else {
				_ = b.c.Delete(u.key)
			}
		}
	}

	for i, r := range upserts {
		remember(r.Key)
		if err := b.c.Set(r.Key, encoded[i]); err != nil {
			rollback()
			return fmt.Errorf("bigcache: set %q: %w", r.Key, err)
		}
	}
	for _, key := range deletes {
		remember(key)
		if err := b.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			rollback()
			return fmt.Errorf("bigcache: delete %q: %w", key, err)
		}
	}
	return nil
}

func (b *Backend) Close(context.Context) error {
	return b.c.Close()
}
