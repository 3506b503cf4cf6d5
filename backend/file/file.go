// Package file keeps a whole namespace in one framed document on disk.
// Every commit rewrites the document through an atomic rename.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/codec"
	"github.com/motti-landau/kvstore/internal/wire"
	"github.com/motti-landau/kvstore/record"
)

type Backend struct {
	path  string
	codec codec.Codec[record.Record]

	mu sync.Mutex
	// key -> encoded payload as last written; undecodable items are kept verbatim
	items map[string][]byte
}

var _ backend.Backend = (*Backend)(nil)

// Open prepares a document backend at path. A nil codec selects msgpack.
// The file is not read until ReadAll.
func Open(path string, c codec.Codec[record.Record]) (*Backend, error) {
	if path == "" {
		return nil, errors.New("file backend: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file backend: creating %q: %w", dir, err)
		}
	}
	if c == nil {
		c = codec.Msgpack[record.Record]{}
	}
	return &Backend{path: path, codec: c, items: map[string][]byte{}}, nil
}

func (b *Backend) Path() string { return b.path }

func (b *Backend) ReadAll(context.Context) ([]record.Record, error) {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		b.mu.Lock()
		b.items = map[string][]byte{}
		b.mu.Unlock()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file backend: reading %q: %w", b.path, err)
	}
	docs, err := wire.DecodeDoc(raw)
	if err != nil {
		return nil, fmt.Errorf("file backend: %q: %w", b.path, err)
	}

	items := make(map[string][]byte, len(docs))
	out := make([]record.Record, 0, len(docs))
	var skipped backend.RowErrors
	for _, it := range docs {
		items[it.Key] = it.Payload
		r, err := b.decode(it)
		if err != nil {
			skipped.Add(it.Key, err)
			continue
		}
		out = append(out, r)
	}

	b.mu.Lock()
	b.items = items
	b.mu.Unlock()
	return out, skipped.Err()
}

func (b *Backend) decode(it wire.Item) (record.Record, error) {
	r, err := b.codec.Decode(it.Payload)
	if err != nil {
		return record.Record{}, err
	}
	if r.Key == "" {
		r.Key = it.Key
	} else if r.Key != it.Key {
		return record.Record{}, fmt.Errorf("payload key %q does not match %q", r.Key, it.Key)
	}
	return r, nil
}

// Commit writes the next document and only then adopts it in memory, so a
// failed write leaves both the file and the in-memory view untouched.
func (b *Backend) Commit(_ context.Context, upserts []record.Record, deletes []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string][]byte, len(b.items)+len(upserts))
	for k, v := range b.items {
		next[k] = v
	}
	for _, r := range upserts {
		p, err := b.codec.Encode(r)
		if err != nil {
			return fmt.Errorf("file backend: encode %q: %w", r.Key, err)
		}
		next[r.Key] = p
	}
	for _, k := range deletes {
		delete(next, k)
	}

	keys := make([]string, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	docs := make([]wire.Item, 0, len(keys))
	for _, k := range keys {
		docs = append(docs, wire.Item{Key: k, Payload: next[k]})
	}
	raw, err := wire.EncodeDoc(docs)
	if err != nil {
		return fmt.Errorf("file backend: %w", err)
	}
	if err := atomic.WriteFile(b.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("file backend: writing %q: %w", b.path, err)
	}
	b.items = next
	return nil
}

func (b *Backend) Close(context.Context) error { return nil }
