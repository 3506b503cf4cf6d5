// Package redis stores a namespace as one Redis hash so several processes
// (a CLI and a long-running server) can share it.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/codec"
	"github.com/motti-landau/kvstore/record"
)

var ErrNilClient = errors.New("redis backend: nil client")

// DefaultMaxPayload caps a single decoded value read from the hash.
const DefaultMaxPayload = 4 << 20

type Backend struct {
	rdb         goredis.UniversalClient
	closeClient bool
	hash        string
	codec       codec.Codec[record.Record]
}

var _ backend.Backend = (*Backend)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this backend exclusively owns the client
	Namespace   string
	// Codec encodes record payloads; nil selects msgpack.
	Codec codec.Codec[record.Record]
	// MaxPayload bounds decoded payloads; 0 selects DefaultMaxPayload, negative disables.
	MaxPayload int
}

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if err := record.ValidateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}
	c := cfg.Codec
	if c == nil {
		c = codec.Msgpack[record.Record]{}
	}
	limit := cfg.MaxPayload
	if limit == 0 {
		limit = DefaultMaxPayload
	}
	return &Backend{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		hash:        HashKey(cfg.Namespace),
		codec:       codec.Limit[record.Record]{Inner: c, MaxDecode: limit},
	}, nil
}

// HashKey is the Redis key holding the namespace's records.
func HashKey(namespace string) string { return "kv:" + namespace }

func (b *Backend) ReadAll(ctx context.Context) ([]record.Record, error) {
	fields, err := b.rdb.HGetAll(ctx, b.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: HGETALL %s: %w", b.hash, err)
	}
	out := make([]record.Record, 0, len(fields))
	var skipped backend.RowErrors
	for key, raw := range fields {
		r, err := backend.DecodePayload(b.codec, key, []byte(raw))
		if err != nil {
			skipped.Add(key, err)
			continue
		}
		out = append(out, r)
	}
	return out, skipped.Err()
}

// Commit applies the batch inside MULTI/EXEC.
func (b *Backend) Commit(ctx context.Context, upserts []record.Record, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	values := make([]any, 0, 2*len(upserts))
	for _, r := range upserts {
		p, err := backend.EncodePayload(b.codec, r)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		values = append(values, r.Key, p)
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(values) > 0 {
			pipe.HSet(ctx, b.hash, values...)
		}
		if len(deletes) > 0 {
			pipe.HDel(ctx, b.hash, deletes...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: commit: %w", err)
	}
	return nil
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (b *Backend) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
