package version

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis shares the version across processes and survives restarts.
// The key never expires: a version must not move backwards.
type Redis struct {
	rdb         redis.UniversalClient
	key         string
	closeClient bool
}

var _ Counter = (*Redis)(nil)

// NewRedis creates a Redis-backed counter for namespace. When closeClient is
// true, Close also closes client.
func NewRedis(client redis.UniversalClient, namespace string, closeClient bool) *Redis {
	return &Redis{rdb: client, key: Key(namespace), closeClient: closeClient}
}

// Key is the Redis key holding namespace's version.
func Key(namespace string) string { return "ver:" + namespace }

// Current returns the stored version. A missing key is version 0.
func (r *Redis) Current(ctx context.Context) (uint64, error) {
	res, err := r.rdb.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis version parse: %w", err)
	}
	return u, nil
}

func (r *Redis) Bump(ctx context.Context) (uint64, error) {
	v, err := r.rdb.Incr(ctx, r.key).Result()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("redis version %s is negative: %d", r.key, v)
	}
	return uint64(v), nil
}

func (r *Redis) Close(context.Context) error {
	if !r.closeClient {
		return nil
	}
	if err := r.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
