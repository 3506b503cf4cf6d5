package version

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalBumpsByOne(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(5)
	if v, _ := l.Current(ctx); v != 5 {
		t.Fatalf("start: got %d", v)
	}

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Bump(ctx)
		}()
	}
	wg.Wait()

	if v, _ := l.Current(ctx); v != 5+n {
		t.Fatalf("after %d bumps: got %d", n, v)
	}
}

func TestRedisCounter(t *testing.T) {
	addr := os.Getenv("KVSTORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KVSTORE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	ns := "vtest-" + time.Now().Format("150405.000000")
	defer client.Del(ctx, Key(ns))

	c := NewRedis(client, ns, true)
	defer c.Close(ctx)

	if v, err := c.Current(ctx); err != nil || v != 0 {
		t.Fatalf("fresh counter: %d %v", v, err)
	}
	v1, _ := c.Bump(ctx)
	v2, _ := c.Bump(ctx)
	if v1 != 1 || v2 != 2 {
		t.Fatalf("bumps: %d %d", v1, v2)
	}

	other := NewRedis(client, ns, false)
	if v, _ := other.Current(ctx); v != 2 {
		t.Fatalf("second handle sees %d", v)
	}
}
