package bigcache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/record"
)

func TestCommitReadAll(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx, Config{Shards: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(ctx)

	now := time.Now().UTC()
	if err := b.Commit(ctx, []record.Record{
		{Key: "a", Value: "1", Tags: []string{"t"}, CreatedAt: now, UpdatedAt: now},
		{Key: "b", Value: "2", CreatedAt: now, UpdatedAt: now},
		{Key: "c", Value: "3", CreatedAt: now, UpdatedAt: now},
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(ctx, []record.Record{{Key: "a", Value: "1b", CreatedAt: now, UpdatedAt: now}}, []string{"c", "nope"}); err != nil {
		t.Fatal(err)
	}

	got, err := b.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Key < got[j].Key })
	if len(got) != 2 || got[0].Value != "1b" || got[1].Key != "b" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestForeignEntrySkipped(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx, Config{Shards: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(ctx)
	if err := b.c.Set("junk", []byte("raw")); err != nil {
		t.Fatal(err)
	}
	_, err = b.ReadAll(ctx)
	rows, fatal := backend.SplitReadErr(err)
	if fatal != nil || rows == nil || rows.Rows[0].Key != "junk" {
		t.Fatalf("expected junk skipped, got %v", err)
	}
}
