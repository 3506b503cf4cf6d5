package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/codec"
	"github.com/motti-landau/kvstore/internal/wire"
	"github.com/motti-landau/kvstore/record"
)

func TestMissingFileIsEmpty(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "ns", "data.kv"), nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadAll(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty read, got %v %v", got, err)
	}
}

func TestCommitPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.kv")
	c, err := codec.ForRecords(codec.NameCBOR)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Open(path, c)
	if _, err := b.ReadAll(ctx); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	if err := b.Commit(ctx, []record.Record{
		{Key: "x", Value: "1", CreatedAt: now, UpdatedAt: now},
		{Key: "y", Value: "2", CreatedAt: now, UpdatedAt: now},
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(ctx, nil, []string{"x"}); err != nil {
		t.Fatal(err)
	}

	again, _ := Open(path, c)
	got, err := again.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "y" || got[0].Value != "2" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestBadItemSkippedButKept(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.kv")
	c := codec.JSON[record.Record]{}
	good, _ := c.Encode(record.Record{Key: "good", Value: "v"})
	raw, err := wire.EncodeDoc([]wire.Item{
		{Key: "bad", Payload: []byte("{")},
		{Key: "good", Payload: good},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	b, _ := Open(path, c)
	got, err := b.ReadAll(ctx)
	rows, fatal := backend.SplitReadErr(err)
	if fatal != nil || rows == nil || len(rows.Rows) != 1 {
		t.Fatalf("expected one row error, got %v", err)
	}
	if len(got) != 1 || got[0].Key != "good" {
		t.Fatalf("unexpected records: %+v", got)
	}

	// an unrelated commit must not drop the undecodable item
	if err := b.Commit(ctx, []record.Record{{Key: "new", Value: "n"}}, nil); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(path)
	items, err := wire.DecodeDoc(after)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 || items[0].Key != "bad" {
		t.Fatalf("expected bad item preserved, got %d items", len(items))
	}
}

func TestCorruptDocumentIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.kv")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	b, _ := Open(path, nil)
	_, err := b.ReadAll(context.Background())
	rows, fatal := backend.SplitReadErr(err)
	if fatal == nil || rows != nil {
		t.Fatalf("expected fatal error, got %v", err)
	}
}
