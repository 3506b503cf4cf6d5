package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/record"
)

func openTemp(t *testing.T) (*Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "data.db")
	b, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, path
}

func TestCommitAndReadAll(t *testing.T) {
	ctx := context.Background()
	b, path := openTemp(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	exp := now.Add(time.Hour)
	recs := []record.Record{
		{Key: "b", Value: "2", Tags: []string{"x"}, CreatedAt: now, UpdatedAt: now, ExpiresAt: &exp},
		{Key: "a", Value: "1", CreatedAt: now, UpdatedAt: now},
	}
	if err := b.Commit(ctx, recs, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := b.Commit(ctx, nil, []string{"missing"}); err != nil {
		t.Fatalf("deleting a missing key should not fail: %v", err)
	}
	_ = b.Close(ctx)

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close(ctx)

	got, err := reopened.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 || got[0].Key != "a" || got[1].Key != "b" {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if got[1].ExpiresAt == nil || !got[1].ExpiresAt.Equal(exp) {
		t.Fatalf("expires_at lost: %+v", got[1])
	}
	if len(got[0].Tags) != 0 || len(got[1].Tags) != 1 {
		t.Fatalf("tags not preserved: %+v", got)
	}
}

func TestMalformedRowsAreSkipped(t *testing.T) {
	ctx := context.Background()
	b, _ := openTemp(t)

	now := time.Now().UTC()
	if err := b.Commit(ctx, []record.Record{{Key: "good", Value: "v", CreatedAt: now, UpdatedAt: now}}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.db.ExecContext(ctx,
		"INSERT INTO kv (key, value, tags, created_at, updated_at) VALUES ('bad', 'v', 'not json', 'x', 'y')"); err != nil {
		t.Fatal(err)
	}

	got, err := b.ReadAll(ctx)
	rows, fatal := backend.SplitReadErr(err)
	if fatal != nil {
		t.Fatalf("unexpected fatal error: %v", fatal)
	}
	if rows == nil || len(rows.Rows) != 1 || rows.Rows[0].Key != "bad" {
		t.Fatalf("expected one skipped row, got %v", err)
	}
	if len(got) != 1 || got[0].Key != "good" {
		t.Fatalf("good row should survive: %+v", got)
	}
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	b, _ := openTemp(t)
	now := time.Now().UTC()
	if err := b.Commit(ctx, []record.Record{{Key: "keep", Value: "1", CreatedAt: now, UpdatedAt: now}}, nil); err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := b.Commit(cctx, []record.Record{{Key: "new", Value: "2", CreatedAt: now, UpdatedAt: now}}, []string{"keep"})
	if err == nil {
		t.Fatalf("expected commit with cancelled context to fail")
	}

	got, err := b.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "keep" {
		t.Fatalf("failed commit leaked changes: %+v", got)
	}
}

func TestRejectsUnknownSchemaVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	if _, err := Open(ctx, path); !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("expected ErrUnsupportedSchema, got %v", err)
	}
}
