// Package sqlite is the default durable backend: one SQLite database file
// per namespace, accessed through database/sql with the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/codec"
	"github.com/motti-landau/kvstore/record"
)

const schemaVersion = 2

// ErrUnsupportedSchema is returned by Open for databases this package did not create.
var ErrUnsupportedSchema = errors.New("sqlite: unsupported database schema")

type Backend struct {
	db   *sql.DB
	path string
	tags codec.JSON[[]string]
}

var _ backend.Backend = (*Backend)(nil)

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Backend, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating database directory %q: %w", dir, err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %q: %w", path, err)
	}
	// writes are already serialized by the store; one connection avoids SQLITE_BUSY between our own conns
	db.SetMaxOpenConns(1)

	b := &Backend{db: db, path: path}
	if err := b.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Path returns the database file location.
func (b *Backend) Path() string { return b.path }

func (b *Backend) initSchema(ctx context.Context) error {
	var version int
	if err := b.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("sqlite: reading user_version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}
	if version != 0 {
		return fmt.Errorf("%w: version %d; delete the database file to recreate it", ErrUnsupportedSchema, version)
	}

	var tables int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'kv'").Scan(&tables)
	if err != nil {
		return fmt.Errorf("sqlite: inspecting schema: %w", err)
	}
	if tables > 0 {
		return fmt.Errorf("%w: legacy kv table; delete the database file to recreate it", ErrUnsupportedSchema)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			tags TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			expires_at TEXT
		)`); err != nil {
		return fmt.Errorf("sqlite: creating kv table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("sqlite: setting user_version: %w", err)
	}
	return tx.Commit()
}

func (b *Backend) ReadAll(ctx context.Context) ([]record.Record, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT key, value, tags, created_at, updated_at, expires_at FROM kv ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading entries: %w", err)
	}
	defer rows.Close()

	var (
		out     []record.Record
		skipped backend.RowErrors
	)
	for rows.Next() {
		var (
			key, value, tags, created, updated string
			expires                            sql.NullString
		)
		if err := rows.Scan(&key, &value, &tags, &created, &updated, &expires); err != nil {
			skipped.Add(key, err)
			continue
		}
		r, err := b.decodeRow(key, value, tags, created, updated, expires)
		if err != nil {
			skipped.Add(key, err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating entries: %w", err)
	}
	return out, skipped.Err()
}

func (b *Backend) decodeRow(key, value, tagsJSON, created, updated string, expires sql.NullString) (record.Record, error) {
	var tags []string
	if strings.TrimSpace(tagsJSON) != "" {
		t, err := b.tags.Decode([]byte(tagsJSON))
		if err != nil {
			return record.Record{}, fmt.Errorf("tags: %w", err)
		}
		tags = t
	}
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return record.Record{}, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return record.Record{}, fmt.Errorf("updated_at: %w", err)
	}
	r := record.Record{
		Key:       key,
		Value:     value,
		Tags:      tags,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	if expires.Valid && strings.TrimSpace(expires.String) != "" {
		exp, err := time.Parse(time.RFC3339Nano, expires.String)
		if err != nil {
			return record.Record{}, fmt.Errorf("expires_at: %w", err)
		}
		exp = exp.UTC()
		r.ExpiresAt = &exp
	}
	return r, nil
}

func (b *Backend) Commit(ctx context.Context, upserts []record.Record, deletes []string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, r := range upserts {
		tags, err := b.tags.Encode(nonNil(r.Tags))
		if err != nil {
			return fmt.Errorf("sqlite: encoding tags for %q: %w", r.Key, err)
		}
		var expires sql.NullString
		if r.ExpiresAt != nil {
			expires = sql.NullString{String: r.ExpiresAt.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, tags, created_at, updated_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(key)
			DO UPDATE SET value = excluded.value,
			              tags = excluded.tags,
			              created_at = excluded.created_at,
			              updated_at = excluded.updated_at,
			              expires_at = excluded.expires_at`,
			r.Key, r.Value, string(tags),
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
			r.UpdatedAt.UTC().Format(time.RFC3339Nano),
			expires,
		)
		if err != nil {
			return fmt.Errorf("sqlite: upserting %q: %w", r.Key, err)
		}
	}
	for _, key := range deletes {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return fmt.Errorf("sqlite: deleting %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (b *Backend) Close(context.Context) error {
	return b.db.Close()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
