// Package backend defines the durable storage contract used by kvstore.
//
// A Backend is the only place records survive a restart. The cache engine
// reads it once at startup (ReadAll) and afterwards only writes through it
// (Commit); reads never go back to the backend.
//
// Implementations MUST make Commit all-or-nothing: either every upsert and
// delete in the call is durable, or none is and an error is returned. The
// cache relies on that to stay identical to the backend after each mutation.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/motti-landau/kvstore/record"
)

// Backend is a durable record store for one namespace.
// Must be safe for concurrent use.
type Backend interface {
	// ReadAll returns every stored record. Rows that cannot be decoded are
	// skipped and reported in a *RowErrors returned together with the
	// records that did decode. Any other error means the backend could not
	// be read at all.
	ReadAll(ctx context.Context) ([]record.Record, error)

	// Commit applies upserts and deletes atomically. Deleting a missing key
	// is not an error.
	Commit(ctx context.Context, upserts []record.Record, deletes []string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// RowError is one malformed row skipped by ReadAll.
type RowError struct {
	Key string
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %q: %v", e.Key, e.Err)
}

// RowErrors collects the rows skipped during ReadAll.
type RowErrors struct {
	Rows []RowError
}

func (e *RowErrors) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		parts = append(parts, r.Error())
	}
	return fmt.Sprintf("%d malformed row(s) skipped: %s", len(e.Rows), strings.Join(parts, "; "))
}

func (e *RowErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Rows))
	for _, r := range e.Rows {
		errs = append(errs, r.Err)
	}
	return errs
}

// Add appends a skipped row.
func (e *RowErrors) Add(key string, err error) {
	e.Rows = append(e.Rows, RowError{Key: key, Err: err})
}

// Err returns e when at least one row was skipped, nil otherwise.
func (e *RowErrors) Err() error {
	if e == nil || len(e.Rows) == 0 {
		return nil
	}
	return e
}

// SplitReadErr separates skipped rows from a fatal read error.
func SplitReadErr(err error) (*RowErrors, error) {
	if err == nil {
		return nil, nil
	}
	var rows *RowErrors
	if errors.As(err, &rows) {
		return rows, nil
	}
	return nil, err
}
