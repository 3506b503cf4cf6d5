package kvstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/motti-landau/kvstore/record"
)

var (
	// ErrNotFound is returned for absent keys. Expired records are absent.
	ErrNotFound = errors.New("kvstore: not found")

	// ErrValidation matches every *ValidationError.
	ErrValidation = record.ErrInvalid
)

// ValidationError is a rejected input; nothing was written.
type ValidationError = record.Invalid

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// BackendWriteError is a failed backend commit. The cache is unchanged.
type BackendWriteError struct {
	Op   string
	Keys []string
	Err  error
}

func (e *BackendWriteError) Error() string {
	switch len(e.Keys) {
	case 0:
		return fmt.Sprintf("kvstore: %s: backend write failed: %v", e.Op, e.Err)
	case 1:
		return fmt.Sprintf("kvstore: %s %q: backend write failed: %v", e.Op, e.Keys[0], e.Err)
	default:
		keys := e.Keys
		suffix := ""
		if len(keys) > 5 {
			keys, suffix = keys[:5], fmt.Sprintf(" (+%d more)", len(e.Keys)-5)
		}
		return fmt.Sprintf("kvstore: %s [%s]%s: backend write failed: %v",
			e.Op, strings.Join(keys, ", "), suffix, e.Err)
	}
}

func (e *BackendWriteError) Unwrap() error { return e.Err }

// LoadError means the backend could not be read at startup.
type LoadError struct {
	Namespace string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("kvstore: loading namespace %q: %v", e.Namespace, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("kvstore: store closed")
