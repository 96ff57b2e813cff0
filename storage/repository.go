// Package storage provides the record storage abstraction used for user
// records and persisted sessions.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when the namespace holding a record does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// Repository stores sealed records addressed by namespace, record type and
// record ID. Implementations must be safe for concurrent use.
type Repository interface {
	Put(ctx context.Context, namespace, recordType, recordID string, envelope *Envelope) error
	Get(ctx context.Context, namespace, recordType, recordID string) (*Envelope, error)
	Delete(ctx context.Context, namespace, recordType, recordID string) error
	List(ctx context.Context, namespace, recordType string) ([]string, error)
	// PutCAS writes the envelope only if the stored record's Version equals
	// expectedVersion. An expectedVersion of 0 means the record must not exist.
	PutCAS(ctx context.Context, namespace, recordType, recordID string, expectedVersion uint64, envelope *Envelope) error
}

// IsNotFound reports whether err means the record or its namespace is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNamespaceNotFound)
}
