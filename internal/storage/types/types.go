// Package types defines the storage contract the index layer is written
// against. Backends differ in failure modes and durability but expose the same
// ordered-key-to-set-of-values surface, so the index never special-cases the
// backend it runs on.
package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("storage: store is closed")

// StorageError wraps a backend failure with the operation and key it occurred
// on. Backends surface every I/O failure through this type so callers can
// distinguish transient storage problems from permanent parameter errors.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is an ordered-key-to-set-of-values map. Keys are strings; each key
// holds a set of opaque byte-string members. Member equality is byte equality.
//
// Implementations must be safe for concurrent use by multiple goroutines,
// either natively or through an internally synchronized client.
type Store interface {
	// PutInSet adds member to the set at key, creating the set if absent.
	// Adding a member already present is a no-op.
	PutInSet(ctx context.Context, key string, member []byte) error

	// GetSet returns the members of the set at key in unspecified order.
	// A missing key yields an empty result, not an error.
	GetSet(ctx context.Context, key string) ([][]byte, error)

	// RemoveFromSet removes member from the set at key. Removing an absent
	// member is a no-op.
	RemoveFromSet(ctx context.Context, key string, member []byte) error

	// DeleteKey removes the key and its whole set.
	DeleteKey(ctx context.Context, key string) error

	// ListKeys returns, in lexicographic order, every key that starts with
	// prefix and currently holds at least one member.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Batch returns an empty write batch scoped to this store. Queued
	// operations become visible only when the batch commits.
	Batch() Batch

	// Close releases the backend connection. The store is unusable after.
	Close(ctx context.Context) error
}

// Batch accumulates writes and applies them on Commit. A batch applies
// atomically with respect to any single reader observing before/after states
// of one key; cross-key atomicity is not guaranteed. A batch is not safe for
// concurrent use and must not outlive its store.
type Batch interface {
	PutInSet(key string, member []byte)
	RemoveFromSet(key string, member []byte)
	DeleteKey(key string)

	// Len reports the number of queued operations.
	Len() int

	// Commit applies the queued operations and resets the batch. A failed
	// commit leaves an unspecified subset of operations applied.
	Commit(ctx context.Context) error
}
