package lsh

import (
	"errors"
	"fmt"

	"github.com/yuzhao12/datasketch/internal/storage/types"
	"github.com/yuzhao12/datasketch/pkg/minhash"
)

// StorageError is the uniform wrapper every backend failure surfaces through.
// It carries the failed operation, the storage key, and the underlying cause.
type StorageError = types.StorageError

// ErrParameterMismatch is returned when a signature's length or seed does not
// match the index configuration. Re-exported from minhash so callers matching
// error kinds only need this package.
var ErrParameterMismatch = minhash.ErrParameterMismatch

var (
	// ErrSessionOpen is returned when an operation conflicts with an
	// insertion session that is already open on the index.
	ErrSessionOpen = errors.New("lsh: an insertion session is already open")

	// ErrSessionClosed is returned on operations against a closed session.
	ErrSessionClosed = errors.New("lsh: insertion session is closed")

	// ErrIndexClosed is returned on operations against a closed index.
	ErrIndexClosed = errors.New("lsh: index is closed")
)

// ConfigurationError reports an invalid construction parameter. It is raised
// at construction time and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("lsh: invalid configuration: %s", e.Reason)
}

// DuplicateKeyError reports an insert of a key that is already indexed while
// duplication checking is enabled.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("lsh: key %q is already indexed", e.Key)
}

// NotFoundError reports an operation on a key that is not indexed.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lsh: key %q is not indexed", e.Key)
}
