package storage

import (
	"context"
	"fmt"

	"github.com/yuzhao12/datasketch/internal/storage/types"
)

// Session is a buffered writer over a store. Writes accumulate in a batch and
// flush whenever the buffer size is reached; Close flushes whatever remains,
// so a session released on any exit path leaves no write behind in memory.
// A session is not safe for concurrent use.
type Session struct {
	store      types.Store
	batch      types.Batch
	bufferSize int
	closed     bool
}

// NewSession creates a buffered writer flushing every bufferSize operations.
// A non-positive bufferSize flushes on every write.
func NewSession(store types.Store, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Session{
		store:      store,
		batch:      store.Batch(),
		bufferSize: bufferSize,
	}
}

// PutInSet queues an insert, flushing first if the buffer is full.
func (s *Session) PutInSet(ctx context.Context, key string, member []byte) error {
	if s.closed {
		return &types.StorageError{Op: "putInSet", Key: key, Err: types.ErrStoreClosed}
	}
	if s.batch.Len() >= s.bufferSize && s.batch.Len() > 0 {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	s.batch.PutInSet(key, member)
	return nil
}

// Pending reports the number of buffered, uncommitted operations.
func (s *Session) Pending() int { return s.batch.Len() }

// Flush commits the buffered operations. Flush failures are not retried; the
// batch keeps its contents so callers may retry the flush at batch
// granularity.
func (s *Session) Flush(ctx context.Context) error {
	if s.batch.Len() == 0 {
		return nil
	}
	n := s.batch.Len()
	if err := s.batch.Commit(ctx); err != nil {
		return fmt.Errorf("session flush of %d buffered writes: %w", n, err)
	}
	return nil
}

// Close flushes any remaining writes and marks the session unusable. Safe to
// call more than once.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Flush(ctx)
}
