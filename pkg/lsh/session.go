package lsh

import (
	"context"

	"github.com/yuzhao12/datasketch/internal/storage"
	"github.com/yuzhao12/datasketch/pkg/minhash"
)

// DefaultSessionBuffer is the insertion session buffer size used when the
// caller passes a non-positive value.
const DefaultSessionBuffer = 50000

// InsertionSession is a buffered bulk-insert scope. Inserts accumulate and
// flush in batches of the configured buffer size; Close flushes whatever
// remains, so a session released on any exit path loses no queued insert.
// Only one session may be open per index at a time. A session is not safe
// for concurrent use; the async façade provides a concurrency-safe wrapper.
type InsertionSession struct {
	idx     *Index
	sess    *storage.Session
	pending map[string]struct{}
	closed  bool
}

// InsertionSession opens a bulk-insert session buffering bufferSize inserts
// per flush. Returns ErrSessionOpen if another session is already open on
// this index.
func (idx *Index) InsertionSession(bufferSize int) (*InsertionSession, error) {
	if idx.closed.Load() {
		return nil, ErrIndexClosed
	}
	if !idx.sessionOpen.CompareAndSwap(false, true) {
		return nil, ErrSessionOpen
	}
	if bufferSize <= 0 {
		bufferSize = DefaultSessionBuffer
	}

	// Each insert queues one write per band plus the registry write, so the
	// storage session buffer counts operations, not inserts.
	return &InsertionSession{
		idx:     idx,
		sess:    storage.NewSession(idx.store, bufferSize*(idx.bands+1)),
		pending: map[string]struct{}{},
	}, nil
}

// Insert queues the signature under key. When checkDuplication is set, keys
// already indexed or already queued in this session are rejected with
// DuplicateKeyError. Flushes happen at buffer boundaries; a flush failure is
// returned here or at Close and is not retried internally — the buffered
// batch stays intact so the caller may retry at batch granularity.
func (s *InsertionSession) Insert(ctx context.Context, key string, m *minhash.MinHash, checkDuplication bool) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.idx.checkSignature(m); err != nil {
		return err
	}

	if checkDuplication {
		if _, queued := s.pending[key]; queued {
			return &DuplicateKeyError{Key: key}
		}
		exists, err := s.idx.Contains(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return &DuplicateKeyError{Key: key}
		}
	}

	values := m.Values()
	for band := 0; band < s.idx.bands; band++ {
		if err := s.sess.PutInSet(ctx, s.idx.bucketKey(band, values), []byte(key)); err != nil {
			return err
		}
	}
	sig, _ := m.MarshalBinary()
	if err := s.sess.PutInSet(ctx, s.idx.registryKey(key), sig); err != nil {
		return err
	}

	s.pending[key] = struct{}{}
	return nil
}

// Flush commits all buffered inserts without closing the session.
func (s *InsertionSession) Flush(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.sess.Flush(ctx)
}

// Close flushes the remaining buffered inserts and releases the session. The
// index transitions back to ready even when the final flush fails; the error
// reports the writes that could not be committed. Safe to call more than
// once.
func (s *InsertionSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.idx.sessionOpen.Store(false)
	return s.sess.Close(ctx)
}
