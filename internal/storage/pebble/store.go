// Package pebble provides the embedded persistent storage backend on top of
// PebbleDB. Each set member is stored as its own pebble key, so GetSet and
// ListKeys are prefix scans over the ordered keyspace and DeleteKey is a range
// delete.
package pebble

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/yuzhao12/datasketch/internal/storage/types"
)

var _ types.Store = (*Store)(nil)

// Store is a pebble-backed ordered-key-to-set-of-values map.
type Store struct {
	db *pebble.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, &types.StorageError{Op: "open", Key: path, Err: err}
	}
	return &Store{db: db}, nil
}

// Pebble key layout: escape(storeKey) | 0x00 0x00 | member. Escaping maps
// 0x00 to 0x00 0x01 inside the store key, so the two-byte separator cannot
// occur within it and per-byte escaping keeps prefix relationships intact.

var keySep = []byte{0x00, 0x00}

func escapeKey(key string) []byte {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == 0x00 {
			out = append(out, 0x00, 0x01)
		} else {
			out = append(out, key[i])
		}
	}
	return out
}

func unescapeKey(b []byte) string {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == 0x00 {
			i++ // skip the 0x01 escape byte
		}
	}
	return string(out)
}

func encodeMemberKey(key string, member []byte) []byte {
	ek := escapeKey(key)
	out := make([]byte, 0, len(ek)+len(keySep)+len(member))
	out = append(out, ek...)
	out = append(out, keySep...)
	out = append(out, member...)
	return out
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such bound exists.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (s *Store) guard(op, key string) error {
	if s.closed {
		return &types.StorageError{Op: op, Key: key, Err: types.ErrStoreClosed}
	}
	return nil
}

func (s *Store) PutInSet(ctx context.Context, key string, member []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("putInSet", key); err != nil {
		return err
	}
	if err := s.db.Set(encodeMemberKey(key, member), nil, pebble.Sync); err != nil {
		return &types.StorageError{Op: "putInSet", Key: key, Err: err}
	}
	return nil
}

func (s *Store) GetSet(ctx context.Context, key string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("getSet", key); err != nil {
		return nil, err
	}

	prefix := append(escapeKey(key), keySep...)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, &types.StorageError{Op: "getSet", Key: key, Err: err}
	}
	defer iter.Close()

	members := make([][]byte, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		member := append([]byte(nil), iter.Key()[len(prefix):]...)
		members = append(members, member)
	}
	if err := iter.Error(); err != nil {
		return nil, &types.StorageError{Op: "getSet", Key: key, Err: err}
	}
	return members, nil
}

func (s *Store) RemoveFromSet(ctx context.Context, key string, member []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("removeFromSet", key); err != nil {
		return err
	}
	if err := s.db.Delete(encodeMemberKey(key, member), pebble.Sync); err != nil {
		return &types.StorageError{Op: "removeFromSet", Key: key, Err: err}
	}
	return nil
}

func (s *Store) DeleteKey(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("deleteKey", key); err != nil {
		return err
	}
	prefix := append(escapeKey(key), keySep...)
	if err := s.db.DeleteRange(prefix, prefixUpperBound(prefix), pebble.Sync); err != nil {
		return &types.StorageError{Op: "deleteKey", Key: key, Err: err}
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard("listKeys", prefix); err != nil {
		return nil, err
	}

	ep := escapeKey(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: ep,
		UpperBound: prefixUpperBound(ep),
	})
	if err != nil {
		return nil, &types.StorageError{Op: "listKeys", Key: prefix, Err: err}
	}
	defer iter.Close()

	seen := map[string]struct{}{}
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		sep := bytes.Index(k, keySep)
		if sep < 0 {
			continue
		}
		seen[unescapeKey(k[:sep])] = struct{}{}
	}
	if err := iter.Error(); err != nil {
		return nil, &types.StorageError{Op: "listKeys", Key: prefix, Err: err}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Batch() types.Batch {
	return &batch{store: s, b: s.db.NewBatch()}
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return &types.StorageError{Op: "close", Err: err}
	}
	return nil
}

type batch struct {
	store *Store
	b     *pebble.Batch
	n     int
}

func (b *batch) PutInSet(key string, member []byte) {
	_ = b.b.Set(encodeMemberKey(key, member), nil, nil)
	b.n++
}

func (b *batch) RemoveFromSet(key string, member []byte) {
	_ = b.b.Delete(encodeMemberKey(key, member), nil)
	b.n++
}

func (b *batch) DeleteKey(key string) {
	prefix := append(escapeKey(key), keySep...)
	_ = b.b.DeleteRange(prefix, prefixUpperBound(prefix), nil)
	b.n++
}

func (b *batch) Len() int { return b.n }

func (b *batch) Commit(ctx context.Context) error {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if b.store.closed {
		return &types.StorageError{Op: "commit", Err: types.ErrStoreClosed}
	}
	if err := b.b.Commit(pebble.Sync); err != nil {
		return &types.StorageError{Op: "commit", Err: err}
	}
	b.b = b.store.db.NewBatch()
	b.n = 0
	return nil
}
