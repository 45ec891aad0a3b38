// Package memory provides the in-memory storage backend. It is the reference
// implementation of the storage contract: everything lives in one map guarded
// by a read-write mutex, and batch commits apply under a single lock hold.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yuzhao12/datasketch/internal/storage/types"
)

// Compile-time check that Store implements the storage contract.
var _ types.Store = (*Store)(nil)

// Store is an in-memory ordered-key-to-set-of-values map.
type Store struct {
	mu     sync.RWMutex
	sets   map[string]map[string][]byte
	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{sets: map[string]map[string][]byte{}}
}

func (s *Store) PutInSet(ctx context.Context, key string, member []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.StorageError{Op: "putInSet", Key: key, Err: types.ErrStoreClosed}
	}
	s.putLocked(key, member)
	return nil
}

func (s *Store) putLocked(key string, member []byte) {
	set, ok := s.sets[key]
	if !ok {
		set = map[string][]byte{}
		s.sets[key] = set
	}
	set[string(member)] = append([]byte(nil), member...)
}

func (s *Store) GetSet(ctx context.Context, key string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &types.StorageError{Op: "getSet", Key: key, Err: types.ErrStoreClosed}
	}

	set := s.sets[key]
	members := make([][]byte, 0, len(set))
	for _, m := range set {
		members = append(members, append([]byte(nil), m...))
	}
	return members, nil
}

func (s *Store) RemoveFromSet(ctx context.Context, key string, member []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.StorageError{Op: "removeFromSet", Key: key, Err: types.ErrStoreClosed}
	}
	s.removeLocked(key, member)
	return nil
}

func (s *Store) removeLocked(key string, member []byte) {
	set, ok := s.sets[key]
	if !ok {
		return
	}
	delete(set, string(member))
	if len(set) == 0 {
		delete(s.sets, key)
	}
}

func (s *Store) DeleteKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.StorageError{Op: "deleteKey", Key: key, Err: types.ErrStoreClosed}
	}
	delete(s.sets, key)
	return nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &types.StorageError{Op: "listKeys", Key: prefix, Err: types.ErrStoreClosed}
	}

	keys := make([]string, 0)
	for k := range s.sets {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Batch() types.Batch {
	return &batch{store: s}
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sets = nil
	return nil
}

type opKind int

const (
	opPut opKind = iota
	opRemove
	opDeleteKey
)

type op struct {
	kind   opKind
	key    string
	member []byte
}

type batch struct {
	store *Store
	ops   []op
}

func (b *batch) PutInSet(key string, member []byte) {
	b.ops = append(b.ops, op{kind: opPut, key: key, member: append([]byte(nil), member...)})
}

func (b *batch) RemoveFromSet(key string, member []byte) {
	b.ops = append(b.ops, op{kind: opRemove, key: key, member: append([]byte(nil), member...)})
}

func (b *batch) DeleteKey(key string) {
	b.ops = append(b.ops, op{kind: opDeleteKey, key: key})
}

func (b *batch) Len() int { return len(b.ops) }

// Commit applies every queued operation under one lock hold, so readers see
// either none or all of the batch.
func (b *batch) Commit(ctx context.Context) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.StorageError{Op: "commit", Err: types.ErrStoreClosed}
	}

	for _, o := range b.ops {
		switch o.kind {
		case opPut:
			s.putLocked(o.key, o.member)
		case opRemove:
			s.removeLocked(o.key, o.member)
		case opDeleteKey:
			delete(s.sets, o.key)
		}
	}
	b.ops = b.ops[:0]
	return nil
}
