package lsh

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"

	"github.com/yuzhao12/datasketch/pkg/minhash"
)

// AsyncOptions tunes the non-blocking façade.
type AsyncOptions struct {
	// Workers is the number of dispatch goroutines. Keyed operations are
	// sharded onto workers by key, so operations on one key execute in
	// submission order. Defaults to 8.
	Workers int

	// QueueSize is the per-worker task queue capacity. Defaults to 64.
	QueueSize int

	// MaxPending bounds the operations in flight across all workers;
	// submissions beyond it block until capacity frees or the context is
	// done. Defaults to Workers*QueueSize.
	MaxPending int64
}

func (o AsyncOptions) withDefaults() AsyncOptions {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.MaxPending <= 0 {
		o.MaxPending = int64(o.Workers * o.QueueSize)
	}
	return o
}

// QueryResult carries the outcome of an asynchronous Query.
type QueryResult struct {
	Keys []string
	Err  error
}

// BoolResult carries the outcome of an asynchronous Contains or IsEmpty.
type BoolResult struct {
	Value bool
	Err   error
}

// AsyncIndex exposes the index operations without blocking the caller: each
// operation is submitted to a worker and the result delivered on a buffered
// channel of one. Operations on the same key complete in submission order;
// there is no ordering guarantee across keys. A submission whose context is
// cancelled before its turn completes with the context error; writes already
// flushed to storage are not rolled back.
type AsyncIndex struct {
	idx     *Index
	opts    AsyncOptions
	workers []chan func()
	sem     *semaphore.Weighted
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// OpenAsync constructs the index per cfg and wraps it in the non-blocking
// façade.
func OpenAsync(ctx context.Context, cfg Config, opts AsyncOptions, idxOpts ...Options) (*AsyncIndex, error) {
	idx, err := New(ctx, cfg, idxOpts...)
	if err != nil {
		return nil, err
	}
	return NewAsync(idx, opts), nil
}

// NewAsync wraps an existing index. The façade owns the index from here on:
// closing the façade closes the index.
func NewAsync(idx *Index, opts AsyncOptions) *AsyncIndex {
	opts = opts.withDefaults()
	a := &AsyncIndex{
		idx:     idx,
		opts:    opts,
		workers: make([]chan func(), opts.Workers),
		sem:     semaphore.NewWeighted(opts.MaxPending),
	}
	for i := range a.workers {
		ch := make(chan func(), opts.QueueSize)
		a.workers[i] = ch
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for task := range ch {
				task()
			}
		}()
	}
	return a
}

// Index returns the wrapped synchronous index for direct (blocking) calls.
func (a *AsyncIndex) Index() *Index { return a.idx }

func shardOf(key string) uint64 {
	return xxhash.Sum64String(key)
}

// submit queues run on the worker for shard. fail is invoked instead when the
// submission cannot be accepted.
func (a *AsyncIndex) submit(ctx context.Context, shard uint64, fail func(error), run func()) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		fail(ErrIndexClosed)
		return
	}
	if err := a.sem.Acquire(ctx, 1); err != nil {
		fail(err)
		return
	}

	task := func() {
		defer a.sem.Release(1)
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		run()
	}

	select {
	case a.workers[shard%uint64(len(a.workers))] <- task:
	case <-ctx.Done():
		a.sem.Release(1)
		fail(ctx.Err())
	}
}

// Insert indexes the signature under key without blocking; the returned
// channel delivers the result.
func (a *AsyncIndex) Insert(ctx context.Context, key string, m *minhash.MinHash) <-chan error {
	ch := make(chan error, 1)
	fail := func(err error) { ch <- err }
	a.submit(ctx, shardOf(key), fail, func() {
		ch <- a.idx.Insert(ctx, key, m)
	})
	return ch
}

// Query retrieves candidate keys without blocking.
func (a *AsyncIndex) Query(ctx context.Context, m *minhash.MinHash) <-chan QueryResult {
	ch := make(chan QueryResult, 1)
	fail := func(err error) { ch <- QueryResult{Err: err} }
	// Queries carry no key; any worker will do.
	a.submit(ctx, shardOf(""), fail, func() {
		keys, err := a.idx.Query(ctx, m)
		ch <- QueryResult{Keys: keys, Err: err}
	})
	return ch
}

// Remove deletes key from the index without blocking.
func (a *AsyncIndex) Remove(ctx context.Context, key string) <-chan error {
	ch := make(chan error, 1)
	fail := func(err error) { ch <- err }
	a.submit(ctx, shardOf(key), fail, func() {
		ch <- a.idx.Remove(ctx, key)
	})
	return ch
}

// Contains checks key membership without blocking.
func (a *AsyncIndex) Contains(ctx context.Context, key string) <-chan BoolResult {
	ch := make(chan BoolResult, 1)
	fail := func(err error) { ch <- BoolResult{Err: err} }
	a.submit(ctx, shardOf(key), fail, func() {
		ok, err := a.idx.Contains(ctx, key)
		ch <- BoolResult{Value: ok, Err: err}
	})
	return ch
}

// IsEmpty checks for an empty registry without blocking.
func (a *AsyncIndex) IsEmpty(ctx context.Context) <-chan BoolResult {
	ch := make(chan BoolResult, 1)
	fail := func(err error) { ch <- BoolResult{Err: err} }
	a.submit(ctx, shardOf(""), fail, func() {
		empty, err := a.idx.IsEmpty(ctx)
		ch <- BoolResult{Value: empty, Err: err}
	})
	return ch
}

// Close stops accepting submissions, waits for queued operations to finish,
// and closes the underlying index.
func (a *AsyncIndex) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	for _, w := range a.workers {
		close(w)
	}
	a.mu.Unlock()

	a.wg.Wait()
	return a.idx.Close(ctx)
}

// AsyncInsertionSession accepts concurrent insert submissions and guarantees
// every accepted insert is flushed before Close returns. Submissions are
// serialized through an internal queue consumed by a single goroutine, so the
// underlying buffered session never sees concurrent writes.
type AsyncInsertionSession struct {
	sess  *InsertionSession
	tasks chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// InsertionSession opens a concurrency-safe bulk-insert session. Only one
// session may be open per index, counting sessions opened directly on the
// wrapped index.
func (a *AsyncIndex) InsertionSession(bufferSize int) (*AsyncInsertionSession, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrIndexClosed
	}

	sess, err := a.idx.InsertionSession(bufferSize)
	if err != nil {
		return nil, err
	}

	s := &AsyncInsertionSession{
		sess:  sess,
		tasks: make(chan func(), a.opts.QueueSize),
		done:  make(chan struct{}),
	}
	go func() {
		for task := range s.tasks {
			task()
		}
		close(s.done)
	}()
	return s, nil
}

// Insert queues the signature under key; many Inserts may be fired without
// waiting for each other. The returned channel delivers the per-insert
// result.
func (s *AsyncInsertionSession) Insert(ctx context.Context, key string, m *minhash.MinHash, checkDuplication bool) <-chan error {
	ch := make(chan error, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		ch <- ErrSessionClosed
		return ch
	}

	task := func() {
		if err := ctx.Err(); err != nil {
			ch <- err
			return
		}
		ch <- s.sess.Insert(ctx, key, m, checkDuplication)
	}
	select {
	case s.tasks <- task:
	case <-ctx.Done():
		ch <- ctx.Err()
	}
	return ch
}

// Close drains every accepted insert into the buffered session and flushes
// it. No insert accepted before Close is lost; inserts submitted after Close
// fail with ErrSessionClosed.
func (s *AsyncInsertionSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()

	<-s.done
	return s.sess.Close(ctx)
}
