// Package lsh indexes MinHash sketches for sub-linear retrieval of all items
// whose Jaccard similarity to a query likely exceeds a fixed threshold.
//
// The index slices each signature into b bands of r rows and hashes every
// band's row-slice into a storage-backed bucket; a query retrieves the union
// of the buckets its own bands hash to. Band count and rows per band are
// chosen at construction to minimize the expected false-positive and
// false-negative mass around the threshold. Results are probabilistic:
// a superset of high-similarity items that may also miss true matches.
//
// All state lives behind the storage abstraction, so an index backed by a
// remote store can be reconnected to from another process given the same
// configuration and basename (see Snapshot).
package lsh

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/yuzhao12/datasketch/internal/storage"
	"github.com/yuzhao12/datasketch/internal/storage/types"
	"github.com/yuzhao12/datasketch/pkg/minhash"
)

// Index is the synchronous LSH index surface. It holds no mutable state
// besides the open-session flag; concurrency safety of the operations is that
// of the underlying storage backend.
type Index struct {
	cfg    Config
	bands  int
	rows   int
	store  types.Store
	logger *slog.Logger

	sessionOpen atomic.Bool
	closed      atomic.Bool
}

// Options tunes construction beyond Config.
type Options struct {
	// Logger for index operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// New validates cfg, computes the optimal band configuration for the
// threshold, opens the storage backend and returns a ready index.
func New(ctx context.Context, cfg Config, opts ...Options) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	bands, rows := optimalParams(cfg.Threshold, cfg.NumPerm, cfg.Weights.FalsePositive, cfg.Weights.FalseNegative)
	return newIndex(ctx, cfg, bands, rows, opts...)
}

func newIndex(ctx context.Context, cfg Config, bands, rows int, opts ...Options) (*Index, error) {
	if cfg.Basename == "" {
		cfg.Basename = "lsh-" + uuid.New().String()
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	if len(opts) > 0 && opts[0].Logger != nil {
		logger = opts[0].Logger
	}
	logger = logger.With("component", "lsh-index", "basename", cfg.Basename)

	logger.Debug("index ready",
		"threshold", cfg.Threshold,
		"num_perm", cfg.NumPerm,
		"bands", bands,
		"rows", rows,
		"backend", cfg.Storage.Backend,
	)

	return &Index{
		cfg:    cfg,
		bands:  bands,
		rows:   rows,
		store:  store,
		logger: logger,
	}, nil
}

// Params returns the band configuration chosen for the threshold.
func (idx *Index) Params() (bands, rows int) { return idx.bands, idx.rows }

// Basename returns the storage namespace of this index.
func (idx *Index) Basename() string { return idx.cfg.Basename }

func (idx *Index) registryPrefix() string {
	return idx.cfg.Basename + ":registry:"
}

func (idx *Index) registryKey(key string) string {
	return idx.registryPrefix() + key
}

// bucketKey derives the storage key for one band of a signature. The band
// index is part of the key, so row-slices that coincide across bands land in
// distinct buckets.
func (idx *Index) bucketKey(band int, values []uint64) string {
	buf := make([]byte, idx.rows*8)
	for i, v := range values[band*idx.rows : (band+1)*idx.rows] {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	sum := blake3.Sum256(buf)
	return fmt.Sprintf("%s:band:%d:%s", idx.cfg.Basename, band, hex.EncodeToString(sum[:16]))
}

// checkSignature verifies that m matches the index parameters.
func (idx *Index) checkSignature(m *minhash.MinHash) error {
	if m == nil || m.NumPerm() != idx.cfg.NumPerm || m.Seed() != idx.cfg.Seed {
		return fmt.Errorf("%w: index requires num_perm=%d seed=%d", ErrParameterMismatch, idx.cfg.NumPerm, idx.cfg.Seed)
	}
	return nil
}

// queueInsert adds all writes for one (key, signature) pair onto the batch:
// the key into every band's bucket, and the serialized signature into the
// registry.
func (idx *Index) queueInsert(b types.Batch, key string, m *minhash.MinHash) {
	values := m.Values()
	for band := 0; band < idx.bands; band++ {
		b.PutInSet(idx.bucketKey(band, values), []byte(key))
	}
	sig, _ := m.MarshalBinary()
	b.PutInSet(idx.registryKey(key), sig)
}

// Insert indexes the signature under key. All band writes plus the registry
// write are issued as one batch. Returns DuplicateKeyError when the key is
// already indexed and duplication checking is enabled; a crash between batch
// submission and visibility may leave partial state (recovery is the
// insertion session's batch-retry territory, not Insert's).
func (idx *Index) Insert(ctx context.Context, key string, m *minhash.MinHash) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}
	if err := idx.checkSignature(m); err != nil {
		return err
	}

	if !idx.cfg.DisableDuplicateCheck {
		exists, err := idx.Contains(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return &DuplicateKeyError{Key: key}
		}
	}

	batch := idx.store.Batch()
	idx.queueInsert(batch, key, m)
	return batch.Commit(ctx)
}

// Query returns the keys of all indexed items colliding with the query
// signature in at least one band. The result is a superset of the true
// matches above the threshold with both false positives and false negatives
// possible. While an insertion session is open, Query does not block or
// error; it may observe only part of the session's buffered inserts.
func (idx *Index) Query(ctx context.Context, m *minhash.MinHash) ([]string, error) {
	if idx.closed.Load() {
		return nil, ErrIndexClosed
	}
	if err := idx.checkSignature(m); err != nil {
		return nil, err
	}

	values := m.Values()
	seen := map[string]struct{}{}
	for band := 0; band < idx.bands; band++ {
		members, err := idx.store.GetSet(ctx, idx.bucketKey(band, values))
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			seen[string(member)] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Remove deletes key from every band bucket it hashes to and drops its
// registry entry, as one batch. Returns NotFoundError when the key is not
// indexed.
func (idx *Index) Remove(ctx context.Context, key string) error {
	if idx.closed.Load() {
		return ErrIndexClosed
	}

	sigs, err := idx.store.GetSet(ctx, idx.registryKey(key))
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		return &NotFoundError{Key: key}
	}

	batch := idx.store.Batch()
	for _, raw := range sigs {
		m, err := minhash.Deserialize(raw)
		if err != nil {
			return fmt.Errorf("lsh: corrupt registry entry for key %q: %w", key, err)
		}
		values := m.Values()
		for band := 0; band < idx.bands; band++ {
			batch.RemoveFromSet(idx.bucketKey(band, values), []byte(key))
		}
	}
	batch.DeleteKey(idx.registryKey(key))
	return batch.Commit(ctx)
}

// Contains reports whether key is indexed, backed by the registry.
func (idx *Index) Contains(ctx context.Context, key string) (bool, error) {
	if idx.closed.Load() {
		return false, ErrIndexClosed
	}
	sigs, err := idx.store.GetSet(ctx, idx.registryKey(key))
	if err != nil {
		return false, err
	}
	return len(sigs) > 0, nil
}

// IsEmpty reports whether the registry holds no keys.
func (idx *Index) IsEmpty(ctx context.Context) (bool, error) {
	if idx.closed.Load() {
		return false, ErrIndexClosed
	}
	keys, err := idx.store.ListKeys(ctx, idx.registryPrefix())
	if err != nil {
		return false, err
	}
	return len(keys) == 0, nil
}

// Keys returns every indexed key in lexicographic order.
func (idx *Index) Keys(ctx context.Context) ([]string, error) {
	if idx.closed.Load() {
		return nil, ErrIndexClosed
	}
	prefix := idx.registryPrefix()
	stored, err := idx.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(stored))
	for _, k := range stored {
		keys = append(keys, k[len(prefix):])
	}
	return keys, nil
}

// Close releases the storage backend. The index is unusable after.
func (idx *Index) Close(ctx context.Context) error {
	if !idx.closed.CompareAndSwap(false, true) {
		return nil
	}
	return idx.store.Close(ctx)
}
