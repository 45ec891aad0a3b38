package lsh

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzhao12/datasketch/pkg/minhash"
)

func newMemIndex(t *testing.T, mutate ...func(*Config)) *Index {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	idx, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close(context.Background()) })
	return idx
}

func testSketch(t *testing.T, idx *Index, elements ...string) *minhash.MinHash {
	t.Helper()
	m, err := minhash.New(idx.cfg.NumPerm, idx.cfg.Seed)
	require.NoError(t, err)
	for _, e := range elements {
		m.UpdateString(e)
	}
	return m
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	idx := newMemIndex(t)

	b, r := idx.Params()
	assert.Positive(t, b)
	assert.Positive(t, r)
	assert.LessOrEqual(t, b*r, 128)
	assert.NotEmpty(t, idx.Basename())

	// Two indexes without explicit basenames never share a namespace.
	other := newMemIndex(t)
	assert.NotEqual(t, idx.Basename(), other.Basename())
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Threshold = 2
	_, err := New(context.Background(), cfg)
	var cerr *ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestIndex_InsertQueryRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := newMemIndex(t, func(c *Config) { c.Threshold = 0.5 })

	base := []string{}
	for i := 0; i < 100; i++ {
		base = append(base, fmt.Sprintf("tok-%d", i))
	}
	doc := testSketch(t, idx, base...)
	require.NoError(t, idx.Insert(ctx, "doc", doc))

	exists, err := idx.Contains(ctx, "doc")
	require.NoError(t, err)
	assert.True(t, exists)

	// A sketch built from the identical set always collides in every band.
	got, err := idx.Query(ctx, testSketch(t, idx, base...))
	require.NoError(t, err)
	assert.Contains(t, got, "doc")

	empty, err := idx.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	keys, err := idx.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, keys)

	require.NoError(t, idx.Remove(ctx, "doc"))

	exists, err = idx.Contains(ctx, "doc")
	require.NoError(t, err)
	assert.False(t, exists)

	// Removal clears the band buckets too, not just the registry.
	got, err = idx.Query(ctx, doc)
	require.NoError(t, err)
	assert.NotContains(t, got, "doc")

	empty, err = idx.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestIndex_QueryEmpty(t *testing.T) {
	t.Parallel()
	idx := newMemIndex(t)

	got, err := idx.Query(context.Background(), testSketch(t, idx, "a", "b"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndex_DuplicateKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := newMemIndex(t)

	m := testSketch(t, idx, "a", "b", "c")
	require.NoError(t, idx.Insert(ctx, "k", m))

	err := idx.Insert(ctx, "k", m)
	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "k", dup.Key)
}

func TestIndex_DuplicateCheckDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := newMemIndex(t, func(c *Config) { c.DisableDuplicateCheck = true })

	first := testSketch(t, idx, "a", "b", "c")
	second := testSketch(t, idx, "x", "y", "z")
	require.NoError(t, idx.Insert(ctx, "k", first))
	require.NoError(t, idx.Insert(ctx, "k", second))

	// Both signatures remain queryable under the key until it is removed.
	got, err := idx.Query(ctx, second)
	require.NoError(t, err)
	assert.Contains(t, got, "k")

	// Remove clears every stored signature's buckets.
	require.NoError(t, idx.Remove(ctx, "k"))
	got, err = idx.Query(ctx, first)
	require.NoError(t, err)
	assert.NotContains(t, got, "k")
	got, err = idx.Query(ctx, second)
	require.NoError(t, err)
	assert.NotContains(t, got, "k")
}

func TestIndex_ParameterMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := newMemIndex(t)

	wrongLen, err := minhash.New(64, idx.cfg.Seed)
	require.NoError(t, err)
	wrongSeed, err := minhash.New(idx.cfg.NumPerm, 99)
	require.NoError(t, err)

	assert.ErrorIs(t, idx.Insert(ctx, "k", wrongLen), ErrParameterMismatch)
	assert.ErrorIs(t, idx.Insert(ctx, "k", wrongSeed), ErrParameterMismatch)
	assert.ErrorIs(t, idx.Insert(ctx, "k", nil), ErrParameterMismatch)
	_, err = idx.Query(ctx, wrongLen)
	assert.ErrorIs(t, err, ErrParameterMismatch)
}

func TestIndex_RemoveMissing(t *testing.T) {
	t.Parallel()
	idx := newMemIndex(t)

	err := idx.Remove(context.Background(), "ghost")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.Key)
}

func TestIndex_Closed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := newMemIndex(t)
	m := testSketch(t, idx, "a")

	require.NoError(t, idx.Close(ctx))
	require.NoError(t, idx.Close(ctx))

	assert.ErrorIs(t, idx.Insert(ctx, "k", m), ErrIndexClosed)
	_, err := idx.Query(ctx, m)
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.ErrorIs(t, idx.Remove(ctx, "k"), ErrIndexClosed)
	_, err = idx.Contains(ctx, "k")
	assert.ErrorIs(t, err, ErrIndexClosed)
	_, err = idx.Keys(ctx)
	assert.ErrorIs(t, err, ErrIndexClosed)
	_, err = idx.InsertionSession(0)
	assert.ErrorIs(t, err, ErrIndexClosed)
}

// randomDoc draws n distinct tokens from a shared vocabulary.
func randomDoc(rng *rand.Rand, n, vocabulary int) []string {
	seen := map[int]struct{}{}
	doc := make([]string, 0, n)
	for len(doc) < n {
		tok := rng.Intn(vocabulary)
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		doc = append(doc, fmt.Sprintf("tok-%d", tok))
	}
	return doc
}

// overlapping returns a variant of doc sharing the first `shared` tokens,
// with the remainder replaced by tokens from a disjoint vocabulary range.
func overlapping(doc []string, shared, salt int) []string {
	out := append([]string(nil), doc[:shared]...)
	for i := shared; i < len(doc); i++ {
		out = append(out, fmt.Sprintf("repl-%d-%d", salt, i))
	}
	return out
}

func TestIndex_NearDuplicateRetrieval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	// At threshold 0.5 with 128 permutations, a pair at similarity ~0.82
	// (90/110 overlap) sits far up the S-curve and a pair at ~0.16 (30/170)
	// far down it. Over 40 independent trials the near-duplicate must be
	// retrieved almost always and the dissimilar document rarely.
	const trials = 40
	nearHits, farHits := 0, 0
	for trial := 0; trial < trials; trial++ {
		idx := newMemIndex(t, func(c *Config) { c.Threshold = 0.5 })

		doc := randomDoc(rng, 100, 1_000_000)
		near := overlapping(doc, 90, trial)
		far := overlapping(doc, 30, trial+trials)

		require.NoError(t, idx.Insert(ctx, "near", testSketch(t, idx, near...)))
		require.NoError(t, idx.Insert(ctx, "far", testSketch(t, idx, far...)))

		got, err := idx.Query(ctx, testSketch(t, idx, doc...))
		require.NoError(t, err)
		for _, k := range got {
			switch k {
			case "near":
				nearHits++
			case "far":
				farHits++
			}
		}
		require.NoError(t, idx.Close(ctx))
	}

	assert.GreaterOrEqual(t, nearHits, 36, "near-duplicate recall too low")
	assert.LessOrEqual(t, farHits, 8, "dissimilar document retrieved too often")
}
