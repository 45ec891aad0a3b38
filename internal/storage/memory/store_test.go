package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzhao12/datasketch/internal/storage/types"
)

func TestStore_SetSemantics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.PutInSet(ctx, "k", []byte("a")))
	require.NoError(t, s.PutInSet(ctx, "k", []byte("b")))
	// Duplicate members collapse.
	require.NoError(t, s.PutInSet(ctx, "k", []byte("a")))

	members, err := s.GetSet(ctx, "k")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("a"), []byte("b")}, members)

	require.NoError(t, s.RemoveFromSet(ctx, "k", []byte("a")))
	members, err = s.GetSet(ctx, "k")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("b")}, members)

	// Removing the last member drops the key entirely.
	require.NoError(t, s.RemoveFromSet(ctx, "k", []byte("b")))
	keys, err := s.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_MissingKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	members, err := s.GetSet(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, members)

	assert.NoError(t, s.RemoveFromSet(ctx, "absent", []byte("x")))
	assert.NoError(t, s.DeleteKey(ctx, "absent"))
}

func TestStore_ListKeysPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	for _, k := range []string{"idx:band:0", "idx:band:1", "idx:registry", "other"} {
		require.NoError(t, s.PutInSet(ctx, k, []byte("m")))
	}

	keys, err := s.ListKeys(ctx, "idx:band:")
	require.NoError(t, err)
	assert.Equal(t, []string{"idx:band:0", "idx:band:1"}, keys)

	keys, err = s.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"idx:band:0", "idx:band:1", "idx:registry", "other"}, keys)
}

func TestStore_MemberIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	member := []byte("mutable")
	require.NoError(t, s.PutInSet(ctx, "k", member))
	member[0] = 'X'

	got, err := s.GetSet(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("mutable"), got[0])

	// Mutating returned slices must not leak back into the store.
	got[0][0] = 'Y'
	again, err := s.GetSet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), again[0])
}

func TestStore_Batch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.PutInSet(ctx, "gone", []byte("m")))

	b := s.Batch()
	b.PutInSet("k1", []byte("a"))
	b.PutInSet("k1", []byte("b"))
	b.PutInSet("k2", []byte("c"))
	b.RemoveFromSet("k1", []byte("b"))
	b.DeleteKey("gone")
	assert.Equal(t, 5, b.Len())

	// Nothing visible before commit.
	keys, err := s.ListKeys(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, b.Commit(ctx))
	assert.Equal(t, 0, b.Len())

	m1, err := s.GetSet(ctx, "k1")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("a")}, m1)
	m2, err := s.GetSet(ctx, "k2")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("c")}, m2)
	keys, err = s.ListKeys(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_Closed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Close(ctx))

	err := s.PutInSet(ctx, "k", []byte("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStoreClosed)

	var serr *types.StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "putInSet", serr.Op)
	assert.Equal(t, "k", serr.Key)

	_, err = s.GetSet(ctx, "k")
	assert.ErrorIs(t, err, types.ErrStoreClosed)
	_, err = s.ListKeys(ctx, "")
	assert.ErrorIs(t, err, types.ErrStoreClosed)
	assert.ErrorIs(t, s.Batch().Commit(ctx), types.ErrStoreClosed)
}
