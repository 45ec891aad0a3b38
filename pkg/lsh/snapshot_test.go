package lsh

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_EncodeDecode(t *testing.T) {
	t.Parallel()
	idx := newMemIndex(t, func(c *Config) {
		c.Threshold = 0.6
		c.Basename = "snap-test"
	})

	snap := idx.Snapshot()
	assert.Equal(t, "snap-test", snap.Basename)
	assert.Equal(t, 0.6, snap.Threshold)
	b, r := idx.Params()
	assert.Equal(t, b, snap.Bands)
	assert.Equal(t, r, snap.Rows)

	data, err := snap.Encode()
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeSnapshot([]byte("not json"))
	assert.Error(t, err)

	snap := newMemIndex(t).Snapshot()
	snap.Version = 99
	data, err := snap.Encode()
	require.NoError(t, err)
	_, err = DecodeSnapshot(data)
	assert.Error(t, err)
}

func TestRestore_RejectsBadBandConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	snap := newMemIndex(t).Snapshot()

	var cerr *ConfigurationError

	bad := snap
	bad.Bands = 0
	_, err := Restore(ctx, bad)
	assert.ErrorAs(t, err, &cerr)

	bad = snap
	bad.Bands = snap.NumPerm
	bad.Rows = 2
	_, err = Restore(ctx, bad)
	assert.ErrorAs(t, err, &cerr)

	bad = snap
	bad.Basename = ""
	_, err = Restore(ctx, bad)
	assert.ErrorAs(t, err, &cerr)
}

func TestRestore_ReconnectsToPersistedIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Threshold = 0.5
	cfg.Storage = StorageConfig{
		Backend: BackendPebble,
		Pebble:  PebbleStorageConfig{Path: t.TempDir()},
	}

	idx, err := New(ctx, cfg)
	require.NoError(t, err)

	docs := map[string][]string{}
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("doc-%d", i)
		for j := 0; j < 20; j++ {
			docs[key] = append(docs[key], fmt.Sprintf("tok-%d-%d", i, j))
		}
		require.NoError(t, idx.Insert(ctx, key, testSketch(t, idx, docs[key]...)))
	}

	snap := idx.Snapshot()
	data, err := snap.Encode()
	require.NoError(t, err)
	require.NoError(t, idx.Close(ctx))

	// A fresh process would decode the snapshot and reattach.
	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	restored, err := Restore(ctx, decoded)
	require.NoError(t, err)
	defer restored.Close(ctx)

	b, r := restored.Params()
	assert.Equal(t, snap.Bands, b)
	assert.Equal(t, snap.Rows, r)
	assert.Equal(t, snap.Basename, restored.Basename())

	keys, err := restored.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 5)

	for key, doc := range docs {
		got, err := restored.Query(ctx, testSketch(t, restored, doc...))
		require.NoError(t, err)
		assert.Contains(t, got, key, "restored index lost %s", key)
	}
}
