package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzhao12/datasketch/internal/storage/config"
	"github.com/yuzhao12/datasketch/internal/storage/memory"
	"github.com/yuzhao12/datasketch/internal/storage/types"
)

func TestOpen_Memory(t *testing.T) {
	store, err := Open(context.Background(), config.DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
}

func TestOpen_DispatchesByBackend(t *testing.T) {
	fake := memory.New()

	origMongo, origPebble := openMongo, openPebble
	t.Cleanup(func() { openMongo, openPebble = origMongo, origPebble })

	var gotMongo config.MongoConfig
	openMongo = func(ctx context.Context, cfg config.MongoConfig) (types.Store, error) {
		gotMongo = cfg
		return fake, nil
	}
	var gotPebble config.PebbleConfig
	openPebble = func(cfg config.PebbleConfig) (types.Store, error) {
		gotPebble = cfg
		return fake, nil
	}

	store, err := Open(context.Background(), config.Config{
		Backend: config.BackendMongo,
		Mongo:   config.MongoConfig{URI: "mongodb://localhost:27017", Database: "db"},
	})
	require.NoError(t, err)
	assert.Same(t, fake, store)
	assert.Equal(t, "db", gotMongo.Database)

	store, err = Open(context.Background(), config.Config{
		Backend: config.BackendPebble,
		Pebble:  config.PebbleConfig{Path: "/tmp/db"},
	})
	require.NoError(t, err)
	assert.Same(t, fake, store)
	assert.Equal(t, "/tmp/db", gotPebble.Path)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cases := []config.Config{
		{},
		{Backend: "cassandra"},
		{Backend: config.BackendPebble},
		{Backend: config.BackendMongo},
		{Backend: config.BackendMongo, Mongo: config.MongoConfig{URI: "mongodb://x"}},
	}
	for _, cfg := range cases {
		_, err := Open(context.Background(), cfg)
		assert.Error(t, err, "config %+v", cfg)
	}
}
