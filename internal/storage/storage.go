// Package storage opens storage backends from configuration and provides the
// buffered write session shared by all of them.
package storage

import (
	"context"
	"fmt"

	"github.com/yuzhao12/datasketch/internal/storage/config"
	"github.com/yuzhao12/datasketch/internal/storage/memory"
	"github.com/yuzhao12/datasketch/internal/storage/mongo"
	"github.com/yuzhao12/datasketch/internal/storage/pebble"
	"github.com/yuzhao12/datasketch/internal/storage/types"
)

// Re-exported for callers that only import the root storage package.
type (
	Store        = types.Store
	Batch        = types.Batch
	StorageError = types.StorageError
	Config       = config.Config
)

// Dependency injection points for testing.
var (
	openMongo = func(ctx context.Context, cfg config.MongoConfig) (types.Store, error) {
		return mongo.Open(ctx, cfg.URI, cfg.Database, cfg.Collection)
	}
	openPebble = func(cfg config.PebbleConfig) (types.Store, error) {
		return pebble.Open(cfg.Path)
	}
)

// Open validates cfg and connects the selected backend.
func Open(ctx context.Context, cfg config.Config) (types.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendPebble:
		return openPebble(cfg.Pebble)
	case config.BackendMongo:
		return openMongo(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("storage: unsupported backend type: %s", cfg.Backend)
	}
}
