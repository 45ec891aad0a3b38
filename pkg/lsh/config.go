package lsh

import (
	"fmt"
	"math"

	"github.com/yuzhao12/datasketch/internal/storage/config"
	"github.com/yuzhao12/datasketch/pkg/minhash"
)

// Storage configuration, re-exported so callers select and parameterize a
// backend without reaching into internal packages.
type (
	StorageConfig       = config.Config
	PebbleStorageConfig = config.PebbleConfig
	MongoStorageConfig  = config.MongoConfig
)

// Backend names for StorageConfig.Backend.
const (
	BackendMemory = config.BackendMemory
	BackendPebble = config.BackendPebble
	BackendMongo  = config.BackendMongo
)

// Weights balances the optimizer between false positives and false negatives.
// The two fields must sum to 1. The zero value means equal weighting.
type Weights struct {
	FalsePositive float64 `yaml:"false_positive" json:"false_positive"`
	FalseNegative float64 `yaml:"false_negative" json:"false_negative"`
}

// Config parameterizes an index. Threshold, NumPerm, Weights and Seed are
// fixed for the lifetime of the index; reconnecting to stored data requires
// the same values plus the same Basename.
type Config struct {
	// Threshold is the target Jaccard similarity in (0, 1].
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// NumPerm is the signature length every inserted sketch must have.
	NumPerm int `yaml:"num_perm" json:"num_perm"`

	// Weights tunes the banding optimizer. Zero value means 0.5/0.5.
	Weights Weights `yaml:"weights" json:"weights"`

	// Seed is the permutation seed inserted sketches must carry. Zero means
	// minhash.DefaultSeed.
	Seed uint64 `yaml:"seed" json:"seed"`

	// Basename namespaces this index's keys within the storage backend.
	// Generated randomly when empty; preserve it (via Snapshot) to reconnect
	// to the same stored index.
	Basename string `yaml:"basename" json:"basename"`

	// DisableDuplicateCheck skips the registry lookup on Insert, allowing
	// re-insertion of existing keys. Registry policy is last-write-wins.
	DisableDuplicateCheck bool `yaml:"disable_duplicate_check" json:"disable_duplicate_check"`

	// Storage selects and parameterizes the backend.
	Storage StorageConfig `yaml:"storage" json:"storage"`
}

// DefaultConfig returns a memory-backed configuration with the conventional
// sketching parameters.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.9,
		NumPerm:   minhash.DefaultNumPerm,
		Weights:   Weights{FalsePositive: 0.5, FalseNegative: 0.5},
		Seed:      minhash.DefaultSeed,
		Storage:   config.DefaultConfig(),
	}
}

const weightSumTolerance = 1e-9

// Validate checks construction parameters. Failures are permanent for the
// given inputs.
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("threshold must be in (0, 1], got %v", c.Threshold)}
	}
	if c.NumPerm <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("num_perm must be positive, got %d", c.NumPerm)}
	}
	w := c.Weights
	if w != (Weights{}) {
		if w.FalsePositive < 0 || w.FalseNegative < 0 {
			return &ConfigurationError{Reason: "weights must be non-negative"}
		}
		if math.Abs(w.FalsePositive+w.FalseNegative-1) > weightSumTolerance {
			return &ConfigurationError{Reason: fmt.Sprintf("weights must sum to 1, got %v", w.FalsePositive+w.FalseNegative)}
		}
	}
	if err := c.Storage.Validate(); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	return nil
}

// normalized fills defaulted fields in.
func (c Config) normalized() Config {
	if c.Weights == (Weights{}) {
		c.Weights = Weights{FalsePositive: 0.5, FalseNegative: 0.5}
	}
	if c.Seed == 0 {
		c.Seed = minhash.DefaultSeed
	}
	return c
}
