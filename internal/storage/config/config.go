// Package config describes storage backend selection and connection
// parameters.
package config

import "fmt"

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendMongo  = "mongo"
)

// Config selects a storage backend and carries its connection parameters.
type Config struct {
	Backend string       `yaml:"backend" json:"backend"`
	Pebble  PebbleConfig `yaml:"pebble,omitempty" json:"pebble,omitempty"`
	Mongo   MongoConfig  `yaml:"mongo,omitempty" json:"mongo,omitempty"`
}

// PebbleConfig configures the embedded ordered-KV backend.
type PebbleConfig struct {
	// Path is the directory holding the pebble database.
	Path string `yaml:"path" json:"path"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string `yaml:"uri" json:"uri"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
}

// DefaultConfig returns an in-memory storage configuration.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory}
}

// Validate checks that the selected backend has the parameters it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendPebble:
		if c.Pebble.Path == "" {
			return fmt.Errorf("storage config: pebble backend requires a path")
		}
		return nil
	case BackendMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("storage config: mongo backend requires a uri")
		}
		if c.Mongo.Database == "" {
			return fmt.Errorf("storage config: mongo backend requires a database name")
		}
		return nil
	case "":
		return fmt.Errorf("storage config: backend is required")
	default:
		return fmt.Errorf("storage config: unsupported backend type: %s", c.Backend)
	}
}
