package lsh

import (
	"context"
	"encoding/json"
	"fmt"
)

// Snapshot is a serializable handle to an index: everything needed to
// reconnect to the same stored data from another process without re-running
// the optimizer. It carries configuration and the storage descriptor, never
// the indexed data itself, which stays in the backend.
type Snapshot struct {
	Version   int           `json:"version" yaml:"version"`
	Threshold float64       `json:"threshold" yaml:"threshold"`
	NumPerm   int           `json:"num_perm" yaml:"num_perm"`
	Seed      uint64        `json:"seed" yaml:"seed"`
	Weights   Weights       `json:"weights" yaml:"weights"`
	Bands     int           `json:"bands" yaml:"bands"`
	Rows      int           `json:"rows" yaml:"rows"`
	Basename  string        `json:"basename" yaml:"basename"`
	Storage   StorageConfig `json:"storage" yaml:"storage"`
}

const snapshotVersion = 1

// Snapshot captures the index handle.
func (idx *Index) Snapshot() Snapshot {
	return Snapshot{
		Version:   snapshotVersion,
		Threshold: idx.cfg.Threshold,
		NumPerm:   idx.cfg.NumPerm,
		Seed:      idx.cfg.Seed,
		Weights:   idx.cfg.Weights,
		Bands:     idx.bands,
		Rows:      idx.rows,
		Basename:  idx.cfg.Basename,
		Storage:   idx.cfg.Storage,
	}
}

// Encode serializes the snapshot as JSON.
func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses a snapshot produced by Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("lsh: decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("lsh: unsupported snapshot version %d", s.Version)
	}
	return s, nil
}

// Restore reattaches to the index the snapshot describes, reusing its band
// configuration instead of re-running the optimizer. The backend must hold
// the data written under the snapshot's basename for queries to see it.
func Restore(ctx context.Context, s Snapshot, opts ...Options) (*Index, error) {
	cfg := Config{
		Threshold: s.Threshold,
		NumPerm:   s.NumPerm,
		Seed:      s.Seed,
		Weights:   s.Weights,
		Basename:  s.Basename,
		Storage:   s.Storage,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	if s.Bands <= 0 || s.Rows <= 0 || s.Bands*s.Rows > s.NumPerm {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid band configuration %dx%d for num_perm=%d", s.Bands, s.Rows, s.NumPerm)}
	}
	if s.Basename == "" {
		return nil, &ConfigurationError{Reason: "snapshot basename is empty"}
	}

	return newIndex(ctx, cfg, s.Bands, s.Rows, opts...)
}
