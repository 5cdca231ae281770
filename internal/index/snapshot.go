package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Error values for snapshot loading. Callers are expected to remediate by
// rebuilding the index; a load failure is never silently turned into an
// empty index.
var (
	// ErrSnapshotMissing indicates no snapshot file exists on disk.
	ErrSnapshotMissing = errors.New("index snapshot not found")

	// ErrSnapshotCorrupt indicates the snapshot file exists but could not be
	// decoded or is internally inconsistent.
	ErrSnapshotCorrupt = errors.New("index snapshot corrupt")

	// ErrModelMismatch indicates the snapshot was built with a different
	// embedding model than the one currently configured.
	ErrModelMismatch = errors.New("index snapshot built with different embedding model")
)

// Shadow holds the structured attributes of an asset used for pre-filtering
// and for the stats view. It mirrors the filterable subset of the asset
// record so searches never have to touch the relational store.
type Shadow struct {
	Name              string   `json:"name"`
	Artists           []string `json:"artists,omitempty"`
	Category          string   `json:"category,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	CompatibleFigures []string `json:"compatible_figures,omitempty"`
}

// EmbeddingRecord is one asset's entry in the vector index. The record is
// valid only while its ContentHash matches the asset's current hash and the
// snapshot's model matches the configured model.
type EmbeddingRecord struct {
	SKU         string    `json:"sku"`
	Vector      []float32 `json:"vector"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot is the full, internally consistent state of the vector index:
// one EmbeddingRecord per indexed asset plus the structured-attribute shadow,
// tagged with the model that produced the vectors. A snapshot is immutable
// once published; rebuilds produce a new one and swap it in atomically.
type Snapshot struct {
	ModelID   string                      `json:"model_id"`
	Dimension int                         `json:"dimension"`
	BuiltAt   time.Time                   `json:"built_at"`
	Records   map[string]*EmbeddingRecord `json:"records"`
	Shadows   map[string]*Shadow          `json:"shadows"`
}

// validate checks the snapshot's internal consistency: every embedding
// record has a shadow entry and vice versa, and all vectors share the
// snapshot dimension.
func (s *Snapshot) validate() error {
	if s.ModelID == "" {
		return fmt.Errorf("missing model id")
	}
	if len(s.Records) != len(s.Shadows) {
		return fmt.Errorf("record/shadow count mismatch: %d records, %d shadows", len(s.Records), len(s.Shadows))
	}
	for sku, rec := range s.Records {
		if rec.SKU != sku {
			return fmt.Errorf("record key %q does not match record SKU %q", sku, rec.SKU)
		}
		if _, ok := s.Shadows[sku]; !ok {
			return fmt.Errorf("record %q has no shadow entry", sku)
		}
		if len(rec.Vector) != s.Dimension {
			return fmt.Errorf("record %q has dimension %d, snapshot dimension is %d", sku, len(rec.Vector), s.Dimension)
		}
	}
	return nil
}

// saveSnapshot persists the snapshot atomically: write to a temp file in the
// same directory, then rename over the target. A crash mid-write leaves the
// previous snapshot intact.
func saveSnapshot(path string, s *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// loadSnapshot reads and validates a persisted snapshot. The model check
// against the configured model is the caller's responsibility; this only
// verifies the artifact itself.
func loadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotMissing, path)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if snap.Records == nil {
		snap.Records = make(map[string]*EmbeddingRecord)
	}
	if snap.Shadows == nil {
		snap.Shadows = make(map[string]*Shadow)
	}

	if err := snap.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	return &snap, nil
}
