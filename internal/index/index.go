// Package index maintains the persistent vector index over the asset
// catalog: one embedding per asset plus a structured-attribute shadow used
// for pre-filtering. Searches run against an immutable snapshot; rebuilds
// produce a new snapshot and swap it in atomically, so in-flight searches
// always see a consistent (possibly superseded) view.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
	"github.com/ramonehamilton/VAB-Companion/internal/embedding"
)

// Error values for consistent error handling by callers.
var (
	// ErrNotReady indicates the index has never been built or loaded.
	ErrNotReady = errors.New("index not initialized")

	// ErrStale indicates the on-disk index no longer matches the configured
	// embedding model and must be rebuilt before queries are permitted.
	ErrStale = errors.New("index is stale")

	// ErrDimensionMismatch indicates a query vector's dimensionality does
	// not match the snapshot's.
	ErrDimensionMismatch = errors.New("query vector dimension mismatch")
)

// State describes the index lifecycle: UNINITIALIZED until a snapshot is
// built or loaded, READY while serving, STALE when the persisted snapshot
// was built under a different embedding model.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateStale
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateStale:
		return "STALE"
	default:
		return "UNINITIALIZED"
	}
}

// Match is one search hit: an asset identity and its cosine distance from
// the query vector (lower is better). Name is carried from the shadow so
// callers can sort or render a page without hydrating every candidate.
type Match struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// BuildResult summarizes a rebuild or update run.
type BuildResult struct {
	Indexed   int           `json:"indexed"`   // embeddings generated
	Unchanged int           `json:"unchanged"` // kept via content-hash no-op detection
	Removed   int           `json:"removed"`   // identities gone from the source
	Skipped   int           `json:"skipped"`   // malformed records (empty embedding text)
	Duration  time.Duration `json:"duration"`
}

// Config configures the vector index.
type Config struct {
	// Path is the snapshot file location.
	Path string

	// Embedder generates vectors during rebuild and update.
	Embedder embedding.Embedder

	// BatchSize is the number of texts per embedding batch during rebuilds.
	// Default: 32.
	BatchSize int

	// Logger for build progress. Default: slog.Default().
	Logger *slog.Logger
}

// Index is the persistent vector index. Searches may run concurrently; a
// rebuild swaps in a new snapshot under the write lock.
type Index struct {
	path      string
	embedder  embedding.Embedder
	batchSize int
	logger    *slog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot // immutable once published
	state    State
}

// New creates an index. Call Load to restore a persisted snapshot, or
// Rebuild to build one from scratch.
func New(cfg Config) (*Index, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Index{
		path:      cfg.Path,
		embedder:  cfg.Embedder,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
	}, nil
}

// State returns the current lifecycle state.
func (ix *Index) State() State {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.state
}

// Load restores the persisted snapshot. It fails explicitly rather than
// serving an empty index: ErrSnapshotMissing if none exists,
// ErrSnapshotCorrupt if it cannot be decoded, and ErrModelMismatch if it was
// built under a different embedding model (which leaves the index STALE so
// queries fail with a staleness error until a rebuild).
func (ix *Index) Load() error {
	snap, err := loadSnapshot(ix.path)
	if err != nil {
		return err
	}

	if snap.ModelID != ix.embedder.ModelID() {
		ix.mu.Lock()
		ix.state = StateStale
		ix.mu.Unlock()
		return fmt.Errorf("%w: snapshot has %q, configured model is %q",
			ErrModelMismatch, snap.ModelID, ix.embedder.ModelID())
	}

	ix.mu.Lock()
	ix.snapshot = snap
	ix.state = StateReady
	ix.mu.Unlock()

	ix.logger.Info("index snapshot loaded",
		"path", ix.path, "assets", len(snap.Records), "model", snap.ModelID)
	return nil
}

// Rebuild regenerates the entire index from the given records: normalize,
// embed in batches, persist, then atomically swap the new snapshot in.
// Malformed records (empty embedding text) are skipped and counted, never
// fatal for the run.
func (ix *Index) Rebuild(ctx context.Context, records []*assets.Asset) (*BuildResult, error) {
	start := time.Now()

	snap := &Snapshot{
		ModelID: ix.embedder.ModelID(),
		BuiltAt: start.UTC(),
		Records: make(map[string]*EmbeddingRecord, len(records)),
		Shadows: make(map[string]*Shadow, len(records)),
	}

	result := &BuildResult{}
	var toEmbed []*assets.Asset
	var texts []string
	for _, a := range records {
		text := assets.EmbeddingText(a)
		if a.SKU == "" || text == "" {
			result.Skipped++
			continue
		}
		toEmbed = append(toEmbed, a)
		texts = append(texts, text)
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i, a := range toEmbed {
		hash := a.ContentHash
		if hash == "" {
			hash = assets.ComputeContentHash(a)
		}
		snap.Records[a.SKU] = &EmbeddingRecord{
			SKU:         a.SKU,
			Vector:      vectors[i],
			ContentHash: hash,
			CreatedAt:   now,
		}
		snap.Shadows[a.SKU] = shadowOf(a)
		result.Indexed++
	}
	if len(vectors) > 0 {
		snap.Dimension = len(vectors[0])
	}

	if err := ix.publish(snap); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	ix.logger.Info("index rebuilt",
		"indexed", result.Indexed, "skipped", result.Skipped, "duration", result.Duration)
	return result, nil
}

// Update incrementally refreshes the index: only records whose content hash
// differs from the stored embedding (or whose identity is new) are
// re-embedded; identities no longer present in the source are removed;
// everything else keeps its vector and timestamp untouched. With no usable
// previous snapshot (never built, or built under another model) this is a
// full rebuild.
func (ix *Index) Update(ctx context.Context, records []*assets.Asset) (*BuildResult, error) {
	ix.mu.RLock()
	prev := ix.snapshot
	ix.mu.RUnlock()

	if prev == nil || prev.ModelID != ix.embedder.ModelID() {
		return ix.Rebuild(ctx, records)
	}

	start := time.Now()
	snap := &Snapshot{
		ModelID:   prev.ModelID,
		Dimension: prev.Dimension,
		BuiltAt:   start.UTC(),
		Records:   make(map[string]*EmbeddingRecord, len(records)),
		Shadows:   make(map[string]*Shadow, len(records)),
	}

	result := &BuildResult{}
	var toEmbed []*assets.Asset
	var texts []string
	var hashes []string

	for _, a := range records {
		text := assets.EmbeddingText(a)
		if a.SKU == "" || text == "" {
			result.Skipped++
			continue
		}
		hash := a.ContentHash
		if hash == "" {
			hash = assets.ComputeContentHash(a)
		}

		if existing, ok := prev.Records[a.SKU]; ok && existing.ContentHash == hash {
			snap.Records[a.SKU] = existing
			snap.Shadows[a.SKU] = shadowOf(a)
			result.Unchanged++
			continue
		}

		toEmbed = append(toEmbed, a)
		texts = append(texts, text)
		hashes = append(hashes, hash)
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i, a := range toEmbed {
		snap.Records[a.SKU] = &EmbeddingRecord{
			SKU:         a.SKU,
			Vector:      vectors[i],
			ContentHash: hashes[i],
			CreatedAt:   now,
		}
		snap.Shadows[a.SKU] = shadowOf(a)
		result.Indexed++
	}
	if snap.Dimension == 0 && len(vectors) > 0 {
		snap.Dimension = len(vectors[0])
	}

	for sku := range prev.Records {
		if _, ok := snap.Records[sku]; !ok {
			result.Removed++
		}
	}

	if err := ix.publish(snap); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	ix.logger.Info("index updated",
		"indexed", result.Indexed, "unchanged", result.Unchanged,
		"removed", result.Removed, "skipped", result.Skipped, "duration", result.Duration)
	return result, nil
}

// Search restricts candidates to identities passing the structured filter,
// computes cosine distance between the query vector and each candidate's
// embedding, and returns the full candidate set ordered by ascending
// distance (ties broken by ascending SKU, so results are deterministic).
// The filter is applied before distance computation, so the returned total
// is the true post-filter match count no matter how selective the filter is.
// A limit > 0 truncates the returned matches; the total is unaffected.
func (ix *Index) Search(queryVector []float32, filter Filter, limit int) ([]Match, int, error) {
	ix.mu.RLock()
	snap := ix.snapshot
	state := ix.state
	ix.mu.RUnlock()

	switch state {
	case StateReady:
		// proceed
	case StateStale:
		return nil, 0, ErrStale
	default:
		return nil, 0, ErrNotReady
	}

	if snap.Dimension != 0 && len(queryVector) != snap.Dimension {
		return nil, 0, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(queryVector), snap.Dimension)
	}

	matches := make([]Match, 0, len(snap.Records))
	for sku, shadow := range snap.Shadows {
		if !filter.Matches(shadow) {
			continue
		}
		rec := snap.Records[sku]
		matches = append(matches, Match{
			SKU:      sku,
			Name:     shadow.Name,
			Distance: cosineDistance(queryVector, rec.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].SKU < matches[j].SKU
	})

	total := len(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, total, nil
}

// embedAll embeds texts in fixed-size batches, honoring cancellation between
// batches. Returns one vector per text, in input order.
func (ix *Index) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += ix.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := offset + ix.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := ix.embedder.EmbedBatch(ctx, texts[offset:end], embedding.InputDocument)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch at offset %d: %w", offset, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// publish persists the snapshot and swaps it in for queries. Persist happens
// before the swap so a write failure never leaves queries running against
// state that will not survive a restart.
func (ix *Index) publish(snap *Snapshot) error {
	if err := snap.validate(); err != nil {
		return fmt.Errorf("refusing to publish inconsistent snapshot: %w", err)
	}
	if err := saveSnapshot(ix.path, snap); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.snapshot = snap
	ix.state = StateReady
	ix.mu.Unlock()
	return nil
}

// shadowOf extracts the filterable attributes of an asset.
func shadowOf(a *assets.Asset) *Shadow {
	return &Shadow{
		Name:              a.Name,
		Artists:           append([]string(nil), a.Artists...),
		Category:          a.Category,
		Tags:              append([]string(nil), a.Tags...),
		CompatibleFigures: append([]string(nil), a.CompatibleFigures...),
	}
}

// cosineDistance returns 1 - cosine similarity, so lower is more similar.
// Zero-norm vectors are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
