// Package search orchestrates hybrid queries: embed the prompt, pre-filter
// by structured predicates, rank by cosine distance, paginate, and hydrate
// the winning assets from storage.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
	"github.com/ramonehamilton/VAB-Companion/internal/embedding"
	"github.com/ramonehamilton/VAB-Companion/internal/index"
)

// Error values for consistent error handling by callers. Input errors are
// rejected before any embedding or search work happens.
var (
	ErrEmptyPrompt  = errors.New("query prompt is empty")
	ErrInvalidPage  = errors.New("invalid pagination parameters")
	ErrInvalidSort  = errors.New("invalid sort parameters")
	ErrAssetMissing = errors.New("indexed asset missing from store")
)

// Sort field and order values accepted by Request.
const (
	SortByRelevance = "relevance"
	SortByName      = "name"

	SortAscending  = "ascending"
	SortDescending = "descending"
)

// DefaultPageSize is used when a request does not specify a limit.
const DefaultPageSize = 10

// AssetSource is the planner's view of the asset record store: enumeration
// for reindexing, single-record lookup for result hydration, and a
// checkpoint write-back so the store knows when it was last indexed.
type AssetSource interface {
	ListAssets(ctx context.Context) ([]*assets.Asset, error)
	GetAsset(ctx context.Context, sku string) (*assets.Asset, error)
	SetCheckpoint(ctx context.Context, name string, at time.Time) error
}

// Request is one hybrid query.
type Request struct {
	Prompt string       `json:"prompt"`
	Filter index.Filter `json:"filter"`

	// Limit is the page size; 0 means DefaultPageSize.
	Limit int `json:"limit"`
	// Offset is the rank of the first result to return.
	Offset int `json:"offset"`

	// ScoreThreshold drops candidates with a cosine distance above it.
	// 0 disables the threshold.
	ScoreThreshold float64 `json:"score_threshold"`

	// SortBy is "relevance" (default) or "name". SortOrder is "ascending"
	// or "descending" and only applies to non-relevance sorts.
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

// Hit is one ranked result with its hydrated asset record.
type Hit struct {
	Rank     int           `json:"rank"`
	Distance float64       `json:"distance"`
	Asset    *assets.Asset `json:"asset"`
}

// Result is a page of ranked results. TotalHits counts the full filtered
// candidate set, before pagination.
type Result struct {
	TotalHits int    `json:"total_hits"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	ModelID   string `json:"model_id"`
	Hits      []Hit  `json:"results"`
}

// Planner wires the embedding provider, the vector index, and the asset
// store into the engine's public operations: query, reindex, and health.
type Planner struct {
	embedder embedding.Embedder
	index    *index.Index
	store    AssetSource
	logger   *slog.Logger
}

// NewPlanner creates a query planner.
func NewPlanner(embedder embedding.Embedder, ix *index.Index, store AssetSource, logger *slog.Logger) (*Planner, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if ix == nil {
		return nil, fmt.Errorf("index is required")
	}
	if store == nil {
		return nil, fmt.Errorf("asset store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{embedder: embedder, index: ix, store: store, logger: logger}, nil
}

// Query runs one hybrid query. Ordering is stable for a fixed snapshot and
// query; paginating beyond the total returns an empty page, not an error;
// and an empty candidate set is success with zero hits.
func (p *Planner) Query(ctx context.Context, req Request) (*Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 0 || req.Offset < 0 {
		return nil, fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidPage, req.Limit, req.Offset)
	}

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = SortByRelevance
	}
	if sortBy != SortByRelevance && sortBy != SortByName {
		return nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidSort, req.SortBy)
	}
	sortOrder := req.SortOrder
	if sortOrder == "" {
		sortOrder = SortAscending
	}
	if sortOrder != SortAscending && sortOrder != SortDescending {
		return nil, fmt.Errorf("%w: unknown sort order %q", ErrInvalidSort, req.SortOrder)
	}

	queryVector, err := p.embedder.Embed(ctx, prompt, embedding.InputQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, _, err := p.index.Search(queryVector, req.Filter, 0)
	if err != nil {
		return nil, err
	}

	if req.ScoreThreshold > 0 {
		kept := matches[:0]
		for _, m := range matches {
			if m.Distance <= req.ScoreThreshold {
				kept = append(kept, m)
			}
		}
		matches = kept
	}

	if sortBy == SortByName {
		sort.SliceStable(matches, func(i, j int) bool {
			if sortOrder == SortDescending {
				return matches[i].Name > matches[j].Name
			}
			return matches[i].Name < matches[j].Name
		})
	}

	total := len(matches)
	page := paginate(matches, req.Offset, limit)

	hits := make([]Hit, 0, len(page))
	for i, m := range page {
		asset, err := p.store.GetAsset(ctx, m.SKU)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate asset %s: %w", m.SKU, err)
		}
		if asset == nil {
			return nil, fmt.Errorf("%w: %s", ErrAssetMissing, m.SKU)
		}
		hits = append(hits, Hit{
			Rank:     req.Offset + i + 1,
			Distance: m.Distance,
			Asset:    asset,
		})
	}

	return &Result{
		TotalHits: total,
		Limit:     limit,
		Offset:    req.Offset,
		ModelID:   p.embedder.ModelID(),
		Hits:      hits,
	}, nil
}

// Reindex regenerates the vector index from the asset store. With full set
// the entire snapshot is rebuilt; otherwise only records whose content hash
// drifted are re-embedded. The store's last-indexed checkpoint is advanced
// on success.
func (p *Planner) Reindex(ctx context.Context, full bool) (*index.BuildResult, error) {
	// Surface model-load failures before touching the store or index.
	if err := p.embedder.Initialize(ctx); err != nil {
		return nil, err
	}

	records, err := p.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate assets: %w", err)
	}

	var result *index.BuildResult
	if full {
		result, err = p.index.Rebuild(ctx, records)
	} else {
		result, err = p.index.Update(ctx, records)
	}
	if err != nil {
		return nil, err
	}

	if err := p.store.SetCheckpoint(ctx, "last_indexed", time.Now().UTC()); err != nil {
		p.logger.Warn("failed to record index checkpoint", "error", err)
	}
	return result, nil
}

// State returns the index lifecycle state for health reporting.
func (p *Planner) State() index.State {
	return p.index.State()
}

// Stats returns snapshot summary statistics.
func (p *Planner) Stats() (*index.Stats, error) {
	return p.index.Stats()
}

// paginate slices [offset, offset+limit) out of matches, returning an empty
// page when the offset is past the end.
func paginate(matches []index.Match, offset, limit int) []index.Match {
	if offset >= len(matches) {
		return nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end]
}
