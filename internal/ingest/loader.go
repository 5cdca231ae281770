// Package ingest loads the DAZ library export into the asset store,
// enriching records from the store API where local metadata is incomplete.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
	"github.com/ramonehamilton/VAB-Companion/internal/daz"
)

// CheckpointIngested names the checkpoint recording the last successful
// export ingestion.
const CheckpointIngested = "last_ingested"

// Store is the persistence surface the loader writes to.
type Store interface {
	UpsertAssets(ctx context.Context, records []*assets.Asset) error
	GetAsset(ctx context.Context, sku string) (*assets.Asset, error)
	SetCheckpoint(ctx context.Context, name string, at time.Time) error
}

// Enricher fills store-derived fields of an asset.
type Enricher interface {
	Enrich(ctx context.Context, a *assets.Asset) error
}

// Result summarizes an ingestion run.
type Result struct {
	Total    int           // entries in the export
	Loaded   int           // records written to the store
	Enriched int           // records enriched from the store API
	Skipped  int           // entries without a usable SKU
	Failed   int           // enrichment failures (records still written)
	Duration time.Duration
}

// Config holds loader settings.
type Config struct {
	// Store receives the loaded records. Required.
	Store Store

	// Enricher fills missing store metadata. Nil disables enrichment.
	Enricher Enricher

	// Progress, when set, is called after each processed entry.
	Progress func(done, total int)

	// Logger receives loader diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Loader ingests library exports into the store.
type Loader struct {
	store    Store
	enricher Enricher
	progress func(done, total int)
	logger   *slog.Logger
}

// NewLoader creates a loader from the given configuration.
func NewLoader(config Config) (*Loader, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:    config.Store,
		enricher: config.Enricher,
		progress: config.Progress,
		logger:   logger,
	}, nil
}

// LoadExport ingests a products.json export. Entries without a SKU are
// skipped. Official-store records missing a product URL are enriched from
// the slab API when an enricher is configured; enrichment failures leave
// the record as exported. Records already enriched keep their store fields
// unless the export carries fresher ones.
func (l *Loader) LoadExport(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	products, err := daz.ReadExport(path)
	if err != nil {
		return nil, err
	}

	result := &Result{Total: len(products)}
	batch := make([]*assets.Asset, 0, len(products))

	for i, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a := p.ToAsset()
		if a == nil {
			l.logger.Warn("skipping export entry without SKU", "title", p.Title)
			result.Skipped++
			l.report(i+1, len(products))
			continue
		}

		if err := l.carryEnrichment(ctx, a); err != nil {
			return nil, err
		}

		if l.shouldEnrich(a) {
			if err := l.enricher.Enrich(ctx, a); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				l.logger.Warn("enrichment failed", "sku", a.SKU, "error", err)
				result.Failed++
			} else {
				result.Enriched++
			}
		}

		batch = append(batch, a)
		l.report(i+1, len(products))
	}

	if err := l.store.UpsertAssets(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to store loaded assets: %w", err)
	}
	result.Loaded = len(batch)

	if err := l.store.SetCheckpoint(ctx, CheckpointIngested, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to record ingest checkpoint: %w", err)
	}

	result.Duration = time.Since(start)
	l.logger.Info("export ingested",
		"total", result.Total,
		"loaded", result.Loaded,
		"enriched", result.Enriched,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, nil
}

// carryEnrichment copies previously fetched store fields onto a freshly
// exported record so reingesting does not discard them.
func (l *Loader) carryEnrichment(ctx context.Context, a *assets.Asset) error {
	existing, err := l.store.GetAsset(ctx, a.SKU)
	if err != nil {
		return fmt.Errorf("failed to look up existing asset %s: %w", a.SKU, err)
	}
	if existing == nil || existing.EnrichedAt == nil {
		return nil
	}

	if a.URL == "" {
		a.URL = existing.URL
	}
	if a.ImageURL == "" {
		a.ImageURL = existing.ImageURL
	}
	if !a.Mature {
		a.Mature = existing.Mature
	}
	if a.Category == "" {
		a.Category = existing.Category
	}
	if len(a.CompatibleFigures) == 0 {
		a.CompatibleFigures = existing.CompatibleFigures
	}
	a.EnrichedAt = existing.EnrichedAt
	return nil
}

// shouldEnrich reports whether a record needs a slab lookup. Only official
// store products are addressable by SKU, and records that already carry a
// product URL have nothing to fetch.
func (l *Loader) shouldEnrich(a *assets.Asset) bool {
	return l.enricher != nil && a.Source == assets.SourceOfficial && a.URL == ""
}

func (l *Loader) report(done, total int) {
	if l.progress != nil {
		l.progress(done, total)
	}
}
