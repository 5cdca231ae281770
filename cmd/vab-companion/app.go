package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ramonehamilton/VAB-Companion/internal/config"
	"github.com/ramonehamilton/VAB-Companion/internal/daz"
	"github.com/ramonehamilton/VAB-Companion/internal/embedding"
	"github.com/ramonehamilton/VAB-Companion/internal/index"
	"github.com/ramonehamilton/VAB-Companion/internal/ingest"
	"github.com/ramonehamilton/VAB-Companion/internal/search"
	"github.com/ramonehamilton/VAB-Companion/internal/storage"
)

// app wires the engine together: config, store, embedder, index, planner.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *storage.DB
	store    *storage.Service
	embedder *embedding.OllamaEmbedder
	index    *index.Index
	planner  *search.Planner
}

// newApp loads configuration and assembles the engine. A missing or stale
// index snapshot is not an error here; queries will report it.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if cfg.App.DebugMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	dbCfg := storage.DefaultConfig(dbPath)
	dbCfg.AutoMigrate = true
	db, err := storage.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	store := storage.NewService(db)

	reqTimeout, _ := cfg.GetRequestTimeout()
	infTimeout, _ := cfg.GetInferenceTimeout()
	embedder := embedding.NewOllamaEmbedder(&embedding.OllamaConfig{
		BaseURL:          cfg.Embedding.BaseURL,
		Model:            cfg.Embedding.Model,
		RequestTimeout:   reqTimeout,
		InferenceTimeout: infTimeout,
		AutoPullModel:    cfg.Embedding.AutoPullModel,
	}, logger)

	indexPath, err := cfg.IndexPath()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ix, err := index.New(index.Config{
		Path:      indexPath,
		Embedder:  embedder,
		BatchSize: cfg.Index.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ix.Load(); err != nil {
		switch {
		case errors.Is(err, index.ErrSnapshotMissing):
			logger.Debug("no index snapshot yet", "path", indexPath)
		case errors.Is(err, index.ErrModelMismatch):
			logger.Warn("index was built with a different model, reindex required")
		default:
			_ = db.Close()
			return nil, err
		}
	}

	planner, err := search.NewPlanner(embedder, ix, store, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		embedder: embedder,
		index:    ix,
		planner:  planner,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	_ = a.db.Close()
}

// newLauncher builds a Studio launcher from the configuration. Returns an
// error when no Studio executable is configured.
func (a *app) newLauncher() (*daz.Launcher, error) {
	scriptsDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	return daz.NewLauncher(a.cfg.DAZ.StudioExe, scriptsDir)
}

// newLoader builds an export loader, with slab enrichment unless disabled.
func (a *app) newLoader(enrich bool, progress func(done, total int)) (*ingest.Loader, error) {
	cfg := ingest.Config{
		Store:    a.store,
		Progress: progress,
		Logger:   a.logger,
	}
	if enrich {
		cfg.Enricher = daz.NewSlabClient(daz.SlabConfig{
			BaseURL:           a.cfg.DAZ.SlabBaseURL,
			RequestsPerSecond: a.cfg.DAZ.SlabRate,
		})
	}
	return ingest.NewLoader(cfg)
}

// updateSummary is the result of a combined load-and-reindex run.
type updateSummary struct {
	Ingest  *ingest.Result     `json:"ingest,omitempty"`
	Reindex *index.BuildResult `json:"reindex"`
}

// update ingests the configured export (when one is set) and brings the
// index up to date.
func (a *app) update(ctx context.Context, full bool, progress func(done, total int)) (*updateSummary, error) {
	summary := &updateSummary{}

	if a.cfg.DAZ.ExportPath != "" {
		loader, err := a.newLoader(true, progress)
		if err != nil {
			return nil, err
		}
		result, err := loader.LoadExport(ctx, a.cfg.DAZ.ExportPath)
		if err != nil {
			return nil, err
		}
		summary.Ingest = result
	}

	result, err := a.planner.Reindex(ctx, full)
	if err != nil {
		return nil, err
	}
	summary.Reindex = result
	return summary, nil
}
