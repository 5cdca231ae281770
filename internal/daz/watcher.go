package daz

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ExportWatcher watches the products.json export for changes and invokes a
// callback once writes have settled. Studio rewrites the export in bursts,
// so events are debounced rather than handled one by one.
type ExportWatcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *slog.Logger
}

// WatcherConfig holds export watcher settings.
type WatcherConfig struct {
	// Path is the export file to watch.
	Path string

	// Debounce is how long writes must settle before OnChange fires.
	// Zero means 2 seconds.
	Debounce time.Duration

	// OnChange is invoked after the export has settled.
	OnChange func(ctx context.Context)

	// Logger receives watcher diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// NewExportWatcher creates a watcher for the given export file.
func NewExportWatcher(config WatcherConfig) (*ExportWatcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("watcher path cannot be empty")
	}
	if config.OnChange == nil {
		return nil, fmt.Errorf("watcher callback cannot be nil")
	}

	debounce := config.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ExportWatcher{
		path:     config.Path,
		debounce: debounce,
		onChange: config.OnChange,
		logger:   logger,
	}, nil
}

// Run watches until the context is cancelled. The parent directory is
// watched rather than the file itself so replace-by-rename is seen.
func (w *ExportWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch export directory: %w", err)
	}

	w.logger.Info("watching library export", "path", w.path, "debounce", w.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("export changed", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err := <-watcher.Errors:
			w.logger.Warn("file watcher error", "error", err)

		case <-timerC:
			w.logger.Info("export settled, reingesting")
			w.onChange(ctx)
			timer = nil
			timerC = nil
		}
	}
}
