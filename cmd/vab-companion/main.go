package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/VAB-Companion/internal/api"
	"github.com/ramonehamilton/VAB-Companion/internal/daz"
	"github.com/ramonehamilton/VAB-Companion/internal/index"
	"github.com/ramonehamilton/VAB-Companion/internal/search"
	"github.com/ramonehamilton/VAB-Companion/internal/version"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "vab-companion",
		Short:         "Semantic search companion for a DAZ 3D asset library",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newQueryCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newLoadCommand())
	root.AddCommand(newReindexCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newOpenCommand())
	return root
}

func newQueryCommand() *cobra.Command {
	var (
		limit      int
		offset     int
		threshold  float64
		sortBy     string
		sortOrder  string
		categories []string
		figures    []string
		artists    []string
		tags       []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "query [flags] PROMPT...",
		Short: "Search the library by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.planner.Query(cmd.Context(), search.Request{
				Prompt: strings.Join(args, " "),
				Filter: index.Filter{
					Categories:        categories,
					CompatibleFigures: figures,
					Artists:           artists,
					Tags:              tags,
				},
				Limit:          limit,
				Offset:         offset,
				ScoreThreshold: threshold,
				SortBy:         sortBy,
				SortOrder:      sortOrder,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(result)
			}
			printResult(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "page size (default 10)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rank of the first result")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "drop results with a cosine distance above this (0 = off)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort field: relevance or name")
	cmd.Flags().StringVar(&sortOrder, "order", "", "sort order: ascending or descending")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "filter by category (repeatable)")
	cmd.Flags().StringSliceVar(&figures, "figure", nil, "filter by compatible figure (repeatable)")
	cmd.Flags().StringSliceVar(&artists, "artist", nil, "filter by artist substring (repeatable)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "filter by tag (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output raw JSON")
	return cmd
}

func newStatsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index state and library statistics",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.planner.Stats()
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(stats)
			}
			printStats(app.planner.State(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output raw JSON")
	return cmd
}

func newLoadCommand() *cobra.Command {
	var (
		exportPath string
		fetch      bool
		noEnrich   bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Ingest the DAZ library export into the asset store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			path := exportPath
			if path == "" {
				path = app.cfg.DAZ.ExportPath
			}
			if path == "" {
				return fmt.Errorf("no export path given (use --export or set daz.export_path)")
			}

			if fetch {
				launcher, err := app.newLauncher()
				if err != nil {
					return err
				}
				fmt.Println("Running DAZ Studio metadata export...")
				if err := launcher.ExportProducts(cmd.Context(), path, ""); err != nil {
					return err
				}
			}

			loader, err := app.newLoader(!noEnrich, func(done, total int) {
				fmt.Printf("\rProcessing %d/%d", done, total)
			})
			if err != nil {
				return err
			}

			result, err := loader.LoadExport(cmd.Context(), path)
			if err != nil {
				fmt.Println()
				return err
			}
			fmt.Println()
			printLoadResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&exportPath, "export", "", "path to products.json (default from config)")
	cmd.Flags().BoolVar(&fetch, "fetch", false, "run the DAZ Studio export script first")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "skip slab API enrichment")
	return cmd
}

func newReindexCommand() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Bring the semantic index up to date with the asset store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.planner.Reindex(cmd.Context(), full)
			if err != nil {
				return err
			}
			printBuildResult(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "rebuild every record instead of updating changed ones")
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			var opener *daz.Launcher
			if app.cfg.DAZ.StudioExe != "" {
				opener, err = app.newLauncher()
				if err != nil {
					app.logger.Warn("studio launcher unavailable", "error", err)
					opener = nil
				}
			}

			serverCfg := api.Config{
				Host:   app.cfg.Server.Host,
				Port:   app.cfg.Server.Port,
				Query:  app.planner,
				Store:  app.store,
				Logger: app.logger,
				Update: func(ctx context.Context, full bool, progress func(done, total int)) (interface{}, error) {
					return app.update(ctx, full, progress)
				},
			}
			if opener != nil {
				serverCfg.Opener = opener
			}

			server, err := api.NewServer(serverCfg)
			if err != nil {
				return err
			}
			if err := server.Start(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if app.cfg.DAZ.WatchExport && app.cfg.DAZ.ExportPath != "" {
				debounce, _ := app.cfg.GetWatchDebounce()
				watcher, err := daz.NewExportWatcher(daz.WatcherConfig{
					Path:     app.cfg.DAZ.ExportPath,
					Debounce: debounce,
					Logger:   app.logger,
					OnChange: func(ctx context.Context) {
						if _, err := app.update(ctx, false, nil); err != nil {
							app.logger.Error("automatic update failed", "error", err)
						}
					},
				})
				if err != nil {
					return err
				}
				go func() {
					if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
						app.logger.Error("export watcher stopped", "error", err)
					}
				}()
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newOpenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open SKU",
		Short: "Open a product in DAZ Studio's content library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			asset, err := app.store.GetAsset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asset == nil {
				return fmt.Errorf("no product with SKU %s", args[0])
			}

			launcher, err := app.newLauncher()
			if err != nil {
				return err
			}
			if err := launcher.OpenProduct(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Opened %s (%s) in DAZ Studio\n", asset.Name, asset.SKU)
			return nil
		},
	}
}
