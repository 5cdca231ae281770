package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ramonehamilton/VAB-Companion/internal/index"
	"github.com/ramonehamilton/VAB-Companion/internal/ingest"
	"github.com/ramonehamilton/VAB-Companion/internal/search"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(result *search.Result) {
	if result.TotalHits == 0 {
		fmt.Println("No matching products.")
		return
	}

	last := result.Offset + len(result.Hits)
	fmt.Printf("Showing %d-%d of %d matches (model %s)\n\n",
		result.Offset+1, last, result.TotalHits, result.ModelID)

	for _, hit := range result.Hits {
		a := hit.Asset
		fmt.Printf("%3d. [%.4f] %s (%s)\n", hit.Rank, hit.Distance, a.Name, a.SKU)
		var details []string
		if len(a.Artists) > 0 {
			details = append(details, "by "+strings.Join(a.Artists, ", "))
		}
		if a.Category != "" {
			details = append(details, a.Category)
		}
		if len(a.CompatibleFigures) > 0 {
			details = append(details, strings.Join(a.CompatibleFigures, ", "))
		}
		if len(details) > 0 {
			fmt.Printf("     %s\n", strings.Join(details, " | "))
		}
		if a.URL != "" {
			fmt.Printf("     %s\n", a.URL)
		}
	}
}

func printStats(state index.State, stats *index.Stats) {
	fmt.Printf("Index state:  %s\n", state)
	fmt.Printf("Model:        %s\n", stats.ModelID)
	fmt.Printf("Built:        %s\n", stats.BuiltAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Products:     %d\n", stats.TotalAssets)

	printHistogram("Categories", stats.Categories)
	printHistogram("Figures", stats.Figures)
}

// printHistogram prints the top entries of a count map, largest first.
func printHistogram(label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}

	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	const topN = 10
	fmt.Printf("\n%s:\n", label)
	for i, e := range entries {
		if i == topN {
			fmt.Printf("  ... and %d more\n", len(entries)-topN)
			break
		}
		fmt.Printf("  %-30s %d\n", e.name, e.count)
	}
}

func printLoadResult(result *ingest.Result) {
	fmt.Printf("Loaded %d of %d products (%d enriched, %d skipped, %d enrichment failures) in %s\n",
		result.Loaded, result.Total, result.Enriched, result.Skipped, result.Failed,
		result.Duration.Round(10*time.Millisecond))
}

func printBuildResult(result *index.BuildResult) {
	fmt.Printf("Indexed %d products (%d unchanged, %d removed, %d skipped) in %s\n",
		result.Indexed, result.Unchanged, result.Removed, result.Skipped,
		result.Duration.Round(10*time.Millisecond))
}
