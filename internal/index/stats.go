package index

import "time"

// Stats summarizes the current snapshot for the stats view: totals, the
// model in use, and frequency histograms of the filterable fields. Computed
// by iterating the shadow, never by re-deriving from raw metadata.
type Stats struct {
	TotalAssets int            `json:"total_assets"`
	ModelID     string         `json:"model_id"`
	BuiltAt     time.Time      `json:"built_at"`
	State       string         `json:"state"`
	Categories  map[string]int `json:"categories"`
	Tags        map[string]int `json:"tags"`
	Artists     map[string]int `json:"artists"`
	Figures     map[string]int `json:"compatible_figures"`
}

// Stats returns summary statistics for the current snapshot. Available in
// READY and STALE (a stale snapshot is still inspectable); fails with
// ErrNotReady before any snapshot exists.
func (ix *Index) Stats() (*Stats, error) {
	ix.mu.RLock()
	snap := ix.snapshot
	state := ix.state
	ix.mu.RUnlock()

	if snap == nil {
		return nil, ErrNotReady
	}

	stats := &Stats{
		TotalAssets: len(snap.Records),
		ModelID:     snap.ModelID,
		BuiltAt:     snap.BuiltAt,
		State:       state.String(),
		Categories:  make(map[string]int),
		Tags:        make(map[string]int),
		Artists:     make(map[string]int),
		Figures:     make(map[string]int),
	}

	for _, shadow := range snap.Shadows {
		if shadow.Category != "" {
			stats.Categories[shadow.Category]++
		}
		for _, tag := range shadow.Tags {
			stats.Tags[tag]++
		}
		for _, artist := range shadow.Artists {
			stats.Artists[artist]++
		}
		for _, figure := range shadow.CompatibleFigures {
			stats.Figures[figure]++
		}
	}

	return stats, nil
}
