package index

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
	"github.com/ramonehamilton/VAB-Companion/internal/embedding"
)

// fakeEmbedder produces deterministic vectors by counting vocabulary words
// in the input text. Texts sharing words end up closer in cosine distance,
// which is enough structure to exercise ranking.
type fakeEmbedder struct {
	model      string
	embedCalls atomic.Int64
	textsSent  atomic.Int64
}

var fakeVocabulary = []string{
	"cyberpunk", "gritty", "street", "clothes", "elegant",
	"silk", "gown", "props", "alley", "outfit",
}

func newFakeEmbedder(model string) *fakeEmbedder {
	return &fakeEmbedder{model: model}
}

func (f *fakeEmbedder) Initialize(ctx context.Context) error { return nil }

func (f *fakeEmbedder) ModelID() string { return f.model }

func (f *fakeEmbedder) Embed(ctx context.Context, text string, kind embedding.InputKind) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text}, kind)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, kind embedding.InputKind) ([][]float32, error) {
	f.embedCalls.Add(1)
	f.textsSent.Add(int64(len(texts)))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(fakeVocabulary)+1)
		vec[0] = 1 // bias so no vector has zero norm
		for j, word := range fakeVocabulary {
			vec[j+1] = float32(strings.Count(lower, word))
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func testAssets() []*assets.Asset {
	return []*assets.Asset{
		{
			SKU:         "A",
			Name:        "gritty cyberpunk street clothes",
			Category:    "Environments",
			Artists:     []string{"Stonemason"},
			Tags:        []string{"cyberpunk", "urban"},
			Description: "Gritty cyberpunk street clothes set.",
		},
		{
			SKU:               "B",
			Name:              "elegant silk gown",
			Category:          "Clothes",
			Artists:           []string{"Barbara Brundon"},
			Tags:              []string{"formal"},
			CompatibleFigures: []string{"Genesis 9"},
			Description:       "An elegant silk gown.",
		},
		{
			SKU:         "C",
			Name:        "cyberpunk back alley props",
			Category:    "Props",
			Artists:     []string{"Stonemason"},
			Tags:        []string{"cyberpunk", "props"},
			Description: "Cyberpunk back alley props collection.",
		},
	}
}

func newTestIndex(t *testing.T, embedder embedding.Embedder) *Index {
	t.Helper()
	ix, err := New(Config{
		Path:     filepath.Join(t.TempDir(), "index.json"),
		Embedder: embedder,
	})
	require.NoError(t, err)
	return ix
}

func TestRebuildCompleteness(t *testing.T) {
	ix := newTestIndex(t, newFakeEmbedder("m1"))

	result, err := ix.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Indexed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, StateReady, ix.State())

	// Every identity has exactly one record tagged with the current model.
	ix.mu.RLock()
	snap := ix.snapshot
	ix.mu.RUnlock()
	assert.Equal(t, "m1", snap.ModelID)
	assert.Len(t, snap.Records, 3)
	for _, sku := range []string{"A", "B", "C"} {
		rec, ok := snap.Records[sku]
		require.True(t, ok, "missing record for %s", sku)
		assert.Equal(t, sku, rec.SKU)
		assert.NotEmpty(t, rec.ContentHash)
		_, ok = snap.Shadows[sku]
		assert.True(t, ok, "missing shadow for %s", sku)
	}
}

func TestRebuildSkipsMalformedRecords(t *testing.T) {
	ix := newTestIndex(t, newFakeEmbedder("m1"))

	records := append(testAssets(),
		&assets.Asset{SKU: "empty"},        // nothing to normalize
		&assets.Asset{Name: "no identity"}, // missing SKU
	)
	result, err := ix.Rebuild(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Indexed)
	assert.Equal(t, 2, result.Skipped)
}

func TestSearchScenario(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	ix := newTestIndex(t, embedder)
	_, err := ix.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)

	queryVec, err := embedder.Embed(context.Background(), "cyberpunk", embedding.InputQuery)
	require.NoError(t, err)

	// No filter: all three are candidates, cyberpunk assets rank above B.
	matches, total, err := ix.Search(queryVec, Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, matches, 3)
	assert.Equal(t, "B", matches[2].SKU, "non-cyberpunk asset must rank last")
	cyberpunk := []string{matches[0].SKU, matches[1].SKU}
	assert.ElementsMatch(t, []string{"A", "C"}, cyberpunk)

	// Filtered: only B matches categories=Clothes.
	gownVec, err := embedder.Embed(context.Background(), "elegant gown", embedding.InputQuery)
	require.NoError(t, err)
	matches, total, err = ix.Search(gownVec, Filter{Categories: []string{"Clothes"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, matches, 1)
	assert.Equal(t, "B", matches[0].SKU)
}

func TestSearchOrderingDeterministic(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	ix := newTestIndex(t, embedder)

	// Two assets with identical text tie on distance; SKU breaks the tie.
	records := []*assets.Asset{
		{SKU: "Z-twin", Name: "identical product"},
		{SKU: "A-twin", Name: "identical product"},
		{SKU: "M-other", Name: "something else entirely"},
	}
	_, err := ix.Rebuild(context.Background(), records)
	require.NoError(t, err)

	queryVec, err := embedder.Embed(context.Background(), "identical product", embedding.InputQuery)
	require.NoError(t, err)

	var previous []Match
	for i := 0; i < 5; i++ {
		matches, _, err := ix.Search(queryVec, Filter{}, 0)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "A-twin", matches[0].SKU)
		assert.Equal(t, "Z-twin", matches[1].SKU)
		assert.Equal(t, matches[0].Distance, matches[1].Distance)
		if previous != nil {
			assert.Equal(t, previous, matches, "repeated identical queries must reproduce ordering")
		}
		previous = matches
	}

	// Ranking is monotonic non-decreasing in distance.
	for i := 1; i < len(previous); i++ {
		assert.GreaterOrEqual(t, previous[i].Distance, previous[i-1].Distance)
	}
}

func TestFiltersOnlyNarrow(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	ix := newTestIndex(t, embedder)
	_, err := ix.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)

	queryVec, err := embedder.Embed(context.Background(), "cyberpunk", embedding.InputQuery)
	require.NoError(t, err)

	_, unfiltered, err := ix.Search(queryVec, Filter{}, 0)
	require.NoError(t, err)

	_, byArtist, err := ix.Search(queryVec, Filter{Artists: []string{"Stonemason"}}, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, byArtist, unfiltered)

	_, narrower, err := ix.Search(queryVec, Filter{
		Artists:    []string{"Stonemason"},
		Categories: []string{"Props"},
	}, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, narrower, byArtist)
	assert.Equal(t, 1, narrower)
}

func TestSearchLimitDoesNotAffectTotal(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	ix := newTestIndex(t, embedder)
	_, err := ix.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)

	queryVec, err := embedder.Embed(context.Background(), "cyberpunk", embedding.InputQuery)
	require.NoError(t, err)

	matches, total, err := ix.Search(queryVec, Filter{}, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, 3, total)
}

func TestUpdateOnlyTouchesChangedRecords(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	ix := newTestIndex(t, embedder)

	records := testAssets()
	_, err := ix.Rebuild(context.Background(), records)
	require.NoError(t, err)

	ix.mu.RLock()
	beforeB := ix.snapshot.Records["B"]
	beforeC := ix.snapshot.Records["C"]
	ix.mu.RUnlock()

	sent := embedder.textsSent.Load()

	// Change A's description, drop C, add D.
	changed := &assets.Asset{
		SKU: "A", Name: "gritty cyberpunk street clothes", Category: "Environments",
		Artists: []string{"Stonemason"}, Tags: []string{"cyberpunk", "urban"},
		Description: "Now with rain-slick streets.",
	}
	added := &assets.Asset{SKU: "D", Name: "neon signage pack", Category: "Props"}
	result, err := ix.Update(context.Background(), []*assets.Asset{changed, records[1], added})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Indexed, "changed A and new D")
	assert.Equal(t, 1, result.Unchanged, "B untouched")
	assert.Equal(t, 1, result.Removed, "C removed")
	assert.Equal(t, int64(2), embedder.textsSent.Load()-sent, "only changed records re-embedded")

	ix.mu.RLock()
	snap := ix.snapshot
	ix.mu.RUnlock()

	// Unchanged record keeps its vector and timestamp.
	assert.Same(t, beforeB, snap.Records["B"])
	assert.Equal(t, beforeB.CreatedAt, snap.Records["B"].CreatedAt)
	_, hasC := snap.Records["C"]
	assert.False(t, hasC)
	_ = beforeC
	require.Contains(t, snap.Records, "D")
}

func TestUpdateNoOpWhenNothingChanged(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	ix := newTestIndex(t, embedder)

	records := testAssets()
	_, err := ix.Rebuild(context.Background(), records)
	require.NoError(t, err)

	sent := embedder.textsSent.Load()
	result, err := ix.Update(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Indexed)
	assert.Equal(t, 3, result.Unchanged)
	assert.Equal(t, int64(0), embedder.textsSent.Load()-sent)
}

func TestSearchRequiresReadyState(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	ix := newTestIndex(t, embedder)

	_, _, err := ix.Search([]float32{1}, Filter{}, 0)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestPersistenceRoundTrip(t *testing.T) {
	embedder := newFakeEmbedder("m1")
	path := filepath.Join(t.TempDir(), "index.json")

	ix, err := New(Config{Path: path, Embedder: embedder})
	require.NoError(t, err)
	_, err = ix.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)

	// A fresh process loads the snapshot and serves the same results.
	reloaded, err := New(Config{Path: path, Embedder: embedder})
	require.NoError(t, err)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, StateReady, reloaded.State())

	queryVec, err := embedder.Embed(context.Background(), "cyberpunk", embedding.InputQuery)
	require.NoError(t, err)

	before, _, err := ix.Search(queryVec, Filter{}, 0)
	require.NoError(t, err)
	after, _, err := reloaded.Search(queryVec, Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLoadMissingSnapshot(t *testing.T) {
	ix, err := New(Config{
		Path:     filepath.Join(t.TempDir(), "does-not-exist.json"),
		Embedder: newFakeEmbedder("m1"),
	})
	require.NoError(t, err)

	err = ix.Load()
	assert.ErrorIs(t, err, ErrSnapshotMissing)
	assert.Equal(t, StateUninitialized, ix.State())
}

func TestLoadModelMismatchGoesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")

	// Build under m1.
	builder, err := New(Config{Path: path, Embedder: newFakeEmbedder("m1")})
	require.NoError(t, err)
	_, err = builder.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)

	// Load with m2 configured: STALE, and queries fail with the staleness
	// error rather than a dimension-mismatch crash.
	ix, err := New(Config{Path: path, Embedder: newFakeEmbedder("m2")})
	require.NoError(t, err)
	err = ix.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.Equal(t, StateStale, ix.State())

	_, _, err = ix.Search([]float32{1, 2, 3}, Filter{}, 0)
	assert.ErrorIs(t, err, ErrStale)

	// Rebuilding under the configured model recovers to READY.
	_, err = ix.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)
	assert.Equal(t, StateReady, ix.State())
}

func TestStatsFromShadow(t *testing.T) {
	ix := newTestIndex(t, newFakeEmbedder("m1"))
	_, err := ix.Rebuild(context.Background(), testAssets())
	require.NoError(t, err)

	stats, err := ix.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAssets)
	assert.Equal(t, "m1", stats.ModelID)
	assert.Equal(t, "READY", stats.State)
	assert.WithinDuration(t, time.Now(), stats.BuiltAt, time.Minute)
	assert.Equal(t, 2, stats.Tags["cyberpunk"])
	assert.Equal(t, 2, stats.Artists["Stonemason"])
	assert.Equal(t, 1, stats.Categories["Clothes"])
	assert.Equal(t, 1, stats.Figures["Genesis 9"])
}

func TestStatsBeforeBuild(t *testing.T) {
	ix := newTestIndex(t, newFakeEmbedder("m1"))
	_, err := ix.Stats()
	assert.ErrorIs(t, err, ErrNotReady)
}
