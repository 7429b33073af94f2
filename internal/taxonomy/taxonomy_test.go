package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns canned vectors: one per category text (keyed by the
// category's embed text) and one for query texts.
type fakeEmbedder struct {
	byText  map[string][]float64
	query   []float64
	failAll bool
	calls   int
	model   string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	if f.failAll {
		return nil, errors.New("embedding service down")
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := f.byText[text]; ok {
			out[i] = v
		} else {
			out[i] = f.query
		}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string {
	if f.model != "" {
		return f.model
	}
	return "test-embedding-model"
}

func newTestManager(t *testing.T, emb *fakeEmbedder) *Manager {
	t.Helper()
	return NewManager(Config{CacheDir: t.TempDir(), TTLDays: 30}, emb)
}

// axisEmbedder gives every category a distinct axis-aligned vector so cosine
// similarities against a query are easy to reason about.
func axisEmbedder(query []float64) *fakeEmbedder {
	cats := Categories()
	byText := make(map[string][]float64, len(cats))
	for i, c := range cats {
		v := make([]float64, len(cats))
		v[i] = 1
		byText[c.EmbedText()] = v
	}
	return &fakeEmbedder{byText: byText, query: query}
}

func TestLoadPopulatesEmbeddings(t *testing.T) {
	emb := axisEmbedder(nil)
	m := newTestManager(t, emb)

	cats := m.Load(context.Background())
	require.Len(t, cats, 26)
	for _, c := range cats {
		assert.NotNil(t, c.Embedding, "category %s should have an embedding", c.Code)
	}
	assert.Equal(t, 1, emb.calls)

	// Second load must come from memory.
	m.Load(context.Background())
	assert.Equal(t, 1, emb.calls)
}

func TestLoadUsesDiskCache(t *testing.T) {
	dir := t.TempDir()
	emb := axisEmbedder(nil)

	first := NewManager(Config{CacheDir: dir, TTLDays: 30}, emb)
	first.Load(context.Background())
	require.Equal(t, 1, emb.calls)

	second := NewManager(Config{CacheDir: dir, TTLDays: 30}, emb)
	cats := second.Load(context.Background())
	assert.Equal(t, 1, emb.calls, "second manager should hit the disk cache")
	require.Len(t, cats, 26)
	assert.NotNil(t, cats[0].Embedding)
}

func TestLoadEmbeddingFailureLeavesCategoriesBare(t *testing.T) {
	emb := &fakeEmbedder{failAll: true}
	m := newTestManager(t, emb)

	cats := m.Load(context.Background())
	require.Len(t, cats, 26)
	for _, c := range cats {
		assert.Nil(t, c.Embedding)
	}
}

func TestCorruptCacheIsTreatedAsMiss(t *testing.T) {
	dir := t.TempDir()
	emb := axisEmbedder(nil)
	m := NewManager(Config{CacheDir: dir, TTLDays: 30}, emb)

	require.NoError(t, os.WriteFile(m.cachePath(), []byte("{not json"), 0o644))

	cats := m.Load(context.Background())
	require.Len(t, cats, 26)
	assert.NotNil(t, cats[0].Embedding)
	assert.Equal(t, 1, emb.calls, "corrupt cache should trigger regeneration")

	// The cache file must have been overwritten with valid JSON.
	data, err := os.ReadFile(m.cachePath())
	require.NoError(t, err)
	var cache Cache
	require.NoError(t, json.Unmarshal(data, &cache))
}

func TestCacheRoundTrip(t *testing.T) {
	original := Cache{
		Categories: []Category{
			{Code: "cs.AI", Name: "Artificial Intelligence", Description: "desc", Embedding: []float64{0.125, -0.5, 3}},
			{Code: "q-fin.TR", Name: "Trading", Description: "other", Embedding: nil},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		TTLDays:   30,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Cache
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.Categories, 2)
	for i, c := range decoded.Categories {
		assert.Equal(t, original.Categories[i].Code, c.Code)
		assert.Equal(t, original.Categories[i].Name, c.Name)
		assert.Equal(t, original.Categories[i].Description, c.Description)
		assert.Equal(t, original.Categories[i].Embedding, c.Embedding)
	}
	assert.True(t, decoded.CreatedAt.Equal(original.CreatedAt))
	assert.Equal(t, 30, decoded.TTLDays)
}

func TestCacheTTLBoundary(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := Cache{CreatedAt: t0, TTLDays: 7}

	assert.True(t, cache.validAt(t0.Add(7*24*time.Hour-time.Second)))
	assert.False(t, cache.validAt(t0.Add(7*24*time.Hour+time.Second)))
}

func TestFindMatchingSortedAndBounded(t *testing.T) {
	query := make([]float64, 26)
	// Closest to category 0, then 3, then 5; everything else orthogonal.
	query[0] = 1.0
	query[3] = 0.8
	query[5] = 0.6
	m := newTestManager(t, axisEmbedder(query))

	matches := m.FindMatching(context.Background(), "some news text", 3, 0.1)
	require.Len(t, matches, 3)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
	assert.Equal(t, Categories()[0].Code, matches[0].Category.Code)
}

func TestFindMatchingReturnsTopWhenNothingClearsThreshold(t *testing.T) {
	query := make([]float64, 26)
	query[0] = 1.0
	m := newTestManager(t, axisEmbedder(query))

	// Max similarity is well under 0.99, so the threshold filters everything.
	matches := m.FindMatching(context.Background(), "text", 3, 0.99)
	assert.Len(t, matches, 3, "should return top matches anyway")
}

func TestFindMatchingFallbackOnEmbedFailure(t *testing.T) {
	dir := t.TempDir()
	// Warm the cache so categories have embeddings, then fail query embeds.
	emb := axisEmbedder([]float64{1})
	warm := NewManager(Config{CacheDir: dir, TTLDays: 30}, emb)
	warm.Load(context.Background())

	m := NewManager(Config{CacheDir: dir, TTLDays: 30}, &fakeEmbedder{failAll: true})
	matches := m.FindMatching(context.Background(), "text", 3, 0.35)

	require.Len(t, matches, 3)
	for _, match := range matches {
		assert.Equal(t, 0.5, match.Similarity)
		assert.Contains(t, fallbackCodes, match.Category.Code)
	}
}

func TestFindMatchingWithHintsBoostsAndCaps(t *testing.T) {
	query := make([]float64, 26)
	query[0] = 100 // cs.AI similarity ~1.0
	query[1] = 0.9 // cs.LG
	query[2] = 0.5 // cs.CR
	m := newTestManager(t, axisEmbedder(query))

	base := m.FindMatching(context.Background(), "text", 3, 0.1)
	require.Len(t, base, 3)
	csCRBase := base[2].Similarity

	boosted := m.FindMatchingWithHints(context.Background(), "text", 3, 0.1, []string{"cs.CR", "cs.AI"})
	require.Len(t, boosted, 3)

	for _, match := range boosted {
		assert.LessOrEqual(t, match.Similarity, 1.0)
		if match.Category.Code == "cs.CR" {
			assert.InDelta(t, csCRBase+0.15, match.Similarity, 1e-9)
		}
		if match.Category.Code == "cs.AI" {
			// Base similarity ~1.0 already; boost must cap at 1.0.
			assert.InDelta(t, 1.0, match.Similarity, 1e-9)
		}
	}
	for i := 1; i < len(boosted); i++ {
		assert.GreaterOrEqual(t, boosted[i-1].Similarity, boosted[i].Similarity)
	}
}

func TestCachePathDependsOnModel(t *testing.T) {
	dir := t.TempDir()
	a := NewManager(Config{CacheDir: dir, TTLDays: 30}, &fakeEmbedder{model: "text-embedding-3-small"})
	b := NewManager(Config{CacheDir: dir, TTLDays: 30}, &fakeEmbedder{model: "text-embedding-3-large"})

	pathA := a.cachePath()
	pathB := b.cachePath()

	assert.Contains(t, pathA, "arxiv_taxonomy_")
	assert.Contains(t, pathA, ".json")
	assert.NotEqual(t, pathA, pathB, "different embedding models must key different cache files")

	// Same model keys the same file.
	c := NewManager(Config{CacheDir: dir, TTLDays: 30}, &fakeEmbedder{model: "text-embedding-3-small"})
	assert.Equal(t, pathA, c.cachePath())
}
