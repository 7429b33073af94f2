// Package taxonomy manages the research category taxonomy and answers
// which categories best match a piece of text.
package taxonomy

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brahma2024/agentic-ledger/internal/embedding"
	"github.com/brahma2024/agentic-ledger/internal/logger"
)

// Category is one node of the fixed research taxonomy. Embedding is nil
// until computed.
type Category struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Embedding   []float64 `json:"embedding"`
}

// EmbedText is the text representation embedded for the category.
func (c Category) EmbedText() string {
	return c.Name + ": " + c.Description
}

// Match pairs a category with its similarity to some input text. Lists of
// matches are kept sorted descending by similarity.
type Match struct {
	Category   Category
	Similarity float64
}

// Cache is the on-disk container for embedded categories with TTL
// expiration.
type Cache struct {
	Categories []Category `json:"categories"`
	CreatedAt  time.Time  `json:"created_at"`
	TTLDays    int        `json:"ttl_days"`
}

// Valid reports whether the cache has not yet expired.
func (c Cache) Valid() bool { return c.validAt(time.Now()) }

func (c Cache) validAt(now time.Time) bool {
	expiry := c.CreatedAt.Add(time.Duration(c.TTLDays) * 24 * time.Hour)
	return now.Before(expiry)
}

// Config holds the Manager's tunables.
type Config struct {
	CacheDir string
	TTLDays  int
}

// Manager owns category embeddings with bounded staleness. It is not safe
// for concurrent use; the pipeline runs single-threaded.
type Manager struct {
	cacheDir string
	ttlDays  int
	embedder embedding.Embedder
	log      *slog.Logger

	categories []Category
}

// NewManager creates a taxonomy manager backed by the given embedder.
func NewManager(cfg Config, embedder embedding.Embedder) *Manager {
	ttl := cfg.TTLDays
	if ttl <= 0 {
		ttl = 30
	}
	return &Manager{
		cacheDir: cfg.CacheDir,
		ttlDays:  ttl,
		embedder: embedder,
		log:      logger.New("taxonomy"),
	}
}

// cachePath derives the cache file name from the embedding model and the
// sorted category codes, so changing either invalidates old caches.
func (m *Manager) cachePath() string {
	codes := make([]string, 0, len(Categories()))
	for _, c := range Categories() {
		codes = append(codes, c.Code)
	}
	sort.Strings(codes)
	sum := md5.Sum([]byte(m.embedder.Model() + ":" + strings.Join(codes, ",")))
	return filepath.Join(m.cacheDir, fmt.Sprintf("arxiv_taxonomy_%s.json", hex.EncodeToString(sum[:])[:12]))
}

// Load returns the categories with embeddings populated, from memory, a
// valid disk cache, or a fresh batched embedding call, in that order. If the
// batch call fails the categories come back without embeddings; matching
// then falls back to the default subset.
func (m *Manager) Load(ctx context.Context) []Category {
	if m.categories != nil {
		return m.categories
	}

	if cached, ok := m.loadCache(); ok {
		m.log.Info("loaded taxonomy from cache", "path", m.cachePath())
		m.categories = cached.Categories
		return m.categories
	}

	m.log.Info("generating embeddings for taxonomy categories")
	m.categories = m.generateEmbeddings(ctx, Categories())
	m.saveCache(m.categories)
	return m.categories
}

func (m *Manager) loadCache() (Cache, bool) {
	data, err := os.ReadFile(m.cachePath())
	if err != nil {
		return Cache{}, false
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		// Corrupt cache is a miss; it gets regenerated and overwritten.
		m.log.Warn("failed to decode taxonomy cache", "error", err)
		return Cache{}, false
	}
	if !cache.Valid() {
		return Cache{}, false
	}
	return cache, true
}

func (m *Manager) saveCache(categories []Category) {
	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		m.log.Warn("failed to create cache dir", "error", err)
		return
	}
	cache := Cache{Categories: categories, CreatedAt: time.Now(), TTLDays: m.ttlDays}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		m.log.Warn("failed to encode taxonomy cache", "error", err)
		return
	}
	if err := os.WriteFile(m.cachePath(), data, 0o644); err != nil {
		m.log.Warn("failed to write taxonomy cache", "error", err)
		return
	}
	m.log.Info("saved taxonomy cache", "path", m.cachePath())
}

// generateEmbeddings embeds all category texts in a single batched call and
// assigns the vectors positionally. On failure every category stays without
// an embedding; there is no partial mixing since it is one call.
func (m *Manager) generateEmbeddings(ctx context.Context, categories []Category) []Category {
	texts := make([]string, len(categories))
	for i, c := range categories {
		texts[i] = c.EmbedText()
	}

	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(categories) {
		m.log.Error("failed to generate category embeddings", "error", err)
		return categories
	}

	for i := range categories {
		categories[i].Embedding = vectors[i]
	}
	m.log.Info("generated category embeddings", "count", len(categories))
	return categories
}

// FindMatching returns up to topK categories whose embeddings are most
// similar to text, filtered by minSimilarity. When nothing clears the
// threshold the top topK are returned anyway so downstream code always has
// candidates. When the text itself cannot be embedded, a fixed default
// subset is returned at neutral similarity.
func (m *Manager) FindMatching(ctx context.Context, text string, topK int, minSimilarity float64) []Match {
	categories := m.Load(ctx)

	vectors, err := m.embedder.Embed(ctx, []string{text})
	if err != nil || len(vectors) != 1 {
		m.log.Warn("failed to embed text, falling back to default categories", "error", err)
		return m.fallbackMatches(categories, topK)
	}
	textVec := vectors[0]

	var matches []Match
	for _, cat := range categories {
		if cat.Embedding == nil {
			continue
		}
		matches = append(matches, Match{
			Category:   cat,
			Similarity: embedding.Cosine(textVec, cat.Embedding),
		})
	}
	if len(matches) == 0 {
		return m.fallbackMatches(categories, topK)
	}

	sortMatches(matches)
	if topK > len(matches) {
		topK = len(matches)
	}
	top := matches[:topK]

	var results []Match
	for _, match := range top {
		if match.Similarity >= minSimilarity {
			results = append(results, match)
		}
	}
	if len(results) == 0 {
		m.log.Warn("no categories matched above threshold", "threshold", minSimilarity)
		return top
	}
	return results
}

// FindMatchingWithHints runs the base match and then boosts any category
// whose code appears in hintCodes by a flat +0.15, capped at 1.0, so an
// upstream source signal can bias selection without overriding semantics.
func (m *Manager) FindMatchingWithHints(ctx context.Context, text string, topK int, minSimilarity float64, hintCodes []string) []Match {
	matches := m.FindMatching(ctx, text, topK, minSimilarity)
	if len(hintCodes) == 0 {
		return matches
	}

	hinted := make(map[string]bool, len(hintCodes))
	for _, code := range hintCodes {
		hinted[code] = true
	}

	boosted := make([]Match, len(matches))
	for i, match := range matches {
		sim := match.Similarity
		if hinted[match.Category.Code] {
			sim = min(1.0, sim+0.15)
		}
		boosted[i] = Match{Category: match.Category, Similarity: sim}
	}

	sortMatches(boosted)
	if topK < len(boosted) {
		boosted = boosted[:topK]
	}
	return boosted
}

func (m *Manager) fallbackMatches(categories []Category, topK int) []Match {
	var results []Match
	for _, cat := range categories {
		for _, code := range fallbackCodes {
			if cat.Code == code {
				results = append(results, Match{Category: cat, Similarity: 0.5})
				break
			}
		}
	}
	if topK < len(results) {
		results = results[:topK]
	}
	return results
}

// sortMatches orders descending by similarity, stable so equal scores keep
// taxonomy order.
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
}
