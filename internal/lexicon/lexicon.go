// Package lexicon turns academic arXiv categories into news-friendly search
// phrases, scored by semantic closeness to the category they came from.
package lexicon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brahma2024/agentic-ledger/internal/embedding"
	"github.com/brahma2024/agentic-ledger/internal/llm"
	"github.com/brahma2024/agentic-ledger/internal/logger"
	"github.com/brahma2024/agentic-ledger/internal/taxonomy"
)

const systemPrompt = `You are an expert at creating search phrases that find NEWS about STRUCTURAL/TECHNICAL changes in a field.

Given an arXiv category, generate 15-25 search phrases that will find news about:
- New algorithms, protocols, or methods
- Security vulnerabilities with technical details (CVEs, exploits)
- Benchmark results and performance improvements
- Infrastructure and architectural changes
- Research breakthroughs with reproducible results

AVOID phrases that would match:
- Business gossip (CEO changes, funding rounds, stock prices)
- Vague hype ("AI revolution", "blockchain future")
- Product marketing without technical substance
- Opinion pieces and predictions

The goal is to find news that could be connected to ACADEMIC RESEARCH - news about mechanisms, not personalities.

PHRASE CATEGORIES TO INCLUDE:
1. PROTOCOL/ALGORITHM phrases: "new consensus mechanism", "attention architecture"
2. VULNERABILITY/EXPLOIT phrases: "CVE-", "zero-day", "buffer overflow"
3. BENCHMARK/PERFORMANCE phrases: "benchmark results", "latency improvement"
4. INFRASTRUCTURE phrases: "protocol upgrade", "hard fork"
5. RESEARCH phrases: "paper published", "peer reviewed"

Examples for cs.CR (Cryptography and Security):
- "CVE disclosure"
- "zero-day exploit"
- "post-quantum migration"
- "side-channel attack"
- "formal verification"
- "protocol vulnerability"
- "cryptographic primitive"

Examples for cs.AI (Artificial Intelligence):
- "transformer architecture"
- "reinforcement learning benchmark"
- "reasoning capability"
- "emergent behavior"
- "chain of thought"
- "inference optimization"

OUTPUT FORMAT (JSON):
{
  "phrases": [
    "phrase one",
    "phrase two",
    ...
  ]
}`

const (
	cacheFile         = "category_lexicons.json"
	defaultTTLDays    = 30
	neutralConfidence = 0.5
)

// Phrase is a news-friendly search phrase derived from an arXiv category.
type Phrase struct {
	Phrase       string  `json:"phrase"`
	Confidence   float64 `json:"confidence"`
	CategoryCode string  `json:"category_code"`
}

// Lexicon holds the scored phrases for one category.
type Lexicon struct {
	CategoryCode string    `json:"category_code"`
	CategoryName string    `json:"category_name"`
	Phrases      []Phrase  `json:"phrases"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// HighConfidencePhrases returns phrases at or above the threshold.
func (l *Lexicon) HighConfidencePhrases(minConfidence float64) []string {
	var out []string
	for _, p := range l.Phrases {
		if p.Confidence >= minConfidence {
			out = append(out, p.Phrase)
		}
	}
	return out
}

// TopPhrases returns the top k phrases by confidence.
func (l *Lexicon) TopPhrases(k int) []string {
	phrases := make([]Phrase, len(l.Phrases))
	copy(phrases, l.Phrases)
	sort.SliceStable(phrases, func(i, j int) bool {
		return phrases[i].Confidence > phrases[j].Confidence
	})
	if k > 0 && k < len(phrases) {
		phrases = phrases[:k]
	}
	out := make([]string, len(phrases))
	for i, p := range phrases {
		out[i] = p.Phrase
	}
	return out
}

// cache is the on-disk container for all category lexicons.
type cache struct {
	Lexicons  map[string]*Lexicon `json:"lexicons"`
	CreatedAt time.Time           `json:"created_at"`
	TTLDays   int                 `json:"ttl_days"`
}

func (c *cache) validAt(now time.Time) bool {
	return now.Before(c.CreatedAt.Add(time.Duration(c.TTLDays) * 24 * time.Hour))
}

// Config controls lexicon generation and caching.
type Config struct {
	CacheDir string
	TTLDays  int
}

// Generator produces and caches news-friendly lexicons for every taxonomy
// category.
type Generator struct {
	taxonomy  *taxonomy.Manager
	completer llm.Completer
	embedder  embedding.Embedder
	cacheDir  string
	ttlDays   int
	log       *slog.Logger

	lexicons map[string]*Lexicon
	now      func() time.Time
}

// NewGenerator wires a lexicon generator over the taxonomy, completions, and
// embedding clients.
func NewGenerator(cfg Config, tax *taxonomy.Manager, completer llm.Completer, embedder embedding.Embedder) *Generator {
	if cfg.TTLDays <= 0 {
		cfg.TTLDays = defaultTTLDays
	}
	return &Generator{
		taxonomy:  tax,
		completer: completer,
		embedder:  embedder,
		cacheDir:  cfg.CacheDir,
		ttlDays:   cfg.TTLDays,
		log:       logger.New("lexicon"),
		now:       time.Now,
	}
}

func (g *Generator) cachePath() string {
	return filepath.Join(g.cacheDir, cacheFile)
}

// Lexicon returns the lexicon for one category, generating the full set on
// first use. Returns nil when the code is not part of the taxonomy.
func (g *Generator) Lexicon(ctx context.Context, categoryCode string) (*Lexicon, error) {
	if err := g.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return g.lexicons[categoryCode], nil
}

// All returns every category lexicon keyed by category code.
func (g *Generator) All(ctx context.Context) (map[string]*Lexicon, error) {
	if err := g.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return g.lexicons, nil
}

func (g *Generator) ensureLoaded(ctx context.Context) error {
	if g.lexicons != nil {
		return nil
	}

	if cached := g.loadCache(); cached != nil && cached.validAt(g.now()) {
		g.log.Info("loaded lexicon cache", "categories", len(cached.Lexicons))
		g.lexicons = cached.Lexicons
		return nil
	}

	g.log.Info("generating category lexicons, this may take a minute")
	lexicons, err := g.generateAll(ctx)
	if err != nil {
		return err
	}
	g.lexicons = lexicons
	g.saveCache()
	return nil
}

// generateAll builds a lexicon per taxonomy category. Individual category
// failures are logged and skipped so one bad LLM response does not lose the
// whole run.
func (g *Generator) generateAll(ctx context.Context) (map[string]*Lexicon, error) {
	categories := g.taxonomy.Load(ctx)

	lexicons := make(map[string]*Lexicon, len(categories))
	for i, cat := range categories {
		g.log.Info("generating lexicon", "progress", fmt.Sprintf("%d/%d", i+1, len(categories)), "code", cat.Code, "name", cat.Name)
		lex, err := g.generateForCategory(ctx, cat)
		if err != nil {
			g.log.Error("failed to generate lexicon", "code", cat.Code, "error", err)
			continue
		}
		lexicons[cat.Code] = lex
		g.log.Debug("generated phrases", "code", cat.Code, "count", len(lex.Phrases))
	}
	return lexicons, nil
}

type phraseResponse struct {
	Phrases []string `json:"phrases"`
}

func (g *Generator) generateForCategory(ctx context.Context, cat taxonomy.Category) (*Lexicon, error) {
	user := fmt.Sprintf(`Generate news-friendly search phrases for this arXiv category:

Category Code: %s
Category Name: %s
Academic Description: %s

Generate 15-25 phrases that would appear in mainstream tech/business/finance news.
Focus on current terminology, product names, company types, and event types.`, cat.Code, cat.Name, cat.Description)

	content, err := g.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        user,
		Temperature: 0.7,
		MaxTokens:   1000,
		JSONObject:  true,
	})
	if err != nil {
		return nil, err
	}

	var resp phraseResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("parsing phrase response: %w", err)
	}

	return &Lexicon{
		CategoryCode: cat.Code,
		CategoryName: cat.Name,
		Phrases:      g.scorePhrases(ctx, cat, resp.Phrases),
		GeneratedAt:  g.now(),
	}, nil
}

// scorePhrases embeds the phrases in one batch and scores each by cosine
// similarity to the category embedding. Any embedding failure degrades to a
// neutral confidence rather than dropping the phrases.
func (g *Generator) scorePhrases(ctx context.Context, cat taxonomy.Category, phrases []string) []Phrase {
	if len(phrases) == 0 {
		return nil
	}

	if cat.Embedding == nil {
		g.log.Warn("no embedding for category, using default scores", "code", cat.Code)
		return neutralPhrases(cat.Code, phrases)
	}

	vectors, err := g.embedder.Embed(ctx, phrases)
	if err != nil || len(vectors) != len(phrases) {
		g.log.Warn("failed to score phrases", "code", cat.Code, "error", err)
		return neutralPhrases(cat.Code, phrases)
	}

	scored := make([]Phrase, len(phrases))
	for i, phrase := range phrases {
		scored[i] = Phrase{
			Phrase:       phrase,
			Confidence:   embedding.Cosine(vectors[i], cat.Embedding),
			CategoryCode: cat.Code,
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})
	return scored
}

func neutralPhrases(code string, phrases []string) []Phrase {
	out := make([]Phrase, len(phrases))
	for i, p := range phrases {
		out[i] = Phrase{Phrase: p, Confidence: neutralConfidence, CategoryCode: code}
	}
	return out
}

// RefreshCategory regenerates the lexicon for one category and persists the
// updated cache.
func (g *Generator) RefreshCategory(ctx context.Context, categoryCode string) (*Lexicon, error) {
	categories := g.taxonomy.Load(ctx)

	var category *taxonomy.Category
	for i := range categories {
		if categories[i].Code == categoryCode {
			category = &categories[i]
			break
		}
	}
	if category == nil {
		return nil, fmt.Errorf("unknown category: %s", categoryCode)
	}

	lex, err := g.generateForCategory(ctx, *category)
	if err != nil {
		return nil, err
	}
	if g.lexicons == nil {
		g.lexicons = make(map[string]*Lexicon)
	}
	g.lexicons[categoryCode] = lex
	g.saveCache()
	return lex, nil
}

// ExportForGoogleAlerts returns the top phrases for a category quoted for
// exact-match alert queries.
func (g *Generator) ExportForGoogleAlerts(ctx context.Context, categoryCode string, maxPhrases int) ([]string, error) {
	lex, err := g.Lexicon(ctx, categoryCode)
	if err != nil {
		return nil, err
	}
	if lex == nil {
		return nil, nil
	}
	top := lex.TopPhrases(maxPhrases)
	quoted := make([]string, len(top))
	for i, p := range top {
		quoted[i] = `"` + p + `"`
	}
	return quoted, nil
}

// CombinedAlertQuery joins the top phrases of several categories into one
// OR-query, deduplicated in first-seen order and capped at 15 terms.
func (g *Generator) CombinedAlertQuery(ctx context.Context, categoryCodes []string, phrasesPerCategory int) (string, error) {
	var all []string
	for _, code := range categoryCodes {
		phrases, err := g.ExportForGoogleAlerts(ctx, code, phrasesPerCategory)
		if err != nil {
			return "", err
		}
		all = append(all, phrases...)
	}
	if len(all) == 0 {
		return "", nil
	}

	seen := make(map[string]bool, len(all))
	var unique []string
	for _, p := range all {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}
	if len(unique) > 15 {
		unique = unique[:15]
	}
	return strings.Join(unique, " OR "), nil
}

func (g *Generator) loadCache() *cache {
	data, err := os.ReadFile(g.cachePath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.log.Warn("failed to read lexicon cache", "error", err)
		}
		return nil
	}
	var c cache
	if err := json.Unmarshal(data, &c); err != nil {
		g.log.Warn("failed to parse lexicon cache", "error", err)
		return nil
	}
	return &c
}

func (g *Generator) saveCache() {
	if err := os.MkdirAll(g.cacheDir, 0o755); err != nil {
		g.log.Warn("failed to create cache dir", "error", err)
		return
	}
	c := cache{Lexicons: g.lexicons, CreatedAt: g.now(), TTLDays: g.ttlDays}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		g.log.Warn("failed to encode lexicon cache", "error", err)
		return
	}
	if err := os.WriteFile(g.cachePath(), data, 0o644); err != nil {
		g.log.Warn("failed to write lexicon cache", "error", err)
		return
	}
	g.log.Info("saved lexicon cache", "path", g.cachePath())
}
