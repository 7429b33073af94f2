// Package convergence scores news items by how strongly academic research
// supports them and selects the best news+paper pairing.
package convergence

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/brahma2024/agentic-ledger/internal/arxiv"
	"github.com/brahma2024/agentic-ledger/internal/embedding"
	"github.com/brahma2024/agentic-ledger/internal/logger"
	"github.com/brahma2024/agentic-ledger/internal/news"
	"github.com/brahma2024/agentic-ledger/internal/taxonomy"
)

// ErrNoItems is returned by SelectBest when called with no input.
var ErrNoItems = errors.New("no ranked items provided")

// neutralRelevance is assigned when a paper cannot be scored.
const neutralRelevance = 0.5

// Candidate is a paper candidate with its relevance to the news item and
// the category whose search surfaced it.
type Candidate struct {
	Paper          *arxiv.Paper
	Relevance      float64
	SourceCategory string
}

// Result is the full analysis for one news item. It is built once per
// Analyze call and never mutated afterwards.
type Result struct {
	Item             news.RankedItem
	Categories       []taxonomy.Match
	Candidates       []Candidate
	ConvergenceScore float64
	CombinedScore    float64
	Best             *Candidate
}

// Matcher answers which taxonomy categories best match a text.
type Matcher interface {
	FindMatching(ctx context.Context, text string, topK int, minSimilarity float64) []taxonomy.Match
	FindMatchingWithHints(ctx context.Context, text string, topK int, minSimilarity float64, hintCodes []string) []taxonomy.Match
}

// Searcher finds at most one candidate paper for a category and keyword set.
type Searcher interface {
	Search(ctx context.Context, category string, keywords []string) (*arxiv.Paper, error)
}

// Config holds the engine tunables.
type Config struct {
	CategoriesPerItem int
	MinSimilarity     float64
	MinRelevance      float64
	Weight            float64 // convergence weight in the combined score, in [0,1]
	SnapshotPath      string
}

// Engine orchestrates category matching, paper search, relevance scoring
// and score fusion. Each Analyze call is stateless given its inputs.
type Engine struct {
	matcher  Matcher
	searcher Searcher
	embedder embedding.Embedder
	cfg      Config
	log      *slog.Logger
}

// NewEngine creates a convergence engine.
func NewEngine(cfg Config, matcher Matcher, searcher Searcher, embedder embedding.Embedder) *Engine {
	if cfg.CategoriesPerItem <= 0 {
		cfg.CategoriesPerItem = 3
	}
	return &Engine{
		matcher:  matcher,
		searcher: searcher,
		embedder: embedder,
		cfg:      cfg,
		log:      logger.New("convergence"),
	}
}

// Analyze runs the full convergence analysis for one ranked news item.
// hintCodes, when present, bias category matching toward an upstream source
// signal.
func (e *Engine) Analyze(ctx context.Context, ranked news.RankedItem, hintCodes []string) Result {
	item := ranked.Item
	e.log.Info("analyzing news item", "title", truncate(item.Title, 50))

	text := item.Text("\n\n")
	var categories []taxonomy.Match
	if len(hintCodes) > 0 {
		categories = e.matcher.FindMatchingWithHints(ctx, text, e.cfg.CategoriesPerItem, e.cfg.MinSimilarity, hintCodes)
	} else {
		categories = e.matcher.FindMatching(ctx, text, e.cfg.CategoriesPerItem, e.cfg.MinSimilarity)
	}
	e.log.Debug("matched categories", "count", len(categories))

	candidates := e.searchCandidates(ctx, ranked, categories)
	e.log.Debug("found paper candidates", "count", len(candidates))

	convergence := e.convergenceScore(categories, candidates)
	impactNormalized := ranked.Score / 10.0
	combined := clamp01((1-e.cfg.Weight)*impactNormalized + e.cfg.Weight*convergence)

	var best *Candidate
	if len(candidates) > 0 {
		best = &candidates[0]
	}

	e.log.Info("analysis complete",
		"convergence", convergence,
		"combined", combined,
		"papers", len(candidates))

	return Result{
		Item:             ranked,
		Categories:       categories,
		Candidates:       candidates,
		ConvergenceScore: convergence,
		CombinedScore:    combined,
		Best:             best,
	}
}

// SelectBest analyzes every item and returns the highest combined score
// alongside the full descending-sorted list. The sort is stable, so ties
// keep input order. hints may be nil; when set it supplies per-item category
// hint codes. Results are persisted to the snapshot path as a side effect.
func (e *Engine) SelectBest(ctx context.Context, items []news.RankedItem, hints func(news.Item) []string) (Result, []Result, error) {
	if len(items) == 0 {
		return Result{}, nil, ErrNoItems
	}

	e.log.Info("analyzing news items for convergence", "count", len(items))

	results := make([]Result, 0, len(items))
	for _, ranked := range items {
		var hintCodes []string
		if hints != nil {
			hintCodes = hints(ranked.Item)
		}
		results = append(results, e.Analyze(ctx, ranked, hintCodes))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})

	best := results[0]
	e.log.Info("best story selected",
		"title", truncate(best.Item.Item.Title, 50),
		"combined", best.CombinedScore)

	if e.cfg.SnapshotPath != "" {
		if err := WriteSnapshot(e.cfg.SnapshotPath, best, results, e.cfg.Weight); err != nil {
			// Persistence is a side effect; a failed write degrades, it
			// does not invalidate the ranking.
			e.log.Error("failed to write results snapshot", "error", err)
		} else {
			e.log.Info("saved convergence results", "path", e.cfg.SnapshotPath)
		}
	}

	return best, results, nil
}

// searchCandidates queries each matched category, deduplicates papers by ID
// (first category that surfaces a paper keeps it), scores relevance, and
// returns candidates above the relevance floor sorted descending. A failing
// category contributes nothing; it never aborts the analysis.
func (e *Engine) searchCandidates(ctx context.Context, ranked news.RankedItem, categories []taxonomy.Match) []Candidate {
	if len(categories) == 0 {
		return nil
	}

	item := ranked.Item
	keywords := extractKeywords(item.Title, item.Summary)

	var candidates []Candidate
	seen := make(map[string]bool)
	for _, match := range categories {
		code := match.Category.Code
		paper, err := e.searcher.Search(ctx, code, keywords)
		if err != nil {
			e.log.Warn("paper search failed", "category", code, "error", err)
			continue
		}
		if paper == nil || seen[paper.ArxivID] {
			continue
		}
		seen[paper.ArxivID] = true

		relevance := e.scoreRelevance(ctx, item, paper)
		if relevance >= e.cfg.MinRelevance {
			candidates = append(candidates, Candidate{
				Paper:          paper,
				Relevance:      relevance,
				SourceCategory: code,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Relevance > candidates[j].Relevance
	})
	return candidates
}

// scoreRelevance embeds the news text and the paper text together in one
// batched call and takes their cosine similarity. A failed embedding
// degrades to the neutral default instead of discarding the candidate.
func (e *Engine) scoreRelevance(ctx context.Context, item news.Item, paper *arxiv.Paper) float64 {
	vectors, err := e.embedder.Embed(ctx, []string{item.Text("\n"), paper.Text()})
	if err != nil || len(vectors) != 2 {
		e.log.Warn("failed to score paper relevance", "paper", paper.ArxivID, "error", err)
		return neutralRelevance
	}
	return clamp01(embedding.Cosine(vectors[0], vectors[1]))
}

// convergenceScore blends the strongest category match, the strongest paper
// relevance, and source-category diversity:
//
//	0.4*best_category_similarity + 0.4*best_paper_relevance + 0.2*diversity
//
// Missing terms contribute zero. The diversity denominator uses the
// matched-category count even when some category searches failed.
func (e *Engine) convergenceScore(categories []taxonomy.Match, candidates []Candidate) float64 {
	var bestCatSim, bestRelevance, diversity float64
	if len(categories) > 0 {
		bestCatSim = categories[0].Similarity
	}
	if len(candidates) > 0 {
		bestRelevance = candidates[0].Relevance

		unique := make(map[string]bool)
		for _, c := range candidates {
			unique[c.SourceCategory] = true
		}
		maxCats := len(categories)
		if e.cfg.CategoriesPerItem < maxCats {
			maxCats = e.cfg.CategoriesPerItem
		}
		if maxCats > 0 {
			diversity = float64(len(unique)) / float64(maxCats)
		}
	}

	return clamp01(0.4*bestCatSim + 0.4*bestRelevance + 0.2*diversity)
}

// stopwords excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true,
	"was": true, "are": true, "were": true, "be": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "must": true, "shall": true,
	"can": true, "this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "they": true, "them": true,
}

// extractKeywords pulls up to five search keywords from the title and
// summary: lowercased, stripped of non-alphanumerics, stopwords and short
// tokens dropped, deduplicated preserving first-seen order.
func extractKeywords(title, summary string) []string {
	text := title
	if summary != "" {
		text = text + " " + summary
	}

	seen := make(map[string]bool)
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var b strings.Builder
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		clean := b.String()
		if len([]rune(clean)) <= 3 || stopwords[clean] || seen[clean] {
			continue
		}
		seen[clean] = true
		keywords = append(keywords, clean)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
