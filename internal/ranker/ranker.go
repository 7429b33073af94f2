// Package ranker scores news items by structural significance using an LLM.
package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/brahma2024/agentic-ledger/internal/llm"
	"github.com/brahma2024/agentic-ledger/internal/logger"
	"github.com/brahma2024/agentic-ledger/internal/news"
)

const systemPrompt = `You are a financial news analyst for The Agentic Ledger, a podcast that bridges cutting-edge AI/finance NEWS with ACADEMIC RESEARCH.

Your task is to score news items by their STRUCTURAL SIGNIFICANCE on a scale of 1-10.

## CRITICAL FILTERING RULES

AUTOMATICALLY SCORE 1-2 (DISCARD):
- "Business Gossip": CEO hired/fired, stock price movements, earnings reports, layoffs
- "Vague Hype": "AI will change everything", "blockchain is the future", opinion pieces
- "Product Marketing": Company announces new feature, partnership announcements without technical detail
- "Personality News": What Elon said, what Sam Altman thinks

SCORE 3-5 (LOW PRIORITY):
- Funding rounds without technical innovation
- General industry trends without specific mechanisms
- Regulatory discussions without concrete policy changes

SCORE 6-8 (HIGH PRIORITY):
- New protocols or standards being adopted
- Specific algorithmic improvements with measurable results
- Security vulnerabilities with technical details (CVEs, exploits)
- Regulatory ACTIONS (not discussions) affecting market structure

SCORE 9-10 (CRITICAL - PRIORITIZE):
- New algorithms or methods with published benchmarks
- Protocol-level changes (consensus mechanisms, trading infrastructure)
- Zero-day exploits or novel attack vectors
- Quantitative research findings with reproducible results
- Market microstructure changes (new exchange rules, order types)

## THE KEY QUESTION
Ask yourself: "Could an academic paper be written about the MECHANISM described in this news?"
- YES -> Score 6-10
- NO -> Score 1-5

For each news item, provide:
1. A score (1-10)
2. Brief reasoning focusing on WHY it's structural or not

OUTPUT FORMAT (JSON object):
{"rankings": [
  {"index": 0, "score": 9.0, "reasoning": "New consensus protocol with 40% latency improvement - structural"},
  {"index": 1, "score": 2.0, "reasoning": "CEO commentary on AI future - business gossip, no technical content"}
]}`

// Ranker scores news items by impact.
type Ranker struct {
	completer llm.Completer
	log       *slog.Logger
}

// New creates an impact ranker over the given completions client.
func New(completer llm.Completer) *Ranker {
	return &Ranker{completer: completer, log: logger.New("ranker")}
}

// Rank scores items 1-10 and returns the top n sorted descending. A failed
// LLM call degrades to a recency fallback ranking rather than an error.
func (r *Ranker) Rank(ctx context.Context, items []news.Item, topN int) []news.RankedItem {
	if len(items) == 0 {
		r.log.Warn("no items to rank")
		return nil
	}

	r.log.Info("ranking news items by impact", "count", len(items))

	user := fmt.Sprintf(`Analyze and score these news items by financial market impact (1-10 scale):

%s

Return a JSON object with scores and brief reasoning for each item. Consider:
- Direct market impact
- Implications for AI/finance intersection
- Regulatory significance
- Innovation potential`, formatItems(items))

	content, err := r.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        user,
		Temperature: 0.3,
		MaxTokens:   2000,
		JSONObject:  true,
	})
	if err != nil {
		r.log.Error("failed to rank news items", "error", err)
		return fallbackRanking(items, topN)
	}

	rankings := parseRankings(content, items, r.log)
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score > rankings[j].Score
	})
	if topN > 0 && topN < len(rankings) {
		rankings = rankings[:topN]
	}

	for i, ranked := range rankings {
		r.log.Info("ranked item", "rank", i+1, "score", ranked.Score, "title", ranked.Item.Title)
	}
	return rankings
}

// Top returns the single highest-ranked item, or nil when there is none.
func (r *Ranker) Top(ctx context.Context, items []news.Item) *news.RankedItem {
	ranked := r.Rank(ctx, items, 1)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

func formatItems(items []news.Item) string {
	var lines []string
	for i, item := range items {
		line := fmt.Sprintf("%d. [%s] %s", i, item.Source, item.Title)
		if item.Summary != "" {
			summary := item.Summary
			if len(summary) > 200 {
				summary = summary[:200] + "..."
			}
			line += "\n   " + summary
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n\n")
}

type rankingEntry struct {
	Index     int     `json:"index"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

type rankingResponse struct {
	Rankings []rankingEntry `json:"rankings"`
	Items    []rankingEntry `json:"items"`
	Scores   []rankingEntry `json:"scores"`
}

// parseRankings decodes the LLM response, clamps scores into [1,10], and
// guarantees every input item ends up ranked: unparsed items receive the
// neutral default.
func parseRankings(content string, items []news.Item, log *slog.Logger) []news.RankedItem {
	var entries []rankingEntry

	// The model may return a bare array or an object wrapping it.
	if err := json.Unmarshal([]byte(content), &entries); err != nil {
		var wrapped rankingResponse
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			log.Warn("failed to parse rankings", "error", err)
			return fallbackRanking(items, len(items))
		}
		switch {
		case len(wrapped.Rankings) > 0:
			entries = wrapped.Rankings
		case len(wrapped.Items) > 0:
			entries = wrapped.Items
		default:
			entries = wrapped.Scores
		}
	}

	var rankings []news.RankedItem
	for _, entry := range entries {
		if entry.Index < 0 || entry.Index >= len(items) {
			continue
		}
		score := entry.Score
		if score < 1.0 {
			score = 1.0
		}
		if score > 10.0 {
			score = 10.0
		}
		reasoning := entry.Reasoning
		if reasoning == "" {
			reasoning = "No reasoning provided"
		}
		rankings = append(rankings, news.RankedItem{
			Item:      items[entry.Index],
			Score:     score,
			Reasoning: reasoning,
		})
	}

	ranked := make(map[string]bool, len(rankings))
	for _, r := range rankings {
		ranked[r.Item.Key()] = true
	}
	for _, item := range items {
		if !ranked[item.Key()] {
			rankings = append(rankings, news.RankedItem{
				Item:      item,
				Score:     5.0,
				Reasoning: "Unable to parse ranking for this item",
			})
		}
	}
	return rankings
}

// fallbackRanking keeps input order with decreasing scores when the LLM is
// unavailable.
func fallbackRanking(items []news.Item, topN int) []news.RankedItem {
	if topN <= 0 || topN > len(items) {
		topN = len(items)
	}
	rankings := make([]news.RankedItem, 0, topN)
	for i, item := range items[:topN] {
		rankings = append(rankings, news.RankedItem{
			Item:      item,
			Score:     7.0 - float64(i)*0.5,
			Reasoning: "Ranked by recency (fallback)",
		})
	}
	return rankings
}
