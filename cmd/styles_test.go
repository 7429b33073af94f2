package cmd

import (
	"strings"
	"testing"

	"github.com/brahma2024/agentic-ledger/internal/arxiv"
	"github.com/brahma2024/agentic-ledger/internal/convergence"
	"github.com/brahma2024/agentic-ledger/internal/news"
)

func rankedStory() news.RankedItem {
	return news.RankedItem{
		Item:  news.Item{Title: "Banks adopt ML risk models", Source: "Feed"},
		Score: 8.5,
	}
}

func TestRenderResultShowsBestPaper(t *testing.T) {
	res := convergence.Result{
		Item: rankedStory(),
		Best: &convergence.Candidate{
			Paper: &arxiv.Paper{
				ArxivID:    "2401.12345",
				Title:      "Deep Hedging at Scale",
				KeyFinding: "Neural hedging cuts transaction costs in half.",
				PDFURL:     "https://arxiv.org/pdf/2401.12345.pdf",
			},
			Relevance:      0.82,
			SourceCategory: "q-fin.TR",
		},
	}

	out := renderResult(res, []convergence.Result{res}, "/tmp/results.json")

	for _, want := range []string{
		"Deep Hedging at Scale",
		"2401.12345",
		"Neural hedging cuts transaction costs in half.",
		"q-fin.TR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}

func TestRenderResultFallsBackToPlaceholder(t *testing.T) {
	res := convergence.Result{Item: rankedStory()}

	out := renderResult(res, []convergence.Result{res}, "/tmp/results.json")

	placeholder := arxiv.Placeholder()
	if !strings.Contains(out, placeholder.Title) {
		t.Errorf("expected placeholder title %q in output", placeholder.Title)
	}
	if !strings.Contains(out, placeholder.KeyFinding) {
		t.Error("expected placeholder key finding in output")
	}
	if strings.Contains(out, "relevance 0.00") {
		t.Error("placeholder paper must not show a relevance score line")
	}
}
