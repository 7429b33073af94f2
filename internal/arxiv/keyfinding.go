package arxiv

import (
	"context"
	"fmt"
	"strings"

	"github.com/brahma2024/agentic-ledger/internal/llm"
)

const keyFindingSystem = "You are a research analyst specializing in financial AI. " +
	"Extract key findings that have practical implications for trading, risk management, " +
	"or financial technology."

const keyFindingPrompt = `Analyze this academic paper abstract and extract the single most important finding or contribution in 1-2 sentences. Focus on practical implications for financial markets or AI applications.

Title: %s

Abstract: %s

Key Finding (1-2 sentences, focus on actionable insights):`

// ExtractKeyFinding summarizes the paper's most important contribution in
// one or two sentences. The placeholder paper keeps its canned finding; any
// failure degrades to a generic one derived from the title.
func (c *Client) ExtractKeyFinding(ctx context.Context, paper *Paper) string {
	if paper.ArxivID == PlaceholderID {
		return paper.KeyFinding
	}
	if c.completer == nil {
		return genericFinding(paper)
	}

	c.log.Info("extracting key finding", "title", paper.Title)

	finding, err := c.completer.Complete(ctx, llm.Request{
		System:      keyFindingSystem,
		User:        fmt.Sprintf(keyFindingPrompt, paper.Title, paper.Abstract),
		Temperature: 0.3,
		MaxTokens:   150,
	})
	if err != nil {
		c.log.Error("failed to extract key finding", "error", err)
		return genericFinding(paper)
	}
	return strings.TrimSpace(finding)
}

func genericFinding(paper *Paper) string {
	title := strings.ToLower(paper.Title)
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:50])
	}
	return "This paper presents research on " + title + "..."
}
