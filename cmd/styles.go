package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brahma2024/agentic-ledger/internal/arxiv"
	"github.com/brahma2024/agentic-ledger/internal/convergence"
	"github.com/brahma2024/agentic-ledger/internal/news"
)

var (
	// Adaptive colors for dark/light terminals
	colorPrimary   = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorSecondary = lipgloss.AdaptiveColor{Light: "#3D3D3D", Dark: "#ABABAB"}
	colorDim       = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorAccent    = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"}
	colorBorder    = lipgloss.AdaptiveColor{Light: "#DBDBDB", Dark: "#383838"}
	colorGreen     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	sourceStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	scoreStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	bodyStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	linkStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)
)

// renderRanked prints the top ranked story when convergence is disabled.
func renderRanked(item news.RankedItem) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(item.Item.Title) + "\n")
	b.WriteString(sourceStyle.Render(item.Item.Source) + "  ")
	b.WriteString(scoreStyle.Render(fmt.Sprintf("impact %.1f/10", item.Score)) + "\n")
	if item.Reasoning != "" {
		b.WriteString(bodyStyle.Render(item.Reasoning) + "\n")
	}
	if item.Item.URL != "" {
		b.WriteString(linkStyle.Render(item.Item.URL))
	}
	return cardStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// renderResult prints the convergence-selected story with its matched
// categories and best paper.
func renderResult(best convergence.Result, all []convergence.Result, snapshotPath string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(best.Item.Item.Title) + "\n")
	b.WriteString(sourceStyle.Render(best.Item.Item.Source) + "  ")
	b.WriteString(scoreStyle.Render(fmt.Sprintf("impact %.1f/10  convergence %.2f  combined %.2f",
		best.Item.Score, best.ConvergenceScore, best.CombinedScore)) + "\n\n")

	if len(best.Categories) > 0 {
		b.WriteString(labelStyle.Render("Categories") + "\n")
		for _, match := range best.Categories {
			b.WriteString(fmt.Sprintf("  %-10s %-38s %.3f\n",
				match.Category.Code, match.Category.Name, match.Similarity))
		}
		b.WriteString("\n")
	}

	paper := arxiv.Placeholder()
	if best.Best != nil {
		paper = best.Best.Paper
	}
	b.WriteString(labelStyle.Render("Best paper") + "\n")
	b.WriteString("  " + titleStyle.Render(paper.Title) + "\n")
	if best.Best != nil {
		b.WriteString(fmt.Sprintf("  %s  relevance %.2f  via %s\n",
			paper.ArxivID, best.Best.Relevance, best.Best.SourceCategory))
	} else {
		b.WriteString(labelStyle.Render("  no candidate cleared the relevance bar, using the placeholder") + "\n")
	}
	if paper.KeyFinding != "" {
		b.WriteString("  " + bodyStyle.Render(paper.KeyFinding) + "\n")
	}
	if paper.PDFURL != "" {
		b.WriteString("  " + linkStyle.Render(paper.PDFURL) + "\n")
	}

	b.WriteString("\n" + labelStyle.Render(fmt.Sprintf("%d stories analyzed, results saved to %s",
		len(all), snapshotPath)))

	return cardStyle.Render(strings.TrimRight(b.String(), "\n"))
}
