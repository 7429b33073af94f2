// Package arxiv searches the arXiv Atom API for candidate papers.
package arxiv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/brahma2024/agentic-ledger/internal/llm"
	"github.com/brahma2024/agentic-ledger/internal/logger"
)

const defaultBaseURL = "https://export.arxiv.org/api/query"

// PlaceholderID marks the stand-in paper used when no real paper was found.
const PlaceholderID = "placeholder"

// Paper is a single arXiv paper.
type Paper struct {
	ArxivID    string     `json:"arxiv_id"`
	Title      string     `json:"title"`
	Abstract   string     `json:"abstract"`
	Authors    []string   `json:"authors"`
	Categories []string   `json:"categories"`
	Published  *time.Time `json:"published"`
	PDFURL     string     `json:"pdf_url"`
	KeyFinding string     `json:"key_finding,omitempty"`
}

// Text combines title and abstract for relevance scoring.
func (p *Paper) Text() string {
	return p.Title + "\n" + p.Abstract
}

// Placeholder creates a stand-in paper for graceful degradation when no
// relevant paper was found.
func Placeholder() *Paper {
	now := time.Now()
	return &Paper{
		ArxivID: PlaceholderID,
		Title:   "No Relevant Academic Paper Found",
		Abstract: "Our search did not find a directly relevant academic paper for today's news. " +
			"This segment will focus on general principles and industry analysis instead.",
		Authors:    []string{"The Agentic Ledger Research Team"},
		Categories: []string{"general"},
		Published:  &now,
		KeyFinding: "While no specific paper matched today's news, we can draw on established " +
			"research principles in financial AI and quantitative analysis.",
	}
}

// Config holds the client tunables. Completer is optional; without it key
// finding extraction degrades to a generic summary.
type Config struct {
	BaseURL      string
	MaxResults   int
	LookbackDays int
	Timeout      time.Duration
	Completer    llm.Completer
}

// Client queries the arXiv API. Search returns at most one paper per call.
type Client struct {
	baseURL      string
	maxResults   int
	lookbackDays int
	client       *http.Client
	parser       *gofeed.Parser
	completer    llm.Completer
	log          *slog.Logger
}

// NewClient creates an arXiv search client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 365
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		maxResults:   cfg.MaxResults,
		lookbackDays: cfg.LookbackDays,
		client:       &http.Client{Timeout: cfg.Timeout},
		parser:       gofeed.NewParser(),
		completer:    cfg.Completer,
		log:          logger.New("arxiv"),
	}
}

// buildQuery assembles the arXiv search expression: the category filter
// ANDed with a title/abstract keyword search. Multi-word keywords are
// quoted.
func buildQuery(category string, keywords []string) string {
	catQuery := "cat:" + category

	var terms []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			terms = append(terms, `"`+kw+`"`)
		} else {
			terms = append(terms, kw)
		}
	}
	if len(terms) == 0 {
		return "(" + catQuery + ")"
	}

	keywordQuery := strings.Join(terms, " OR ")
	return fmt.Sprintf("(%s) AND (ti:%s OR abs:%s)", catQuery, keywordQuery, keywordQuery)
}

// Search queries one category for papers matching the keywords and returns
// the best match, preferring papers inside the lookback window. A nil paper
// with nil error means nothing matched.
func (c *Client) Search(ctx context.Context, category string, keywords []string) (*Paper, error) {
	if len(keywords) == 0 {
		c.log.Warn("no keywords provided for arxiv search")
		return nil, nil
	}

	params := url.Values{
		"search_query": {buildQuery(category, keywords)},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(c.maxResults)},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}
	reqURL := c.baseURL + "?" + params.Encode()
	c.log.Debug("searching arxiv", "category", category, "keywords", strings.Join(keywords, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching from arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("arxiv API status %d", resp.StatusCode)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing arxiv response: %w", err)
	}

	papers := entriesToPapers(feed.Items)
	if len(papers) == 0 {
		c.log.Info("no papers found matching keywords")
		return nil, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -c.lookbackDays)
	var recent []*Paper
	for _, p := range papers {
		if p.Published != nil && !p.Published.Before(cutoff) {
			recent = append(recent, p)
		}
	}
	if len(recent) == 0 {
		c.log.Info("no papers within lookback window, returning most recent", "lookback_days", c.lookbackDays)
		sort.SliceStable(papers, func(i, j int) bool {
			ti, tj := published(papers[i]), published(papers[j])
			return ti.After(tj)
		})
		return papers[0], nil
	}

	// Results arrive relevance-sorted; the first recent one wins.
	return recent[0], nil
}

func published(p *Paper) time.Time {
	if p.Published == nil {
		return time.Time{}
	}
	return *p.Published
}

func entriesToPapers(items []*gofeed.Item) []*Paper {
	papers := make([]*Paper, 0, len(items))
	for _, item := range items {
		if item == nil || item.GUID == "" {
			continue
		}
		// Entry IDs look like http://arxiv.org/abs/XXXX.XXXXX
		id := item.GUID
		if i := strings.LastIndex(id, "/abs/"); i >= 0 {
			id = id[i+len("/abs/"):]
		}

		authors := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			if a != nil && a.Name != "" {
				authors = append(authors, strings.TrimSpace(a.Name))
			}
		}

		papers = append(papers, &Paper{
			ArxivID:    id,
			Title:      squeeze(item.Title),
			Abstract:   squeeze(item.Description),
			Authors:    authors,
			Categories: item.Categories,
			Published:  item.PublishedParsed,
			PDFURL:     fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", id),
		})
	}
	return papers
}

// squeeze normalizes runs of whitespace, which arXiv entries carry from the
// raw Atom markup.
func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
