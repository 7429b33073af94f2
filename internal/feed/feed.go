// Package feed fetches bundled RSS feeds and tags every item with the arXiv
// category hints of the bundle it came from.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/brahma2024/agentic-ledger/internal/logger"
	"github.com/brahma2024/agentic-ledger/internal/news"
)

// Browser-like User-Agent, Google blocks the default Go one.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

const googleNewsBase = "https://news.google.com/rss/search"

const alertTitlePrefix = "Google Alert - "

// Bundle is a set of RSS feeds aligned with one or more arXiv categories.
type Bundle struct {
	Name        string   `yaml:"name" json:"name"`
	FeedURLs    []string `yaml:"feed_urls" json:"feed_urls"`
	ArxivCodes  []string `yaml:"arxiv_codes" json:"arxiv_codes"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    int      `yaml:"priority" json:"priority"`
	Enabled     bool     `yaml:"enabled" json:"enabled"`
}

// BundledItem is a news item carrying the bundle context used as convergence
// hints downstream.
type BundledItem struct {
	Item       news.Item
	BundleName string
	ArxivCodes []string
}

// BundleManager indexes enabled bundles by arXiv category.
type BundleManager struct {
	bundles       []Bundle
	codeToBundles map[string][]Bundle
	log           *slog.Logger
}

// NewBundleManager keeps only enabled bundles and builds the reverse index
// from arXiv code to bundles.
func NewBundleManager(bundles []Bundle) *BundleManager {
	m := &BundleManager{
		codeToBundles: make(map[string][]Bundle),
		log:           logger.New("feed"),
	}
	for _, b := range bundles {
		if !b.Enabled {
			continue
		}
		m.bundles = append(m.bundles, b)
	}
	for _, b := range m.bundles {
		for _, code := range b.ArxivCodes {
			m.codeToBundles[code] = append(m.codeToBundles[code], b)
		}
	}
	if len(m.bundles) == 0 {
		m.log.Warn("no enabled feed bundles configured")
	} else {
		m.log.Info("loaded feed bundles", "count", len(m.bundles))
	}
	return m
}

// Bundles returns the enabled bundles sorted by descending priority.
func (m *BundleManager) Bundles() []Bundle {
	out := make([]Bundle, len(m.bundles))
	copy(out, m.bundles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// BundlesFor returns the bundles aligned with an arXiv category code.
func (m *BundleManager) BundlesFor(arxivCode string) []Bundle {
	return m.codeToBundles[arxivCode]
}

// FeedURLs returns every feed URL once, ordered by bundle priority.
func (m *BundleManager) FeedURLs() []string {
	seen := make(map[string]bool)
	var urls []string
	for _, b := range m.Bundles() {
		for _, u := range b.FeedURLs {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// BundleFor finds the bundle a feed URL belongs to.
func (m *BundleManager) BundleFor(feedURL string) (Bundle, bool) {
	for _, b := range m.bundles {
		for _, u := range b.FeedURLs {
			if u == feedURL {
				return b, true
			}
		}
	}
	return Bundle{}, false
}

// Fetcher pulls RSS feeds with a hybrid fallback: empty Google Alert feeds
// are retried through a Google News RSS search built from the alert query.
type Fetcher struct {
	bundles  *BundleManager
	parser   *gofeed.Parser
	newsBase string
	log      *slog.Logger
}

// NewFetcher builds a fetcher over the bundle manager.
func NewFetcher(bundles *BundleManager) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: 15 * time.Second}
	return &Fetcher{
		bundles:  bundles,
		parser:   parser,
		newsBase: googleNewsBase,
		log:      logger.New("feed"),
	}
}

// FetchBundled fetches every bundle's feeds concurrently and returns items
// newest first, deduplicated by URL in bundle-priority order, capped at limit.
// Individual feed failures are logged, not fatal.
func (f *Fetcher) FetchBundled(ctx context.Context, limit int) []BundledItem {
	urls := f.bundles.FeedURLs()
	f.log.Info("fetching RSS feeds", "feeds", len(urls), "bundles", len(f.bundles.bundles))

	var (
		mu    sync.Mutex
		byURL = make(map[string][]news.Item, len(urls))
		wg    sync.WaitGroup
	)
	for _, u := range urls {
		wg.Add(1)
		go func(feedURL string) {
			defer wg.Done()
			items, err := f.fetchFeed(ctx, feedURL)
			if err != nil {
				f.log.Error("failed to fetch feed", "url", feedURL, "error", err)
				return
			}
			mu.Lock()
			byURL[feedURL] = items
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	// Assemble in priority order so dedup keeps the higher-priority copy.
	seen := make(map[string]bool)
	var bundled []BundledItem
	for _, bundle := range f.bundles.Bundles() {
		for _, u := range bundle.FeedURLs {
			for _, item := range byURL[u] {
				key := item.Key()
				if key != "" && seen[key] {
					continue
				}
				if key != "" {
					seen[key] = true
				}
				bundled = append(bundled, BundledItem{
					Item:       item,
					BundleName: bundle.Name,
					ArxivCodes: bundle.ArxivCodes,
				})
			}
		}
	}

	sort.SliceStable(bundled, func(i, j int) bool {
		return bundled[i].Item.Published.After(bundled[j].Item.Published)
	})
	if limit > 0 && len(bundled) > limit {
		bundled = bundled[:limit]
	}

	f.log.Info("fetched RSS items", "count", len(bundled))
	return bundled
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) ([]news.Item, error) {
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	items := f.feedItems(parsed)
	if len(items) == 0 && isGoogleAlertURL(feedURL) {
		if query, ok := strings.CutPrefix(parsed.Title, alertTitlePrefix); ok {
			f.log.Info("alert feed empty, falling back to Google News", "query", truncate(query, 60))
			fallback, err := f.parser.ParseURLWithContext(f.googleNewsURL(query), ctx)
			if err != nil {
				f.log.Warn("Google News fallback failed", "error", err)
				return nil, nil
			}
			items = f.feedItems(fallback)
			f.log.Info("Google News fallback returned items", "count", len(items))
		}
	}
	return items, nil
}

func (f *Fetcher) feedItems(parsed *gofeed.Feed) []news.Item {
	source := strings.TrimSpace(stripHTML(parsed.Title))
	if source == "" {
		source = "RSS"
	}

	items := make([]news.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		var published time.Time
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}

		items = append(items, news.Item{
			Title:     stripHTML(entry.Title),
			Source:    source,
			Summary:   truncate(stripHTML(summary), 500),
			URL:       entry.Link,
			Published: published,
		})
	}
	return items
}

func isGoogleAlertURL(feedURL string) bool {
	return strings.Contains(feedURL, "google.com/alerts/feeds/")
}

func (f *Fetcher) googleNewsURL(query string) string {
	return f.newsBase + "?q=" + url.QueryEscape(query) + "&hl=en-US&gl=US&ceid=US:en"
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
)

// stripHTML drops tags, decodes the common entities, and collapses
// whitespace.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(entityReplacer.Replace(b.String())), " ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
