package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a long string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.input, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	// Japanese characters are multi-byte but should truncate by rune
	input := "こんにちは世界です"
	got := truncate(input, 5)
	want := "こん..."
	if got != want {
		t.Errorf("truncate(%q, 5) = %q, want %q", input, got, want)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>Hello</p>", "Hello"},
		{"<b>Bold</b> and <i>italic</i>", "Bold and italic"},
		{"No tags here", "No tags here"},
		{"<div>  Multiple   spaces  </div>", "Multiple spaces"},
		{"", ""},
		{"<a href=\"url\">Link</a> text", "Link text"},
		{"Fish &amp; chips&nbsp;&quot;daily&quot;", `Fish & chips "daily"`},
	}
	for _, tt := range tests {
		got := stripHTML(tt.input)
		if got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func testBundles(urlA, urlB string) []Bundle {
	return []Bundle{
		{
			Name:       "AI Infrastructure",
			FeedURLs:   []string{urlA},
			ArxivCodes: []string{"cs.AI", "cs.LG"},
			Priority:   10,
			Enabled:    true,
		},
		{
			Name:       "Quant Finance",
			FeedURLs:   []string{urlB},
			ArxivCodes: []string{"q-fin.TR"},
			Priority:   5,
			Enabled:    true,
		},
		{
			Name:       "Disabled",
			FeedURLs:   []string{"http://unused.example/feed"},
			ArxivCodes: []string{"cs.CR"},
			Priority:   99,
			Enabled:    false,
		},
	}
}

func TestBundleManagerFiltersAndIndexes(t *testing.T) {
	m := NewBundleManager(testBundles("http://a/feed", "http://b/feed"))

	bundles := m.Bundles()
	require.Len(t, bundles, 2)
	assert.Equal(t, "AI Infrastructure", bundles[0].Name)
	assert.Equal(t, "Quant Finance", bundles[1].Name)

	ai := m.BundlesFor("cs.AI")
	require.Len(t, ai, 1)
	assert.Equal(t, "AI Infrastructure", ai[0].Name)
	assert.Empty(t, m.BundlesFor("cs.CR"))

	assert.Equal(t, []string{"http://a/feed", "http://b/feed"}, m.FeedURLs())

	b, ok := m.BundleFor("http://b/feed")
	require.True(t, ok)
	assert.Equal(t, "Quant Finance", b.Name)
	_, ok = m.BundleFor("http://unknown/feed")
	assert.False(t, ok)
}

func TestFeedURLsDeduplicates(t *testing.T) {
	m := NewBundleManager([]Bundle{
		{Name: "one", FeedURLs: []string{"http://x/feed"}, Priority: 2, Enabled: true},
		{Name: "two", FeedURLs: []string{"http://x/feed", "http://y/feed"}, Priority: 1, Enabled: true},
	})
	assert.Equal(t, []string{"http://x/feed", "http://y/feed"}, m.FeedURLs())
}

func rssFeed(title string, items ...string) string {
	body := ""
	for _, it := range items {
		body += it
	}
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>%s</title>%s</channel></rss>`, title, body)
}

func rssItem(title, link, description, pubDate string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><description>%s</description><pubDate>%s</pubDate></item>`,
		title, link, description, pubDate)
}

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBundledTagsAndSorts(t *testing.T) {
	srvA := serveFeed(t, rssFeed("AI Feed",
		rssItem("New consensus mechanism ships", "http://news/a1", "<p>Protocol &amp; latency</p>", "Mon, 02 Jun 2025 10:00:00 GMT"),
		rssItem("Older story", "http://news/a2", "details", "Sun, 01 Jun 2025 10:00:00 GMT"),
	))
	srvB := serveFeed(t, rssFeed("Quant Feed",
		rssItem("Exchange adds new order type", "http://news/b1", "microstructure", "Tue, 03 Jun 2025 10:00:00 GMT"),
	))

	fetcher := NewFetcher(NewBundleManager(testBundles(srvA.URL, srvB.URL)))
	items := fetcher.FetchBundled(context.Background(), 0)
	require.Len(t, items, 3)

	// Newest first.
	assert.Equal(t, "Exchange adds new order type", items[0].Item.Title)
	assert.Equal(t, "Quant Feed", items[0].Item.Source)
	assert.Equal(t, "Quant Finance", items[0].BundleName)
	assert.Equal(t, []string{"q-fin.TR"}, items[0].ArxivCodes)

	assert.Equal(t, "New consensus mechanism ships", items[1].Item.Title)
	assert.Equal(t, "Protocol & latency", items[1].Item.Summary)
	assert.Equal(t, []string{"cs.AI", "cs.LG"}, items[1].ArxivCodes)
}

func TestFetchBundledLimitAndDedup(t *testing.T) {
	shared := rssItem("Same story", "http://news/same", "dup", "Mon, 02 Jun 2025 10:00:00 GMT")
	srvA := serveFeed(t, rssFeed("A", shared,
		rssItem("Only in A", "http://news/a", "x", "Mon, 02 Jun 2025 09:00:00 GMT")))
	srvB := serveFeed(t, rssFeed("B", shared))

	fetcher := NewFetcher(NewBundleManager(testBundles(srvA.URL, srvB.URL)))
	items := fetcher.FetchBundled(context.Background(), 0)
	require.Len(t, items, 2)
	// The higher-priority bundle keeps the duplicate.
	assert.Equal(t, "AI Infrastructure", items[0].BundleName)

	limited := fetcher.FetchBundled(context.Background(), 1)
	assert.Len(t, limited, 1)
}

func TestFetchBundledSurvivesFeedFailure(t *testing.T) {
	srvA := serveFeed(t, rssFeed("A",
		rssItem("Works", "http://news/a", "x", "Mon, 02 Jun 2025 10:00:00 GMT")))
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srvB.Close)

	fetcher := NewFetcher(NewBundleManager(testBundles(srvA.URL, srvB.URL)))
	items := fetcher.FetchBundled(context.Background(), 0)
	require.Len(t, items, 1)
	assert.Equal(t, "Works", items[0].Item.Title)
}

func TestGoogleAlertFallback(t *testing.T) {
	var fallbackQuery string
	news := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, rssFeed("Google News",
			rssItem("Backfilled story", "http://news/g1", "x", "Mon, 02 Jun 2025 10:00:00 GMT")))
	}))
	t.Cleanup(news.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/google.com/alerts/feeds/123", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, rssFeed(`Google Alert - "transformer architecture"`))
	})
	alerts := httptest.NewServer(mux)
	t.Cleanup(alerts.Close)

	alertURL := alerts.URL + "/google.com/alerts/feeds/123"
	fetcher := NewFetcher(NewBundleManager([]Bundle{{
		Name:       "Alerts",
		FeedURLs:   []string{alertURL},
		ArxivCodes: []string{"cs.AI"},
		Enabled:    true,
	}}))
	fetcher.newsBase = news.URL

	items := fetcher.FetchBundled(context.Background(), 0)
	require.Len(t, items, 1)
	assert.Equal(t, "Backfilled story", items[0].Item.Title)
	assert.Equal(t, `"transformer architecture"`, fallbackQuery)
}

func TestGoogleNewsURL(t *testing.T) {
	f := NewFetcher(NewBundleManager(nil))
	got := f.googleNewsURL(`"zero-day exploit" OR "CVE"`)
	assert.Equal(t,
		"https://news.google.com/rss/search?q=%22zero-day+exploit%22+OR+%22CVE%22&hl=en-US&gl=US&ceid=US:en",
		got)
}
