// Package news holds the shared news item data model.
package news

import "time"

// Item is a single news story from any source.
type Item struct {
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Summary   string    `json:"summary,omitempty"`
	URL       string    `json:"url,omitempty"`
	Published time.Time `json:"published,omitempty"`
}

// Key identifies an item for matching across pipeline stages. URLs are
// preferred; title is the fallback for sources without stable links.
func (i Item) Key() string {
	if i.URL != "" {
		return i.URL
	}
	return i.Title
}

// Text combines title and summary for embedding and matching.
func (i Item) Text(sep string) string {
	if i.Summary == "" {
		return i.Title
	}
	return i.Title + sep + i.Summary
}

// RankedItem is an item with its impact score and reasoning, as returned by
// the impact ranker.
type RankedItem struct {
	Item      Item    `json:"item"`
	Score     float64 `json:"score"` // 1-10 scale
	Reasoning string  `json:"reasoning"`
}
