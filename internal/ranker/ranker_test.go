package ranker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brahma2024/agentic-ledger/internal/llm"
	"github.com/brahma2024/agentic-ledger/internal/news"
)

type stubCompleter struct {
	content string
	err     error
	lastReq llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	s.lastReq = req
	return s.content, s.err
}

func sampleItems() []news.Item {
	return []news.Item{
		{Title: "New consensus protocol cuts latency 40%", Source: "HN", URL: "https://a"},
		{Title: "CEO predicts AI will change everything", Source: "TC", URL: "https://b"},
		{Title: "Zero-day in trading gateway disclosed", Source: "Sec", URL: "https://c"},
	}
}

func TestRankSortsByScore(t *testing.T) {
	stub := &stubCompleter{content: `{"rankings": [
		{"index": 0, "score": 8.0, "reasoning": "protocol change"},
		{"index": 1, "score": 2.0, "reasoning": "gossip"},
		{"index": 2, "score": 9.5, "reasoning": "novel exploit"}
	]}`}
	r := New(stub)

	ranked := r.Rank(context.Background(), sampleItems(), 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, "Zero-day in trading gateway disclosed", ranked[0].Item.Title)
	assert.Equal(t, 9.5, ranked[0].Score)
	assert.Equal(t, 8.0, ranked[1].Score)
	assert.Equal(t, 2.0, ranked[2].Score)

	assert.True(t, stub.lastReq.JSONObject)
	assert.Equal(t, 0.3, stub.lastReq.Temperature)
}

func TestRankTruncatesToTopN(t *testing.T) {
	stub := &stubCompleter{content: `{"rankings": [
		{"index": 0, "score": 8.0, "reasoning": "a"},
		{"index": 1, "score": 2.0, "reasoning": "b"},
		{"index": 2, "score": 9.5, "reasoning": "c"}
	]}`}
	ranked := New(stub).Rank(context.Background(), sampleItems(), 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 9.5, ranked[0].Score)
	assert.Equal(t, 8.0, ranked[1].Score)
}

func TestRankClampsScores(t *testing.T) {
	stub := &stubCompleter{content: `{"rankings": [
		{"index": 0, "score": 15.0, "reasoning": "too high"},
		{"index": 1, "score": -3.0, "reasoning": "too low"},
		{"index": 2, "score": 7.0, "reasoning": "ok"}
	]}`}
	ranked := New(stub).Rank(context.Background(), sampleItems(), 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, 10.0, ranked[0].Score)
	assert.Equal(t, 7.0, ranked[1].Score)
	assert.Equal(t, 1.0, ranked[2].Score)
}

func TestRankFillsUnparsedItemsWithDefault(t *testing.T) {
	stub := &stubCompleter{content: `{"rankings": [
		{"index": 2, "score": 9.0, "reasoning": "exploit"}
	]}`}
	ranked := New(stub).Rank(context.Background(), sampleItems(), 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, 9.0, ranked[0].Score)
	for _, r := range ranked[1:] {
		assert.Equal(t, 5.0, r.Score)
		assert.Equal(t, "Unable to parse ranking for this item", r.Reasoning)
	}
}

func TestRankIgnoresOutOfRangeIndices(t *testing.T) {
	stub := &stubCompleter{content: `{"rankings": [
		{"index": 7, "score": 9.0, "reasoning": "bogus"},
		{"index": -1, "score": 9.0, "reasoning": "bogus"},
		{"index": 0, "score": 6.0, "reasoning": "fine"}
	]}`}
	ranked := New(stub).Rank(context.Background(), sampleItems(), 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, 6.0, ranked[0].Score)
}

func TestRankBareArrayResponse(t *testing.T) {
	stub := &stubCompleter{content: `[{"index": 1, "score": 4.0, "reasoning": "meh"}]`}
	ranked := New(stub).Rank(context.Background(), sampleItems(), 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, 5.0, ranked[0].Score)
	assert.Equal(t, 5.0, ranked[1].Score)
	assert.Equal(t, 4.0, ranked[2].Score)
}

func TestRankFallbackOnCompleterError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("api down")}
	items := sampleItems()

	ranked := New(stub).Rank(context.Background(), items, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, items[0].Title, ranked[0].Item.Title)
	assert.Equal(t, 7.0, ranked[0].Score)
	assert.Equal(t, 6.5, ranked[1].Score)
	assert.Equal(t, "Ranked by recency (fallback)", ranked[0].Reasoning)
}

func TestRankFallbackOnGarbageResponse(t *testing.T) {
	stub := &stubCompleter{content: "not json at all"}
	ranked := New(stub).Rank(context.Background(), sampleItems(), 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, 7.0, ranked[0].Score)
}

func TestRankEmptyInput(t *testing.T) {
	ranked := New(&stubCompleter{}).Rank(context.Background(), nil, 5)
	assert.Nil(t, ranked)
}

func TestTop(t *testing.T) {
	stub := &stubCompleter{content: `{"rankings": [
		{"index": 0, "score": 3.0, "reasoning": "a"},
		{"index": 1, "score": 8.0, "reasoning": "b"},
		{"index": 2, "score": 5.0, "reasoning": "c"}
	]}`}
	top := New(stub).Top(context.Background(), sampleItems())
	require.NotNil(t, top)
	assert.Equal(t, 8.0, top.Score)

	assert.Nil(t, New(&stubCompleter{}).Top(context.Background(), nil))
}
