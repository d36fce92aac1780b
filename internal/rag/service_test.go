package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/onedesk/internal/cache"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/store"
)

func policyResults() []store.Result {
	return []store.Result{
		{Text: "Employees receive 20 vacation days per year.", Score: 0.912345, Meta: store.Meta{Source: "leave.pdf", Chunk: 3}},
		{Text: "Unused vacation days roll over up to 5 days.", Score: 0.80001, Meta: store.Meta{Source: "leave.pdf", Chunk: 4}},
		{Text: "Sick leave is separate from vacation.", Score: 0.5, Meta: store.Meta{Source: "sick.pdf", Chunk: 0}},
	}
}

func enabledCaches() *cache.Manager[Answer] {
	return cache.NewManager[Answer](cache.ManagerConfig{
		ResponseEnabled:   true,
		ResponseTTL:       time.Hour,
		EmbeddingEnabled:  true,
		EmbeddingTTL:      time.Hour,
		ResponseCapacity:  10,
		EmbeddingCapacity: 10,
	})
}

type fixture struct {
	svc      *Service
	embedder *fakeEmbedder
	index    *fakeIndex
	llm      *fakeLLM
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		embedder: &fakeEmbedder{vec: []float32{1, 0}},
		index:    &fakeIndex{results: policyResults()},
		llm:      &fakeLLM{reply: "  You get 20 days.  "},
	}
	f.svc = New(f.index, f.embedder, f.llm, enabledCaches(), cfg)
	return f
}

func TestAsk_Answers(t *testing.T) {
	// Given: an index with three policy chunks
	f := newFixture(DefaultConfig())

	// When: asking a question
	ans, err := f.svc.Ask(context.Background(), "  How many vacation days?  ", 3)

	// Then: the trimmed LLM reply, all contexts and rounded sources come back
	require.NoError(t, err)
	assert.Equal(t, "You get 20 days.", ans.Answer)
	assert.False(t, ans.Cached)
	assert.Len(t, ans.Contexts, 3)
	require.Len(t, ans.Sources, 3)
	assert.Equal(t, Source{Source: "leave.pdf", Chunk: 3, Score: 0.9123}, ans.Sources[0])
	assert.Equal(t, 0.8, ans.Sources[1].Score)

	// And: the prompt labels contexts with their sources
	require.Len(t, f.llm.messages, 2)
	user := f.llm.messages[1].Content
	assert.Contains(t, user, "Question: How many vacation days?")
	assert.Contains(t, user, "[Context 1 - leave.pdf]:\nEmployees receive 20 vacation days per year.")
	assert.Contains(t, user, "[Context 3 - sick.pdf]:")
}

func TestAsk_SecondCallIsCached(t *testing.T) {
	// Given: a question already answered once
	f := newFixture(DefaultConfig())
	first, err := f.svc.Ask(context.Background(), "How many vacation days?", 5)
	require.NoError(t, err)

	// When: the same question is asked again
	second, err := f.svc.Ask(context.Background(), "How many vacation days?", 5)

	// Then: it comes from the cache without touching the embedder or LLM
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.False(t, first.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Contexts, second.Contexts)
	assert.Equal(t, 1, f.embedder.Calls())
	assert.Equal(t, 1, f.llm.Calls())
}

func TestAsk_DifferentTopKMisses(t *testing.T) {
	f := newFixture(DefaultConfig())
	_, err := f.svc.Ask(context.Background(), "q", 2)
	require.NoError(t, err)

	ans, err := f.svc.Ask(context.Background(), "q", 3)

	require.NoError(t, err)
	assert.False(t, ans.Cached)
	assert.Equal(t, 2, f.llm.Calls())
	// The query embedding is reused.
	assert.Equal(t, 1, f.embedder.Calls())
}

func TestAsk_DefaultTopK(t *testing.T) {
	f := newFixture(DefaultConfig())

	_, err := f.svc.Ask(context.Background(), "q", 0)

	require.NoError(t, err)
	assert.Equal(t, 5, f.index.lastK)
}

func TestAsk_InvalidInput(t *testing.T) {
	f := newFixture(DefaultConfig())

	tests := []struct {
		name  string
		query string
		topK  int
		code  string
	}{
		{"empty query", "", 5, oderrors.ErrCodeQueryEmpty},
		{"whitespace query", " \t\n", 5, oderrors.ErrCodeQueryEmpty},
		{"punctuation query", "???", 5, oderrors.ErrCodeQueryEmpty},
		{"dashes query", " ----- ", 5, oderrors.ErrCodeQueryEmpty},
		{"negative top_k", "q", -1, oderrors.ErrCodeInvalidInput},
		{"top_k above max", "q", 21, oderrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ask(context.Background(), tt.query, tt.topK)
			require.Error(t, err)
			assert.Equal(t, tt.code, oderrors.GetCode(err))
			assert.Equal(t, oderrors.CategoryValidation, oderrors.GetCategory(err))
		})
	}
	assert.Equal(t, 0, f.embedder.Calls())
}

func TestAsk_EmptyIndexReturnsNotFound(t *testing.T) {
	// Given: an empty index
	f := newFixture(DefaultConfig())
	f.index.results = nil

	// When: asking
	ans, err := f.svc.Ask(context.Background(), "anything", 5)

	// Then: a well-formed not-found answer, no LLM call, nothing cached
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, ans.Answer)
	assert.Empty(t, ans.Contexts)
	assert.NotNil(t, ans.Sources)
	assert.Equal(t, 0, f.llm.Calls())

	f.index.results = policyResults()
	again, err := f.svc.Ask(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.False(t, again.Cached)
	assert.Equal(t, 1, f.llm.Calls())
}

func TestAsk_ContextBudget(t *testing.T) {
	// Given: three 9000-character results and a 20000-character budget
	f := newFixture(DefaultConfig())
	big := strings.Repeat("a", 9000)
	f.index.results = []store.Result{
		{Text: big, Score: 0.9, Meta: store.Meta{Source: "a", Chunk: 0}},
		{Text: big, Score: 0.8, Meta: store.Meta{Source: "a", Chunk: 1}},
		{Text: big, Score: 0.7, Meta: store.Meta{Source: "a", Chunk: 2}},
	}

	// When: asking
	ans, err := f.svc.Ask(context.Background(), "q", 3)

	// Then: only the first two fit
	require.NoError(t, err)
	assert.Len(t, ans.Contexts, 2)
	assert.Len(t, ans.Sources, 2)
}

func TestAsk_FirstContextAlwaysIncluded(t *testing.T) {
	f := newFixture(Config{MaxContextLength: 10})
	f.index.results = []store.Result{
		{Text: strings.Repeat("x", 50), Score: 0.9, Meta: store.Meta{Source: "a"}},
		{Text: "short", Score: 0.8, Meta: store.Meta{Source: "b"}},
	}

	ans, err := f.svc.Ask(context.Background(), "q", 2)

	require.NoError(t, err)
	require.Len(t, ans.Contexts, 1)
	assert.Len(t, ans.Contexts[0], 50)
}

func TestAsk_LLMFailureDegradesAndIsNotCached(t *testing.T) {
	// Given: an LLM that fails
	f := newFixture(DefaultConfig())
	f.llm.err = oderrors.BackendError("LLM request failed", errBackendDown)

	// When: asking twice
	first, err := f.svc.Ask(context.Background(), "q", 3)
	require.NoError(t, err)
	second, err := f.svc.Ask(context.Background(), "q", 3)
	require.NoError(t, err)

	// Then: both are degraded answers with contexts, and neither is cached
	assert.True(t, strings.HasPrefix(first.Answer, "I encountered an error while processing your question: "))
	assert.Contains(t, first.Answer, "LLM request failed")
	assert.Len(t, first.Contexts, 3)
	assert.True(t, first.Degraded)
	assert.False(t, second.Cached)
	assert.Equal(t, 2, f.llm.Calls())
}

func TestAsk_EmbedderFailurePropagates(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.embedder.err = oderrors.ModelError("embedding failed", errBackendDown)

	_, err := f.svc.Ask(context.Background(), "q", 3)

	require.Error(t, err)
	assert.Equal(t, oderrors.ErrCodeEmbeddingFailed, oderrors.GetCode(err))
	assert.Equal(t, 0, f.llm.Calls())
}

func TestAsk_IndexFailurePropagates(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.index.err = oderrors.DimensionError(256, 2)

	_, err := f.svc.Ask(context.Background(), "q", 3)

	require.Error(t, err)
	assert.Equal(t, oderrors.ErrCodeDimensionMismatch, oderrors.GetCode(err))
}

func TestAsk_ExcludeSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeSources = false
	f := newFixture(cfg)

	ans, err := f.svc.Ask(context.Background(), "q", 3)

	require.NoError(t, err)
	assert.Empty(t, ans.Sources)
	assert.NotNil(t, ans.Sources)
	assert.Len(t, ans.Contexts, 3)
}

func TestAsk_CachingDisabled(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.svc = New(f.index, f.embedder, f.llm, nil, DefaultConfig())

	_, err := f.svc.Ask(context.Background(), "q", 3)
	require.NoError(t, err)
	ans, err := f.svc.Ask(context.Background(), "q", 3)
	require.NoError(t, err)

	assert.False(t, ans.Cached)
	assert.Equal(t, 2, f.embedder.Calls())
	assert.Equal(t, 2, f.llm.Calls())
}

func TestAsk_LatencyIsPerCall(t *testing.T) {
	// Given: a clock that advances 40ms per reading
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(40 * time.Millisecond)
		return now
	}
	f := newFixture(DefaultConfig())
	f.svc = New(f.index, f.embedder, f.llm, enabledCaches(), DefaultConfig(), WithClock(clock))

	// When: answering then hitting the cache
	first, err := f.svc.Ask(context.Background(), "q", 3)
	require.NoError(t, err)
	second, err := f.svc.Ask(context.Background(), "q", 3)
	require.NoError(t, err)

	// Then: each call reports its own latency
	assert.Equal(t, int64(40), first.LatencyMS)
	assert.Equal(t, int64(40), second.LatencyMS)
	assert.True(t, second.Cached)
}

func TestRetrieve(t *testing.T) {
	f := newFixture(DefaultConfig())

	results, err := f.svc.Retrieve(context.Background(), "standup notes", 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 0, f.llm.Calls())

	_, err = f.svc.Retrieve(context.Background(), "   ", 2)
	require.Error(t, err)
}

func TestFilterContexts(t *testing.T) {
	mk := func(lens ...int) []store.Result {
		out := make([]store.Result, len(lens))
		for i, n := range lens {
			out[i] = store.Result{Text: strings.Repeat("é", n)}
		}
		return out
	}

	tests := []struct {
		name  string
		lens  []int
		limit int
		want  int
	}{
		{"all fit", []int{10, 10}, 20, 2},
		{"stops at overflow", []int{10, 10, 1}, 15, 1},
		{"first over budget", []int{30, 1}, 20, 1},
		{"empty", nil, 20, 0},
		{"stops even if later ones fit", []int{5, 20, 1}, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, filterContexts(mk(tt.lens...), tt.limit), tt.want)
		})
	}
}
