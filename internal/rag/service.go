package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/onedesk/internal/cache"
	"github.com/Aman-CERP/onedesk/internal/chunk"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/llm"
	"github.com/Aman-CERP/onedesk/internal/store"
)

// Service runs the retrieval pipeline. It is safe for concurrent use; the
// index and caches carry their own locking.
type Service struct {
	index    Index
	embedder Embedder
	llm      llm.Client
	cache    *cache.Manager[Answer]
	cfg      Config
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. A nil cache manager disables caching.
func New(index Index, embedder Embedder, client llm.Client, caches *cache.Manager[Answer], cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = def.MaxTopK
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = def.MaxContextLength
	}
	if caches == nil {
		caches = cache.NewManager[Answer](cache.ManagerConfig{})
	}
	s := &Service{
		index:    index,
		embedder: embedder,
		llm:      client,
		cache:    caches,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveTopK validates topK against the configured maximum. Zero selects
// the default.
func (s *Service) ResolveTopK(topK int) (int, error) {
	switch {
	case topK == 0:
		return s.cfg.DefaultTopK, nil
	case topK < 0 || topK > s.cfg.MaxTopK:
		return 0, oderrors.ValidationError(
			fmt.Sprintf("top_k must be between 1 and %d, got %d", s.cfg.MaxTopK, topK), nil).
			WithDetail("top_k", fmt.Sprint(topK))
	default:
		return topK, nil
	}
}

func normalizeQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", oderrors.New(oderrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if !chunk.HasWordChars(q) {
		return "", oderrors.New(oderrors.ErrCodeQueryEmpty, "query must contain a letter or digit", nil)
	}
	return q, nil
}

// Ask answers query from the top topK chunks. A topK of zero uses the
// default. LLM failures produce a degraded answer, not an error; embedding
// and index failures are returned.
func (s *Service) Ask(ctx context.Context, query string, topK int) (*Answer, error) {
	start := s.now()

	q, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	k, err := s.ResolveTopK(topK)
	if err != nil {
		return nil, err
	}

	key := cache.ResponseKey(q, k, s.llm.Model())
	if hit, ok := s.cache.GetResponse(key); ok {
		hit.Cached = true
		hit.LatencyMS = s.since(start)
		slog.Info("ask_cache_hit", slog.Int("top_k", k), slog.Int64("latency_ms", hit.LatencyMS))
		return &hit, nil
	}

	results, err := s.retrieve(ctx, q, k)
	if err != nil {
		return nil, err
	}
	contexts := filterContexts(results, s.cfg.MaxContextLength)

	if len(contexts) == 0 {
		slog.Info("ask_no_context", slog.Int("top_k", k), slog.Int("results", len(results)))
		return &Answer{
			Answer:    NotFoundAnswer,
			Contexts:  []string{},
			Sources:   []Source{},
			LatencyMS: s.since(start),
		}, nil
	}

	text, degraded := s.synthesize(ctx, q, contexts)

	ans := Answer{
		Answer:   text,
		Contexts: make([]string, len(contexts)),
		Sources:  []Source{},
		Degraded: degraded,
	}
	for i, c := range contexts {
		ans.Contexts[i] = c.Text
		if s.cfg.IncludeSources {
			ans.Sources = append(ans.Sources, Source{
				Source: c.Meta.Source,
				Chunk:  c.Meta.Chunk,
				Score:  round4(c.Score),
			})
		}
	}

	if !degraded {
		s.cache.SetResponse(key, ans)
	}
	ans.LatencyMS = s.since(start)

	slog.Info("ask_complete",
		slog.Int("top_k", k),
		slog.Int("results", len(results)),
		slog.Int("contexts", len(contexts)),
		slog.Bool("degraded", degraded),
		slog.Int64("latency_ms", ans.LatencyMS))
	return &ans, nil
}

// Retrieve embeds query and returns the top topK index results without
// synthesis.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) ([]store.Result, error) {
	q, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	k, err := s.ResolveTopK(topK)
	if err != nil {
		return nil, err
	}
	return s.retrieve(ctx, q, k)
}

func (s *Service) retrieve(ctx context.Context, query string, k int) ([]store.Result, error) {
	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.index.Search(vec, k)
}

// queryVector consults the embedding cache before the embedder.
func (s *Service) queryVector(ctx context.Context, query string) ([]float32, error) {
	key := cache.EmbeddingKey(query)
	if vec, ok := s.cache.GetEmbedding(key); ok {
		return vec, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	s.cache.SetEmbedding(key, vec)
	return vec, nil
}

// synthesize returns the LLM answer, or a degraded answer describing the
// failure.
func (s *Service) synthesize(ctx context.Context, query string, contexts []store.Result) (string, bool) {
	reply, err := s.llm.Generate(ctx, buildMessages(query, contexts), llm.Options{})
	if err != nil {
		slog.Warn("ask_llm_failed", oderrors.FormatForLog(err)...)
		return degradedPrefix + err.Error(), true
	}
	return strings.TrimSpace(reply), false
}

// filterContexts accepts results in score order until the next one would
// push the total character count past limit. The first result is always
// accepted.
func filterContexts(results []store.Result, limit int) []store.Result {
	total := 0
	for i, r := range results {
		n := utf8.RuneCountInString(r.Text)
		if i > 0 && total+n > limit {
			return results[:i]
		}
		total += n
	}
	return results
}

func round4(score float32) float64 {
	return math.Round(float64(score)*10000) / 10000
}

func (s *Service) since(start time.Time) int64 {
	return s.now().Sub(start).Milliseconds()
}
