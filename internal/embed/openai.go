package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder. The dimension defaults to the
// model's native size when Dimensions is zero.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, oderrors.ConfigError("openai embeddings require an API key", nil).
			WithSuggestion("set OPENAI_API_KEY or embeddings.api_key_env")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = nativeOpenAIDimensions(cfg.Model)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	cfg.BatchSize = min(cfg.BatchSize, MaxBatchSize)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

func nativeOpenAIDimensions(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch embeds texts in BatchSize requests. Blank texts map to zero
// vectors since the API rejects empty input.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, oderrors.ModelError("embedder is closed", nil)
	}

	results := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.config.Dimensions)
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		idx := pending[start:min(start+e.config.BatchSize, len(pending))]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vecs, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			results[i] = vecs[j]
		}
	}
	return results, nil
}

func (e *OpenAIEmbedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	cfg := oderrors.DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries

	vecs, err := oderrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.createEmbeddings(callCtx, batch)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, oderrors.ModelError("openai embedding failed", err)
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) createEmbeddings(ctx context.Context, batch []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.config.Model),
		Input: batch,
	}
	if e.config.Dimensions != nativeOpenAIDimensions(e.config.Model) {
		req.Dimensions = e.config.Dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, oderrors.New(oderrors.ErrCodeEmbedderBackend, "embeddings request failed", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
	}

	out := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != e.config.Dimensions {
			return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(d.Embedding), e.config.Dimensions)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[d.Index] = normalizeVector(vec)
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available issues a one-word embedding request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, err := e.createEmbeddings(ctx, []string{"ping"})
	return err == nil
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
