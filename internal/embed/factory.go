package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/onedesk/internal/config"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, deterministic).
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses an OpenAI-compatible embeddings API.
	ProviderOpenAI ProviderType = "openai"
)

// ParseProvider converts a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStatic, ProviderOllama, ProviderOpenAI:
		return p, nil
	default:
		return "", oderrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", s), nil)
	}
}

// NewEmbedder builds the configured embedder. An explicitly selected backend
// that is unreachable is an error; there is no silent fallback, because
// vectors from different models cannot share an index.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var e Embedder
	switch provider {
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
			MaxRetries: DefaultMaxRetries,
		})
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey(),
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
			MaxRetries: DefaultMaxRetries,
		})
	default:
		e = NewStaticEmbedder(cfg.Dimensions)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))
	return e, nil
}

// Info is a summary of an embedder for status output.
type Info struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}

// GetInfo reports the embedder's model, dimension and availability.
func GetInfo(ctx context.Context, e Embedder) Info {
	return Info{
		Model:      e.ModelName(),
		Dimensions: e.Dimensions(),
		Available:  e.Available(ctx),
	}
}
