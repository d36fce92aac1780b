package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/onedesk/internal/config"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// New builds the configured client. A missing API key does not fail
// startup: the returned client reports the problem on every call.
func New(cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		if cfg.APIKey() == "" {
			slog.Warn("llm_unavailable",
				slog.String("provider", cfg.Provider),
				slog.String("missing_env", cfg.APIKeyEnv))
			return NewUnavailable(cfg.Model, fmt.Sprintf("LLM is not configured: %s is not set", cfg.APIKeyEnv)), nil
		}
		c, err := NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("llm_ready", slog.String("provider", ProviderOpenAI), slog.String("model", c.Model()))
		return c, nil
	case ProviderOllama:
		c := NewOllamaClient(OllamaConfig{
			Host:        cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
		})
		slog.Info("llm_ready", slog.String("provider", ProviderOllama), slog.String("model", c.Model()))
		return c, nil
	case ProviderNone:
		return NewUnavailable(ProviderNone, "no LLM provider configured"), nil
	default:
		return nil, oderrors.ConfigError(fmt.Sprintf("unknown llm provider %q", cfg.Provider), nil)
	}
}

// IsUnavailable reports whether c is the stand-in client.
func IsUnavailable(c Client) bool {
	_, ok := c.(*Unavailable)
	return ok
}
