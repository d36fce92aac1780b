package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// Default Ollama chat configuration.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaConfig configures an Ollama chat client.
type OllamaConfig struct {
	Host        string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// OllamaClient generates completions with Ollama's /api/chat.
type OllamaClient struct {
	client *http.Client
	config OllamaConfig
	retry  oderrors.RetryConfig
}

var _ Client = (*OllamaClient)(nil)

// ollamaChatRequest is the /api/chat request body.
type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatResponse is the /api/chat response body.
type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// NewOllamaClient creates an Ollama chat client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retry := oderrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	return &OllamaClient{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		retry:  retry,
	}
}

// Model returns the model being used.
func (o *OllamaClient) Model() string {
	return o.config.Model
}

// Generate sends a non-streaming chat request.
func (o *OllamaClient) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	temperature, maxTokens := resolve(opts, o.config.Temperature, o.config.MaxTokens)

	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.config.Model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: temperature, NumPredict: maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	text, err := oderrors.RetryWithResult(ctx, o.retry, func() (string, error) {
		return o.chat(ctx, body)
	})
	if err != nil {
		slog.Warn("llm_generate_failed",
			slog.String("model", o.config.Model),
			slog.String("error", err.Error()))
		return "", err
	}
	return text, nil
}

func (o *OllamaClient) chat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", oderrors.BackendError("ollama chat request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		be := oderrors.BackendError(
			fmt.Sprintf("ollama chat failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
		if resp.StatusCode < 500 {
			return "", nonRetryable(be)
		}
		return "", be
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", nonRetryable(oderrors.BackendError("decode ollama chat response", err))
	}
	if chatResp.Error != "" {
		return "", nonRetryable(oderrors.BackendError(chatResp.Error, nil))
	}
	return chatResp.Message.Content, nil
}
