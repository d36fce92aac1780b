package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// DefaultDeepSeekURL is the default OpenAI-compatible endpoint.
const DefaultDeepSeekURL = "https://api.deepseek.com"

// OpenAIConfig configures an OpenAI-compatible chat client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// OpenAIClient calls /chat/completions through go-openai. Calls are retried
// with backoff on transient failures and guarded by a circuit breaker so a
// dead backend fails fast.
type OpenAIClient struct {
	client  *openai.Client
	config  OpenAIConfig
	retry   oderrors.RetryConfig
	breaker *oderrors.CircuitBreaker
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client. An empty API key is rejected.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, oderrors.ConfigError("LLM API key is not set", nil).
			WithSuggestion("export the variable named by llm.api_key_env, or set llm.provider to none")
	}
	if cfg.Model == "" {
		return nil, oderrors.ConfigError("llm.model is required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDeepSeekURL
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

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	retry := oderrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.Jitter = true

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		retry:   retry,
		breaker: oderrors.NewCircuitBreaker("llm", oderrors.WithMaxFailures(5), oderrors.WithResetTimeout(30*time.Second)),
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.config.Model
}

// Generate sends a non-streaming chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	temperature, maxTokens := resolve(opts, c.config.Temperature, c.config.MaxTokens)
	// go-openai drops a zero temperature from the request body.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	start := time.Now()
	text, err := oderrors.CircuitExecute(c.breaker, func() (string, error) {
		return oderrors.RetryWithResult(ctx, c.retry, func() (string, error) {
			return c.complete(ctx, req)
		})
	})
	if err != nil {
		slog.Warn("llm_generate_failed",
			slog.String("model", c.config.Model),
			slog.String("error", err.Error()),
			slog.String("circuit", c.breaker.State().String()))
		return "", err
	}

	slog.Debug("llm_generate_complete",
		slog.String("model", c.config.Model),
		slog.Int("messages", len(messages)),
		slog.Duration("duration", time.Since(start)))
	return text, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", nonRetryable(oderrors.BackendError("LLM returned no choices", nil))
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps go-openai errors onto the error taxonomy. Rate limits,
// server errors and transport failures are retryable; other HTTP errors
// (bad key, bad request) are not.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	msg := "LLM request failed"
	if status != 0 {
		msg = fmt.Sprintf("LLM request failed with status %d", status)
	}
	be := oderrors.BackendError(msg, err)
	if status != 0 {
		be.WithDetail("status", fmt.Sprint(status))
	}
	if status != 0 && status != http.StatusTooManyRequests && status < 500 {
		return nonRetryable(be)
	}
	return be
}

func nonRetryable(e *oderrors.OneDeskError) *oderrors.OneDeskError {
	e.Retryable = false
	e.Severity = oderrors.SeverityError
	return e
}
