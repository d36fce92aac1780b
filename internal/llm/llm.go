// Package llm provides chat-completion clients used to synthesize answers
// and meeting summaries.
package llm

import (
	"context"
	"time"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune a single generation. Nil Temperature and non-positive
// MaxTokens use the client's configured values.
type Options struct {
	Temperature *float32
	MaxTokens   int
}

// Client generates a completion for a conversation.
type Client interface {
	// Generate returns the assistant reply. Implementations bound each call
	// with their configured timeout.
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)

	// Model identifies the model, for cache keys and status output.
	Model() string
}

// Defaults shared by the clients.
const (
	DefaultMaxTokens = 1024
	DefaultTimeout   = 60 * time.Second
)

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

func resolve(opts Options, temperature float32, maxTokens int) (float32, int) {
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return temperature, maxTokens
}
