// Package rag answers questions over the HR policy index: it embeds the
// query, retrieves the closest chunks, trims them to a context budget and
// asks the LLM to answer from them.
package rag

import (
	"context"

	"github.com/Aman-CERP/onedesk/internal/config"
	"github.com/Aman-CERP/onedesk/internal/store"
)

// NotFoundAnswer is returned when no context survives retrieval.
const NotFoundAnswer = "I couldn't find any relevant information in the HR policies to answer your question."

// degradedPrefix starts the answer returned when the LLM call fails.
const degradedPrefix = "I encountered an error while processing your question: "

// Answer is the result of Ask.
type Answer struct {
	Answer    string   `json:"answer"`
	Contexts  []string `json:"contexts"`
	Sources   []Source `json:"sources"`
	Cached    bool     `json:"cached"`
	LatencyMS int64    `json:"latency_ms"`

	// Degraded is set when the LLM failed and Answer describes the failure.
	Degraded bool `json:"-"`
}

// Source attributes one context to its document.
type Source struct {
	Source string  `json:"source"`
	Chunk  int     `json:"chunk"`
	Score  float64 `json:"score"`
}

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the vector search the pipeline reads from.
type Index interface {
	Search(query []float32, k int) ([]store.Result, error)
}

// Config tunes retrieval.
type Config struct {
	DefaultTopK      int
	MaxTopK          int
	MaxContextLength int
	IncludeSources   bool
}

// ConfigFrom maps the retrieval section of the app config.
func ConfigFrom(c config.RetrievalConfig) Config {
	return Config{
		DefaultTopK:      c.TopK,
		MaxTopK:          c.MaxTopK,
		MaxContextLength: c.MaxContextLength,
		IncludeSources:   c.IncludeSources,
	}
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.NewConfig().Retrieval)
}
