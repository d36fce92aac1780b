// Package embed turns text into L2-normalized float32 vectors.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per backend request.
	DefaultBatchSize = 32

	// MaxBatchSize bounds a single backend request.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single backend request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retries for retryable backend errors.
	DefaultMaxRetries = 2

	// StaticDimensions is the default dimension of the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
//
// Implementations return one L2-normalized vector per input, in input order,
// all of Dimensions() length. The model is fixed for the lifetime of an
// Embedder, and Embed(ctx, t) is equivalent to EmbedBatch(ctx, []string{t})[0].
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts. An empty input yields an
	// empty result and no error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the backend can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// embedOne implements Embed on top of EmbedBatch.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// normalizeVector returns v scaled to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
