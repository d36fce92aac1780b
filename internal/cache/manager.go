package cache

import (
	"log/slog"
	"time"

	"github.com/Aman-CERP/onedesk/internal/config"
)

// Default capacities of the two caches.
const (
	DefaultResponseCapacity  = 500
	DefaultEmbeddingCapacity = 10000
)

// ManagerConfig sizes the response and embedding caches.
type ManagerConfig struct {
	ResponseEnabled  bool
	ResponseCapacity int
	ResponseTTL      time.Duration

	EmbeddingEnabled  bool
	EmbeddingCapacity int
	EmbeddingTTL      time.Duration
}

// ManagerConfigFrom maps the cache section of the app config.
func ManagerConfigFrom(c config.CacheConfig) ManagerConfig {
	return ManagerConfig{
		ResponseEnabled:   c.ResponseCacheEnabled(),
		ResponseCapacity:  c.ResponseCapacity,
		ResponseTTL:       c.ResponseCacheTTL(),
		EmbeddingEnabled:  c.EmbeddingCacheEnabled(),
		EmbeddingCapacity: c.EmbeddingCapacity,
		EmbeddingTTL:      c.EmbeddingCacheTTL(),
	}
}

// Manager holds a response cache of R and an embedding cache of vectors.
// A disabled cache always misses and drops writes.
type Manager[R any] struct {
	cfg        ManagerConfig
	responses  *Cache[R]
	embeddings *Cache[[]float32]
}

// Stats reports cache occupancy.
type Stats struct {
	ResponseEnabled   bool `json:"response_enabled"`
	ResponseEntries   int  `json:"response_entries"`
	ResponseCapacity  int  `json:"response_capacity"`
	EmbeddingEnabled  bool `json:"embedding_enabled"`
	EmbeddingEntries  int  `json:"embedding_entries"`
	EmbeddingCapacity int  `json:"embedding_capacity"`
}

// NewManager creates both caches. Options apply to both.
func NewManager[R any](cfg ManagerConfig, opts ...Option) *Manager[R] {
	if cfg.ResponseCapacity <= 0 {
		cfg.ResponseCapacity = DefaultResponseCapacity
	}
	if cfg.EmbeddingCapacity <= 0 {
		cfg.EmbeddingCapacity = DefaultEmbeddingCapacity
	}
	return &Manager[R]{
		cfg:        cfg,
		responses:  New[R](cfg.ResponseCapacity, cfg.ResponseTTL, opts...),
		embeddings: New[[]float32](cfg.EmbeddingCapacity, cfg.EmbeddingTTL, opts...),
	}
}

// ResponseEnabled reports whether responses are cached.
func (m *Manager[R]) ResponseEnabled() bool { return m.cfg.ResponseEnabled }

// EmbeddingEnabled reports whether embeddings are cached.
func (m *Manager[R]) EmbeddingEnabled() bool { return m.cfg.EmbeddingEnabled }

// GetResponse looks up a cached response.
func (m *Manager[R]) GetResponse(key string) (R, bool) {
	if !m.cfg.ResponseEnabled {
		var zero R
		return zero, false
	}
	return m.responses.Get(key)
}

// SetResponse caches a response.
func (m *Manager[R]) SetResponse(key string, value R) {
	if m.cfg.ResponseEnabled {
		m.responses.Set(key, value)
	}
}

// GetEmbedding looks up a cached embedding.
func (m *Manager[R]) GetEmbedding(key string) ([]float32, bool) {
	if !m.cfg.EmbeddingEnabled {
		return nil, false
	}
	return m.embeddings.Get(key)
}

// SetEmbedding caches an embedding.
func (m *Manager[R]) SetEmbedding(key string, vec []float32) {
	if m.cfg.EmbeddingEnabled {
		m.embeddings.Set(key, vec)
	}
}

// Clear empties both caches.
func (m *Manager[R]) Clear() {
	responses, embeddings := m.responses.Len(), m.embeddings.Len()
	m.responses.Clear()
	m.embeddings.Clear()
	slog.Info("cache_cleared",
		slog.Int("responses", responses),
		slog.Int("embeddings", embeddings))
}

// Stats returns occupancy of both caches.
func (m *Manager[R]) Stats() Stats {
	return Stats{
		ResponseEnabled:   m.cfg.ResponseEnabled,
		ResponseEntries:   m.responses.Len(),
		ResponseCapacity:  m.responses.Capacity(),
		EmbeddingEnabled:  m.cfg.EmbeddingEnabled,
		EmbeddingEntries:  m.embeddings.Len(),
		EmbeddingCapacity: m.embeddings.Capacity(),
	}
}
