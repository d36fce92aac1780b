// Package store provides the vector index used for retrieval: an in-memory
// collection of (vector, text, metadata) triples kept in lockstep, with exact
// or approximate nearest-neighbor search and on-disk persistence.
package store

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// Meta describes where a stored chunk came from.
type Meta struct {
	Source string `json:"source"`
	Chunk  int    `json:"chunk"`
	Type   string `json:"type,omitempty"`
}

// Result is a single search hit.
type Result struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
	Meta  Meta    `json:"metadata"`
}

// Backend names the vector search implementation behind an Index.
type Backend string

const (
	// BackendFlat is an exact brute-force inner-product scan.
	BackendFlat Backend = "flat"

	// BackendHNSW is an approximate HNSW graph (coder/hnsw).
	BackendHNSW Backend = "hnsw"
)

// ParseBackend converts a config string to a Backend. Empty means flat.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendFlat:
		return BackendFlat, nil
	case BackendHNSW:
		return BackendHNSW, nil
	default:
		return "", oderrors.ConfigError(fmt.Sprintf("unknown index backend %q", s), nil)
	}
}

// Info summarizes an index for status output.
type Info struct {
	Name       string  `json:"name"`
	Backend    Backend `json:"backend"`
	Count      int     `json:"count"`
	Dimensions int     `json:"dimensions"`
	IndexPath  string  `json:"index_path"`
	Persisted  bool    `json:"persisted"`
}

// hit is a backend search result: a position into the parallel arrays.
type hit struct {
	pos   int
	score float32
}

// vectorBackend stores vectors by insertion position.
type vectorBackend interface {
	kind() Backend
	add(vectors [][]float32)
	search(query []float32, k int) []hit
	len() int
	encode(w io.Writer) error
	decode(r *bufio.Reader, count int) error
}

// byScoreDesc orders hits by descending score.
func byScoreDesc(a, b hit) int {
	switch {
	case a.score > b.score:
		return -1
	case a.score < b.score:
		return 1
	default:
		return 0
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func newBackend(kind Backend, dim int) vectorBackend {
	if kind == BackendHNSW {
		return newHNSWBackend(dim)
	}
	return newFlatBackend(dim)
}
