package store

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"github.com/coder/hnsw"
)

// hnswBackend wraps a coder/hnsw graph keyed by insertion position.
// The graph only selects candidates; scores are recomputed as exact inner
// products so both backends report the same similarity scale.
type hnswBackend struct {
	dim   int
	graph *hnsw.Graph[uint64]
}

func newHNSWBackend(dim int) *hnswBackend {
	return &hnswBackend{dim: dim, graph: newGraph()}
}

func newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25
	return graph
}

func (h *hnswBackend) kind() Backend { return BackendHNSW }

func (h *hnswBackend) len() int {
	return h.graph.Len()
}

func (h *hnswBackend) add(vectors [][]float32) {
	next := uint64(h.graph.Len())
	nodes := make([]hnsw.Node[uint64], len(vectors))
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		nodes[i] = hnsw.MakeNode(next+uint64(i), vec)
	}
	h.graph.Add(nodes...)
}

func (h *hnswBackend) search(query []float32, k int) []hit {
	if h.graph.Len() == 0 {
		return nil
	}
	nodes := h.graph.Search(query, min(k, h.graph.Len()))

	hits := make([]hit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, hit{pos: int(node.Key), score: dot(query, node.Value)})
	}
	slices.SortStableFunc(hits, byScoreDesc)
	return hits
}

func (h *hnswBackend) encode(w io.Writer) error {
	return h.graph.Export(w)
}

// decode imports a graph. coder/hnsw Import needs an io.ByteReader, hence
// the bufio.Reader.
func (h *hnswBackend) decode(r *bufio.Reader, count int) error {
	graph := newGraph()
	if err := graph.Import(r); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	if graph.Len() != count {
		return fmt.Errorf("graph holds %d vectors, header says %d", graph.Len(), count)
	}
	h.graph = graph
	return nil
}
