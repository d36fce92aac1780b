package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
)

// flatBackend keeps every vector in one contiguous slice and scans all of
// them per query. Scores are exact inner products.
type flatBackend struct {
	dim  int
	data []float32
}

func newFlatBackend(dim int) *flatBackend {
	return &flatBackend{dim: dim}
}

func (f *flatBackend) kind() Backend { return BackendFlat }

func (f *flatBackend) len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

func (f *flatBackend) add(vectors [][]float32) {
	f.data = slices.Grow(f.data, len(vectors)*f.dim)
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
}

func (f *flatBackend) vector(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

func (f *flatBackend) search(query []float32, k int) []hit {
	n := f.len()
	hits := make([]hit, n)
	for i := 0; i < n; i++ {
		hits[i] = hit{pos: i, score: dot(query, f.vector(i))}
	}
	// Stable so equal scores keep insertion order.
	slices.SortStableFunc(hits, byScoreDesc)
	return hits[:min(k, n)]
}

func (f *flatBackend) encode(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, f.data)
}

func (f *flatBackend) decode(r *bufio.Reader, count int) error {
	data := make([]float32, count*f.dim)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}
	f.data = data
	return nil
}
