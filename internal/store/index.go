package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// Config configures an Index.
type Config struct {
	// Name identifies the index in logs ("hr", "meet").
	Name string

	// Stem is the path prefix shared by <stem>.index, <stem>.meta.json
	// and <stem>.lock.
	Stem string

	// Backend selects the search implementation for a fresh index. A loaded
	// artifact keeps the backend it was written with.
	Backend Backend
}

// Index is a named vector collection with parallel text and metadata
// arrays. Position i in the vector backend corresponds to texts[i] and
// metas[i]. Safe for concurrent use.
type Index struct {
	name string
	stem string
	kind Backend

	// persistMu serializes Save/Load/Clear within the process; the file
	// lock covers other processes.
	persistMu sync.Mutex

	mu      sync.RWMutex
	dim     int
	vectors vectorBackend
	texts   []string
	metas   []Meta
}

// New creates an empty index. Call Load to restore persisted state.
func New(cfg Config) (*Index, error) {
	if cfg.Stem == "" {
		return nil, oderrors.ConfigError("index path stem is required", nil)
	}
	kind, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "index"
	}
	return &Index{name: name, stem: cfg.Stem, kind: kind}, nil
}

// Name returns the index name.
func (ix *Index) Name() string { return ix.name }

// IndexPath returns the binary artifact path.
func (ix *Index) IndexPath() string { return ix.stem + indexSuffix }

// SidecarPath returns the JSON sidecar path.
func (ix *Index) SidecarPath() string { return ix.stem + sidecarSuffix }

// Count returns the number of stored chunks.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.texts)
}

// Dimensions returns the fixed vector dimension, or 0 before the first Add.
func (ix *Index) Dimensions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Backend returns the active backend.
func (ix *Index) Backend() Backend {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.vectors != nil {
		return ix.vectors.kind()
	}
	return ix.kind
}

// Info reports the index's size, shape and whether artifacts exist on disk.
func (ix *Index) Info() Info {
	_, err := os.Stat(ix.IndexPath())
	return Info{
		Name:       ix.name,
		Backend:    ix.Backend(),
		Count:      ix.Count(),
		Dimensions: ix.Dimensions(),
		IndexPath:  ix.IndexPath(),
		Persisted:  err == nil,
	}
}

// Add appends vectors with their texts and metadata and returns how many
// were inserted. The first call fixes the dimension. Input is fully
// validated before anything is stored.
func (ix *Index) Add(vectors [][]float32, texts []string, metas []Meta) (int, error) {
	if err := checkLengths(vectors, texts, metas); err != nil {
		return 0, err
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dim, err := ix.checkDims(ix.dim, vectors)
	if err != nil {
		return 0, err
	}

	if ix.vectors == nil {
		ix.dim = dim
		ix.vectors = newBackend(ix.kind, dim)
	}
	ix.vectors.add(vectors)
	ix.texts = append(ix.texts, texts...)
	ix.metas = append(ix.metas, metas...)

	slog.Debug("index_add",
		slog.String("index", ix.name),
		slog.Int("added", len(vectors)),
		slog.Int("total", len(ix.texts)))
	return len(vectors), nil
}

// Replace swaps the whole in-memory contents for the given entries in one
// step; readers see either the old or the new contents. The dimension is
// taken from the new vectors. Empty input empties the index but leaves
// artifacts on disk; use Clear to delete them. Nothing changes on error.
func (ix *Index) Replace(vectors [][]float32, texts []string, metas []Meta) (int, error) {
	if err := checkLengths(vectors, texts, metas); err != nil {
		return 0, err
	}

	var (
		dim     int
		backend vectorBackend
	)
	if len(vectors) > 0 {
		var err error
		if dim, err = ix.checkDims(0, vectors); err != nil {
			return 0, err
		}
		backend = newBackend(ix.kind, dim)
		backend.add(vectors)
	}

	ix.mu.Lock()
	ix.dim = dim
	ix.vectors = backend
	ix.texts = append([]string(nil), texts...)
	ix.metas = append([]Meta(nil), metas...)
	ix.mu.Unlock()

	slog.Info("index_replaced",
		slog.String("index", ix.name),
		slog.Int("count", len(texts)),
		slog.Int("dimensions", dim))
	return len(vectors), nil
}

func checkLengths(vectors [][]float32, texts []string, metas []Meta) error {
	if len(vectors) != len(texts) || len(texts) != len(metas) {
		return oderrors.ValidationError(fmt.Sprintf(
			"vectors, texts and metas must have equal length (got %d, %d, %d)",
			len(vectors), len(texts), len(metas)), nil)
	}
	return nil
}

// checkDims returns the dimension every vector must have: dim when the
// index already has one, else the first vector's length.
func (ix *Index) checkDims(dim int, vectors [][]float32) (int, error) {
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return 0, oderrors.ValidationError("vectors must not be empty", nil)
		}
	}
	for _, v := range vectors {
		if len(v) != dim {
			return 0, oderrors.DimensionError(dim, len(v)).WithDetail("index", ix.name)
		}
	}
	return dim, nil
}

// Search returns up to k results ordered by descending inner-product score.
// An empty index yields an empty slice.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, oderrors.ValidationError(fmt.Sprintf("k must be positive, got %d", k), nil)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.vectors == nil || len(ix.texts) == 0 {
		return []Result{}, nil
	}
	if len(query) != ix.dim {
		return nil, oderrors.DimensionError(ix.dim, len(query)).WithDetail("index", ix.name)
	}

	hits := ix.vectors.search(query, k)
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.pos < 0 || h.pos >= len(ix.texts) {
			continue
		}
		results = append(results, Result{
			Text:  ix.texts[h.pos],
			Score: h.score,
			Meta:  ix.metas[h.pos],
		})
	}
	return results, nil
}

// Save writes the binary artifact and the sidecar. It is a no-op for an
// index that has never been written to.
func (ix *Index) Save() error {
	ix.persistMu.Lock()
	defer ix.persistMu.Unlock()

	lock := NewFileLock(ix.stem)
	if err := lock.Lock(); err != nil {
		return oderrors.PersistenceError("failed to lock index for save", err).WithDetail("index", ix.name)
	}
	defer func() { _ = lock.Unlock() }()

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.vectors == nil {
		return nil
	}

	if err := writeIndexArtifact(ix.IndexPath(), ix.vectors, ix.dim); err != nil {
		return oderrors.PersistenceError("failed to write index artifact", err).
			WithDetail("path", ix.IndexPath())
	}
	sc := sidecar{Texts: ix.texts, Metas: ix.metas, Dim: ix.dim}
	if err := writeSidecar(ix.SidecarPath(), sc); err != nil {
		return oderrors.PersistenceError("failed to write index sidecar", err).
			WithDetail("path", ix.SidecarPath())
	}

	slog.Info("index_saved",
		slog.String("index", ix.name),
		slog.Int("count", len(ix.texts)),
		slog.Int("dimensions", ix.dim))
	return nil
}

// Load replaces in-memory state with the persisted artifacts. It returns
// false with no error when either artifact is missing. Artifacts that exist
// but cannot be read or disagree with each other yield ERR_205_CORRUPT_INDEX.
func (ix *Index) Load() (bool, error) {
	ix.persistMu.Lock()
	defer ix.persistMu.Unlock()

	for _, p := range []string{ix.IndexPath(), ix.SidecarPath()} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, oderrors.PersistenceError("failed to stat index artifact", err).WithDetail("path", p)
		}
	}

	lock := NewFileLock(ix.stem)
	if err := lock.Lock(); err != nil {
		return false, oderrors.PersistenceError("failed to lock index for load", err).WithDetail("index", ix.name)
	}
	defer func() { _ = lock.Unlock() }()

	sc, err := readSidecar(ix.SidecarPath())
	if err != nil {
		return false, ix.corrupt("unreadable sidecar", err)
	}
	vectors, hdr, err := readIndexArtifact(ix.IndexPath())
	if err != nil {
		return false, ix.corrupt("unreadable index artifact", err)
	}

	if len(sc.Texts) != len(sc.Metas) {
		return false, ix.corrupt(fmt.Sprintf("sidecar has %d texts but %d metas", len(sc.Texts), len(sc.Metas)), nil)
	}
	if vectors.len() != len(sc.Texts) {
		return false, ix.corrupt(fmt.Sprintf("artifact has %d vectors but sidecar has %d texts", vectors.len(), len(sc.Texts)), nil)
	}
	if int(hdr.Dim) != sc.Dim {
		return false, ix.corrupt(fmt.Sprintf("artifact dimension %d does not match sidecar dimension %d", hdr.Dim, sc.Dim), nil)
	}

	if vectors.kind() != ix.kind {
		slog.Warn("index_backend_differs",
			slog.String("index", ix.name),
			slog.String("configured", string(ix.kind)),
			slog.String("persisted", string(vectors.kind())))
	}

	ix.mu.Lock()
	ix.dim = sc.Dim
	ix.vectors = vectors
	ix.texts = sc.Texts
	ix.metas = sc.Metas
	ix.mu.Unlock()

	slog.Info("index_loaded",
		slog.String("index", ix.name),
		slog.Int("count", len(sc.Texts)),
		slog.Int("dimensions", sc.Dim),
		slog.String("backend", string(vectors.kind())))
	return true, nil
}

func (ix *Index) corrupt(msg string, cause error) error {
	return oderrors.CorruptIndexError(msg, cause).
		WithDetail("index", ix.name).
		WithDetail("path", ix.stem)
}

// Clear empties the index and deletes its artifacts. Deletion failures are
// logged and ignored.
func (ix *Index) Clear() {
	ix.persistMu.Lock()
	defer ix.persistMu.Unlock()

	ix.mu.Lock()
	ix.dim = 0
	ix.vectors = nil
	ix.texts = nil
	ix.metas = nil
	ix.mu.Unlock()

	for _, p := range []string{ix.IndexPath(), ix.SidecarPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("index_artifact_remove_failed",
				slog.String("index", ix.name),
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
	}

	slog.Info("index_cleared", slog.String("index", ix.name))
}
