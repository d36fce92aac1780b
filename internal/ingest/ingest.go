// Package ingest chunks, embeds and stores documents in a vector index.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/onedesk/internal/chunk"
	"github.com/Aman-CERP/onedesk/internal/config"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/extract"
	"github.com/Aman-CERP/onedesk/internal/ignore"
	"github.com/Aman-CERP/onedesk/internal/store"
)

// Embedder embeds document chunks.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the subset of *store.Index the ingester writes to.
type Index interface {
	Add(vectors [][]float32, texts []string, metas []store.Meta) (int, error)
	Replace(vectors [][]float32, texts []string, metas []store.Meta) (int, error)
	Save() error
	Clear()
	Count() int
}

// Config controls chunking and extraction parallelism.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MaxChunks    int // per document; 0 means no cap
	Workers      int // concurrent extractions; 0 means GOMAXPROCS
}

// ConfigFrom maps the chunking config section.
func ConfigFrom(c config.ChunkingConfig) Config {
	return Config{
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
		MaxChunks:    c.MaxChunksPerDocument,
	}
}

// SkippedFile is a document that could not be ingested.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report summarizes an IngestDir run.
type Report struct {
	Dir        string        `json:"dir"`
	Files      int           `json:"files"`
	Chunks     int           `json:"chunks"`
	Total      int           `json:"total"`
	Skipped    []SkippedFile `json:"skipped,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// Stage is a step of IngestDir.
type Stage int

const (
	StageExtract Stage = iota
	StageEmbed
	StageSave
)

func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageEmbed:
		return "embed"
	case StageSave:
		return "save"
	default:
		return "unknown"
	}
}

// Progress reports how far a stage has come. File is set during extraction.
type Progress struct {
	Stage Stage
	Done  int
	Total int
	File  string
}

// ProgressFunc receives progress reports. Extraction reports arrive from
// several goroutines.
type ProgressFunc func(Progress)

type progressKey struct{}

// WithProgress returns a context whose ingestion runs report to fn.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressFrom(ctx context.Context) ProgressFunc {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		return fn
	}
	return func(Progress) {}
}

// embedBatchSize bounds each EmbedBatch call so progress can be reported.
const embedBatchSize = 64

// Ingester writes documents into one index. Calls are serialized so that
// Add and Save of one run never interleave with another.
type Ingester struct {
	index     Index
	embedder  Embedder
	extractor *extract.Extractor
	cfg       Config

	mu sync.Mutex
}

// New creates an Ingester. extractor may be nil when only IngestText is used.
func New(index Index, embedder Embedder, extractor *extract.Extractor, cfg Config) *Ingester {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
		if cfg.ChunkOverlap == 0 {
			cfg.ChunkOverlap = chunk.DefaultOverlap
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Ingester{index: index, embedder: embedder, extractor: extractor, cfg: cfg}
}

// Count returns the number of chunks in the target index.
func (in *Ingester) Count() int {
	return in.index.Count()
}

// IngestText chunks one document, embeds and stores it, then saves the
// index. It returns the number of chunks stored.
func (in *Ingester) IngestText(ctx context.Context, source, text string, typ chunk.ContentType) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	chunks := in.chunks(source, text, typ)
	if len(chunks) == 0 {
		return 0, nil
	}
	n, err := in.store(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if err := in.index.Save(); err != nil {
		return 0, err
	}
	slog.Info("document_ingested",
		slog.String("source", source),
		slog.String("type", string(typ)),
		slog.Int("chunks", n),
		slog.Int("total", in.index.Count()))
	return n, nil
}

// IngestDir extracts every supported file under dir in parallel and adds
// all chunks to the index in one batch, followed by a single save. Files
// that fail extraction are reported and skipped; embedding or storage
// failures abort the run without touching the index.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (*Report, error) {
	return in.ingestDir(ctx, dir, false)
}

// Rebuild re-ingests dir and replaces the index contents with the result.
// The index is append-only, so this is how edited or removed documents are
// reflected. The old contents stay in place until every chunk is embedded.
func (in *Ingester) Rebuild(ctx context.Context, dir string) (*Report, error) {
	return in.ingestDir(ctx, dir, true)
}

func (in *Ingester) ingestDir(ctx context.Context, dir string, replace bool) (*Report, error) {
	if in.extractor == nil {
		return nil, oderrors.InternalError("ingester has no extractor", nil)
	}
	start := time.Now()

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, oderrors.New(oderrors.ErrCodeInvalidPath,
			fmt.Sprintf("%s is not a directory", dir), err).
			WithSuggestion("set storage.hr_policies_path to the HR policy folder")
	}

	files, err := in.collect(dir)
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	texts := make([]string, len(files))
	reasons := make([]string, len(files))
	report := progressFrom(ctx)
	var extracted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := in.extractor.ExtractFile(path)
			report(Progress{
				Stage: StageExtract,
				Done:  int(extracted.Add(1)),
				Total: len(files),
				File:  sourceName(dir, path),
			})
			if err != nil {
				reasons[i] = err.Error()
				slog.Warn("ingest_file_skipped",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Report{Dir: dir}
	var chunks []chunk.Chunk
	for i, path := range files {
		rel := sourceName(dir, path)
		if reasons[i] != "" {
			result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: reasons[i]})
			continue
		}
		docChunks := in.chunks(rel, texts[i], chunk.ContentTypePolicy)
		if len(docChunks) == 0 {
			result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: "no text content"})
			continue
		}
		result.Files++
		chunks = append(chunks, docChunks...)
	}

	b, err := in.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	switch {
	case replace && len(chunks) == 0:
		in.index.Clear()
	case replace || len(chunks) > 0:
		add := in.index.Add
		if replace {
			add = in.index.Replace
		}
		if result.Chunks, err = add(b.vectors, b.texts, b.metas); err != nil {
			return nil, err
		}
		report(Progress{Stage: StageSave, Done: 0, Total: 1})
		if err := in.index.Save(); err != nil {
			return nil, err
		}
		report(Progress{Stage: StageSave, Done: 1, Total: 1})
	}

	result.Total = in.index.Count()
	result.DurationMS = time.Since(start).Milliseconds()
	slog.Info("directory_ingested",
		slog.String("dir", dir),
		slog.Bool("rebuild", replace),
		slog.Int("files", result.Files),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("chunks", result.Chunks),
		slog.Int("total", result.Total),
		slog.Int64("duration_ms", result.DurationMS))
	return result, nil
}

func (in *Ingester) chunks(source, text string, typ chunk.ContentType) []chunk.Chunk {
	return chunk.Build(source, text, in.cfg.ChunkSize, in.cfg.ChunkOverlap, in.cfg.MaxChunks, typ)
}

// batch holds embedded chunks ready for the index.
type batch struct {
	vectors [][]float32
	texts   []string
	metas   []store.Meta
}

// store embeds chunks and appends them to the index. It must be called with
// mu held.
func (in *Ingester) store(ctx context.Context, chunks []chunk.Chunk) (int, error) {
	b, err := in.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}
	return in.index.Add(b.vectors, b.texts, b.metas)
}

// embed embeds every chunk, in batches of embedBatchSize, without touching
// the index.
func (in *Ingester) embed(ctx context.Context, chunks []chunk.Chunk) (batch, error) {
	report := progressFrom(ctx)
	texts := chunk.Texts(chunks)
	vectors := make([][]float32, 0, len(chunks))

	for from := 0; from < len(texts); from += embedBatchSize {
		end := min(from+embedBatchSize, len(texts))
		out, err := in.embedder.EmbedBatch(ctx, texts[from:end])
		if err != nil {
			return batch{}, err
		}
		if len(out) != end-from {
			return batch{}, oderrors.ModelError(fmt.Sprintf(
				"embedder returned %d vectors for %d chunks", len(out), end-from), nil)
		}
		vectors = append(vectors, out...)
		report(Progress{Stage: StageEmbed, Done: end, Total: len(texts)})
	}

	metas := make([]store.Meta, len(chunks))
	for i, c := range chunks {
		metas[i] = store.Meta{Source: c.Source, Chunk: c.Index, Type: string(c.Type)}
	}
	return batch{vectors: vectors, texts: texts, metas: metas}, nil
}

// collect lists supported files under dir in lexical order, skipping
// hidden entries and paths matched by dir/.onedeskignore.
func (in *Ingester) collect(dir string) ([]string, error) {
	ignored, err := ignore.Load(dir)
	if err != nil {
		return nil, oderrors.IOError(fmt.Sprintf("cannot read %s", ignore.FileName), err).
			WithDetail("dir", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || ignored.Match(sourceName(dir, path), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && in.extractor.Supported(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, oderrors.IOError(fmt.Sprintf("cannot scan %s", dir), err)
	}
	return files, nil
}

func sourceName(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
