package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/onedesk/internal/chunk"
	"github.com/Aman-CERP/onedesk/internal/config"
	"github.com/Aman-CERP/onedesk/internal/embed"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/extract"
	"github.com/Aman-CERP/onedesk/internal/store"
)

type failingEmbedder struct{}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder offline")
}

type shortEmbedder struct{}

func (shortEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1, 0}}, nil
}

func newIndex(t *testing.T) *store.Index {
	t.Helper()
	ix, err := store.New(store.Config{Name: "hr", Stem: filepath.Join(t.TempDir(), "hr")})
	require.NoError(t, err)
	return ix
}

func newExtractor() *extract.Extractor {
	return extract.New(config.UploadsConfig{AllowedFileTypes: []string{".pdf", ".txt"}, MaxFileSizeMB: 1})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestIngestText_StoresChunksAndSaves(t *testing.T) {
	// Given: an empty meeting index
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(64), nil, Config{ChunkSize: 100, ChunkOverlap: 20})
	text := strings.Repeat("Quarterly planning covered hiring and budget. ", 10)

	// When: ingesting a transcript
	n, err := in.IngestText(context.Background(), "Q3 Planning", text, chunk.ContentTypeMeeting)

	// Then: every chunk is stored with meeting metadata and persisted
	require.NoError(t, err)
	assert.Equal(t, len(chunk.Build("Q3 Planning", text, 100, 20, 0, chunk.ContentTypeMeeting)), n)
	assert.Equal(t, n, ix.Count())
	assert.FileExists(t, ix.IndexPath())
	assert.FileExists(t, ix.SidecarPath())

	q, err := embed.NewStaticEmbedder(64).Embed(context.Background(), "hiring budget")
	require.NoError(t, err)
	results, err := ix.Search(q, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, store.Meta{Source: "Q3 Planning", Chunk: results[0].Meta.Chunk, Type: "meeting"}, results[0].Meta)
}

func TestIngestText_BlankTextStoresNothing(t *testing.T) {
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(64), nil, Config{})

	n, err := in.IngestText(context.Background(), "empty", "   \n\t ", chunk.ContentTypeMeeting)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, ix.Count())
	assert.NoFileExists(t, ix.IndexPath())
}

func TestIngestText_EmbedderFailureLeavesIndexUntouched(t *testing.T) {
	ix := newIndex(t)
	in := New(ix, failingEmbedder{}, nil, Config{})

	_, err := in.IngestText(context.Background(), "doc", "some text", chunk.ContentTypePolicy)

	require.Error(t, err)
	assert.Zero(t, ix.Count())
}

func TestIngestText_VectorCountMismatch(t *testing.T) {
	ix := newIndex(t)
	in := New(ix, shortEmbedder{}, nil, Config{ChunkSize: 5, ChunkOverlap: 0})

	_, err := in.IngestText(context.Background(), "doc", "abcdefghijklmnop", chunk.ContentTypePolicy)

	require.Error(t, err)
	assert.True(t, oderrors.HasCode(err, oderrors.ErrCodeEmbeddingFailed))
	assert.Zero(t, ix.Count())
}

func TestIngestDir(t *testing.T) {
	// Given: an HR folder with two policies, a nested one, an unsupported
	// file, a hidden file and an empty text file
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "leave.txt"), "Employees get 20 days of annual leave.")
	writeFile(t, filepath.Join(dir, "remote.txt"), "Remote work is allowed two days a week.")
	writeFile(t, filepath.Join(dir, "benefits", "health.txt"), "Health insurance covers dependents.")
	writeFile(t, filepath.Join(dir, "slides.pptx"), "binary")
	writeFile(t, filepath.Join(dir, ".draft.txt"), "not ready")
	writeFile(t, filepath.Join(dir, "blank.txt"), "   ")

	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(64), newExtractor(), Config{ChunkSize: 1000, ChunkOverlap: 200, Workers: 2})

	// When: ingesting the folder
	report, err := in.IngestDir(context.Background(), dir)

	// Then: the three policies are stored, the blank one is reported
	require.NoError(t, err)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 3, report.Total)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "blank.txt", report.Skipped[0].Path)

	sources := map[string]bool{}
	q, _ := embed.NewStaticEmbedder(64).Embed(context.Background(), "policy")
	results, err := ix.Search(q, 10)
	require.NoError(t, err)
	for _, r := range results {
		sources[r.Meta.Source] = true
		assert.Empty(t, r.Meta.Type)
	}
	assert.Equal(t, map[string]bool{"leave.txt": true, "remote.txt": true, "benefits/health.txt": true}, sources)
	assert.FileExists(t, ix.IndexPath())
}

func TestIngestDir_HonorsIgnoreFile(t *testing.T) {
	// Given: an ignore file excluding a drafts folder and backups
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".onedeskignore"), "drafts/\n*.bak.txt\n")
	writeFile(t, filepath.Join(dir, "leave.txt"), "Employees get 20 days of annual leave.")
	writeFile(t, filepath.Join(dir, "leave.bak.txt"), "Employees get 15 days of annual leave.")
	writeFile(t, filepath.Join(dir, "drafts", "sabbatical.txt"), "Sabbaticals are under review.")

	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(64), newExtractor(), Config{ChunkSize: 1000, ChunkOverlap: 200})

	// When: ingesting the folder
	report, err := in.IngestDir(context.Background(), dir)

	// Then: only the live policy is stored and nothing is reported skipped
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 1, ix.Count())
}

func TestIngestDir_SkipsUnreadablePDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.pdf"), "not a pdf")
	writeFile(t, filepath.Join(dir, "ok.txt"), "Overtime is paid at 1.5x.")
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(32), newExtractor(), Config{})

	report, err := in.IngestDir(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "broken.pdf", report.Skipped[0].Path)
	assert.NotEmpty(t, report.Skipped[0].Reason)
}

func TestIngestDir_MissingDirectory(t *testing.T) {
	in := New(newIndex(t), embed.NewStaticEmbedder(32), newExtractor(), Config{})

	_, err := in.IngestDir(context.Background(), filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
	assert.True(t, oderrors.HasCode(err, oderrors.ErrCodeInvalidPath))
}

func TestIngestDir_EmptyDirectory(t *testing.T) {
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(32), newExtractor(), Config{})

	report, err := in.IngestDir(context.Background(), t.TempDir())

	require.NoError(t, err)
	assert.Zero(t, report.Files)
	assert.Zero(t, report.Total)
	assert.NoFileExists(t, ix.IndexPath())
}

func TestIngestDir_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "text")
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(32), newExtractor(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.IngestDir(ctx, dir)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ix.Count())
}

func TestIngestDir_AppendsOnRepeat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "Code of conduct applies to everyone.")
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(32), newExtractor(), Config{})

	_, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	report, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
}

func TestRebuild_ReplacesContents(t *testing.T) {
	// Given: an index built from one version of a policy
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "Old travel policy.")
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(32), newExtractor(), Config{})
	_, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)

	// When: the file changes and the index is rebuilt
	writeFile(t, path, "New travel policy.")
	report, err := in.Rebuild(context.Background(), dir)

	// Then: only the new content remains
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	q, _ := embed.NewStaticEmbedder(32).Embed(context.Background(), "travel")
	results, err := ix.Search(q, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "New travel policy.", results[0].Text)
}

func TestRebuild_EmbedderFailureKeepsIndex(t *testing.T) {
	// Given: a persisted index holding one policy
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "Travel must be booked through the portal.")
	stem := filepath.Join(t.TempDir(), "hr")
	ix, err := store.New(store.Config{Name: "hr", Stem: stem})
	require.NoError(t, err)
	_, err = New(ix, embed.NewStaticEmbedder(32), newExtractor(), Config{}).IngestDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, ix.Count())

	// When: a rebuild runs while the embedder is down
	_, err = New(ix, failingEmbedder{}, newExtractor(), Config{}).Rebuild(context.Background(), dir)

	// Then: it fails and the old contents survive in memory and on disk
	require.Error(t, err)
	assert.Equal(t, 1, ix.Count())
	reloaded, err := store.New(store.Config{Name: "hr", Stem: stem})
	require.NoError(t, err)
	ok, err := reloaded.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, reloaded.Count())
}

func TestRebuild_EmptyFolderClearsIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "Old travel policy.")
	ix := newIndex(t)
	in := New(ix, embed.NewStaticEmbedder(32), newExtractor(), Config{})
	_, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	report, err := in.Rebuild(context.Background(), dir)

	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.NoFileExists(t, ix.IndexPath())
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ChunkingConfig{ChunkSize: 500, ChunkOverlap: 50, MaxChunksPerDocument: 10})

	assert.Equal(t, Config{ChunkSize: 500, ChunkOverlap: 50, MaxChunks: 10}, cfg)
}

func TestIngestDir_ReportsProgress(t *testing.T) {
	// Given: two policies and a progress recorder
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "leave.txt"), "Employees get 20 days of annual leave.")
	writeFile(t, filepath.Join(dir, "remote.txt"), "Remote work is allowed two days a week.")
	in := New(newIndex(t), embed.NewStaticEmbedder(16), newExtractor(), Config{Workers: 2})

	var (
		mu     sync.Mutex
		events []Progress
	)
	ctx := WithProgress(context.Background(), func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	})

	// When: ingesting
	_, err := in.IngestDir(ctx, dir)
	require.NoError(t, err)

	// Then: every stage reports and ends complete
	last := map[Stage]Progress{}
	files := map[string]bool{}
	for _, e := range events {
		if e.Done >= last[e.Stage].Done {
			last[e.Stage] = e
		}
		if e.Stage == StageExtract {
			files[e.File] = true
		}
	}
	assert.Equal(t, Progress{Stage: StageExtract, Done: 2, Total: 2, File: last[StageExtract].File}, last[StageExtract])
	assert.Equal(t, map[string]bool{"leave.txt": true, "remote.txt": true}, files)
	assert.Equal(t, 2, last[StageEmbed].Done)
	assert.Equal(t, 2, last[StageEmbed].Total)
	assert.Equal(t, 1, last[StageSave].Done)
	assert.Equal(t, "embed", StageEmbed.String())
}

func TestIngestText_EmbedsInBatches(t *testing.T) {
	ix := newIndex(t)
	counter := &countingEmbedder{inner: embed.NewStaticEmbedder(16)}
	in := New(ix, counter, nil, Config{ChunkSize: 10, ChunkOverlap: 0})
	text := strings.Repeat("x", 10*(embedBatchSize+5))

	n, err := in.IngestText(context.Background(), "long", text, chunk.ContentTypeMeeting)

	require.NoError(t, err)
	assert.Equal(t, embedBatchSize+5, n)
	assert.Equal(t, 2, counter.calls)
}

type countingEmbedder struct {
	inner *embed.StaticEmbedder
	calls int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.inner.EmbedBatch(ctx, texts)
}
