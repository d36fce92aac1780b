package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/onedesk/internal/config"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/llm"
	"github.com/Aman-CERP/onedesk/internal/rag"
	"github.com/Aman-CERP/onedesk/internal/server"
	"github.com/Aman-CERP/onedesk/internal/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.NewConfig()
	cfg.Storage.HRPoliciesPath = filepath.Join(root, "policies")
	cfg.Storage.IndicesPath = filepath.Join(root, "indices")
	cfg.LLM.Provider = llm.ProviderNone
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	cfg.Watch.Debounce = 50 * time.Millisecond
	cfg.Telemetry.Path = filepath.Join(root, "telemetry.db")
	return cfg
}

func writePolicy(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	path := filepath.Join(cfg.Storage.HRPoliciesPath, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_CreatesDirectoriesAndEmptyIndexes(t *testing.T) {
	// Given: a config pointing at directories that do not exist yet
	cfg := testConfig(t)

	// When: building the app
	a := newApp(t, cfg)

	// Then: both folders exist and both indexes start empty
	assert.DirExists(t, cfg.Storage.HRPoliciesPath)
	assert.DirExists(t, cfg.Storage.IndicesPath)
	infos := a.Indexes()
	require.Len(t, infos, 2)
	assert.Equal(t, "hr", infos[0].Name)
	assert.Equal(t, "meet", infos[1].Name)
	assert.Zero(t, infos[0].Count)
	assert.False(t, infos[0].Persisted)
	assert.True(t, llm.IsUnavailable(a.LLM))
	assert.NoError(t, a.CheckDimensions())
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Backend = "annoy"

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
}

func TestNew_CorruptIndexFails(t *testing.T) {
	// Given: index artifacts that cannot be parsed
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Storage.IndicesPath, 0755))
	stem := cfg.Storage.HRIndexStem()
	require.NoError(t, os.WriteFile(stem+".index", []byte("garbage"), 0644))
	require.NoError(t, os.WriteFile(stem+".meta.json", []byte("{"), 0644))

	// When: building the app
	_, err := New(context.Background(), cfg)

	// Then: startup fails with a corrupt index error
	require.Error(t, err)
	assert.True(t, oderrors.HasCode(err, oderrors.ErrCodeCorruptIndex))
}

func TestIngestHR_IndexesPoliciesAndAnswers(t *testing.T) {
	// Given: a policy folder with two documents
	cfg := testConfig(t)
	writePolicy(t, cfg, "leave.txt", strings.Repeat("Employees receive twenty days of annual leave. ", 5))
	writePolicy(t, cfg, "travel/expenses.txt", "Travel expenses are reimbursed within thirty days.")
	a := newApp(t, cfg)
	ctx := context.Background()

	// When: ingesting the folder and asking a question
	report, err := a.IngestHR(ctx, "", false)
	require.NoError(t, err)
	ans, err := a.HR.Ask(ctx, "How many days of annual leave?", 2)

	// Then: both files are indexed and the answer cites them
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, report.Total, a.HRIndex.Count())
	assert.NotEmpty(t, ans.Contexts)
	assert.NotEmpty(t, ans.Sources)
	assert.NotEqual(t, rag.NotFoundAnswer, ans.Answer)
}

func TestAsk_RecordsMetrics(t *testing.T) {
	// Given: an app with one policy
	cfg := testConfig(t)
	writePolicy(t, cfg, "leave.txt", "Employees receive twenty days of annual leave per year.")
	a := newApp(t, cfg)
	_, err := a.IngestHR(context.Background(), "", false)
	require.NoError(t, err)

	// When: asking twice and searching meetings once
	_, err = a.Ask(context.Background(), "annual leave", 3)
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "annual leave", 3)
	require.NoError(t, err)
	results, err := a.SearchMeetings(context.Background(), "roadmap", 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Then: the collector saw all three
	snap := a.Metrics.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.KindCounts[telemetry.KindAsk])
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, []string{"roadmap"}, snap.ZeroResultQueries)
}

func TestNew_TelemetryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.Enabled = false
	a := newApp(t, cfg)

	_, err := a.Ask(context.Background(), "anything", 1)

	require.NoError(t, err)
	assert.Nil(t, a.Metrics)
	assert.NoFileExists(t, cfg.Telemetry.Path)
}

func TestIngestHR_PersistsAcrossRestart(t *testing.T) {
	// Given: an app that ingested the policy folder
	cfg := testConfig(t)
	writePolicy(t, cfg, "leave.txt", "Employees receive twenty days of annual leave.")
	first := newApp(t, cfg)
	_, err := first.IngestHR(context.Background(), "", false)
	require.NoError(t, err)
	want := first.HRIndex.Count()

	// When: a second app starts on the same directories
	second := newApp(t, cfg)

	// Then: it loads the saved index
	assert.Equal(t, want, second.HRIndex.Count())
	assert.True(t, second.HRIndex.Info().Persisted)
}

func TestIngestHR_RebuildClearsResponseCache(t *testing.T) {
	// Given: an app with a cached answer
	cfg := testConfig(t)
	writePolicy(t, cfg, "leave.txt", "Employees receive twenty days of annual leave.")
	a := newApp(t, cfg)
	ctx := context.Background()
	_, err := a.IngestHR(ctx, "", false)
	require.NoError(t, err)
	a.Cache.SetResponse("key", rag.Answer{Answer: "cached"})
	require.Equal(t, 1, a.Cache.Stats().ResponseEntries)

	// When: rebuilding the HR index
	_, err = a.IngestHR(ctx, "", true)

	// Then: the rebuild replaced the index and dropped cached answers
	require.NoError(t, err)
	assert.Zero(t, a.Cache.Stats().ResponseEntries)
	assert.Equal(t, 1, a.HRIndex.Count())
}

func TestCheckDimensions_DetectsModelChange(t *testing.T) {
	// Given: an index built with 64-dimensional vectors
	cfg := testConfig(t)
	writePolicy(t, cfg, "leave.txt", "Employees receive twenty days of annual leave.")
	first := newApp(t, cfg)
	_, err := first.IngestHR(context.Background(), "", false)
	require.NoError(t, err)

	// When: restarting with a 32-dimensional embedder
	cfg.Embeddings.Dimensions = 32
	second := newApp(t, cfg)
	err = second.CheckDimensions()

	// Then: the mismatch is reported with a rebuild hint
	require.Error(t, err)
	assert.True(t, oderrors.HasCode(err, oderrors.ErrCodeDimensionMismatch))
	oe, ok := oderrors.As(err)
	require.True(t, ok)
	assert.Contains(t, oe.Suggestion, "--rebuild")
}

func TestIndex_ResolvesNames(t *testing.T) {
	a := newApp(t, testConfig(t))

	hr, err := a.Index("hr")
	require.NoError(t, err)
	assert.Same(t, a.HRIndex, hr)

	meet, err := a.Index("meetings")
	require.NoError(t, err)
	assert.Same(t, a.MeetingIndex, meet)

	_, err = a.Index("payroll")
	assert.True(t, oderrors.HasCode(err, oderrors.ErrCodeInvalidInput))
}

func TestSummaries_StoreIntoMeetingIndex(t *testing.T) {
	// Given: an app without an LLM
	a := newApp(t, testConfig(t))
	ctx := context.Background()

	// When: summarizing and storing a transcript
	res, err := a.Summaries.SummarizeAndStore(ctx,
		"The team agreed to ship the release on Friday. Alice owns the changelog.", "Sprint review", "")

	// Then: the meeting index holds the transcript and search finds it
	require.NoError(t, err)
	require.NotNil(t, res.ChunksStored)
	assert.Positive(t, *res.ChunksStored)
	results, err := a.Meetings.Retrieve(ctx, "release on Friday", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Sprint review", results[0].Meta.Source)
}

func TestWatchHR_RebuildsOnChange(t *testing.T) {
	// Given: a watched, initially empty policy folder
	cfg := testConfig(t)
	a := newApp(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.WatchHR(ctx) }()

	// When: a policy file appears
	time.Sleep(200 * time.Millisecond)
	writePolicy(t, cfg, "leave.txt", "Employees receive twenty days of annual leave.")

	// Then: the index is rebuilt without a manual ingest
	assert.Eventually(t, func() bool { return a.HRIndex.Count() > 0 }, 10*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestServerOptions_HealthReportsIndexes(t *testing.T) {
	// Given: a server wired to a fresh app
	cfg := testConfig(t)
	a := newApp(t, cfg)
	opts := a.ServerOptions("1.2.3")
	srv := server.New(opts)

	// When: requesting the health endpoint
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// Then: the report names both indexes and the backends
	require.Equal(t, http.StatusOK, rec.Code)
	var status server.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Len(t, status.Indexes, 2)
	assert.Equal(t, a.Embedder.ModelName(), status.Embedder)
	assert.Equal(t, cfg.Server.Addr(), opts.Addr)
}
