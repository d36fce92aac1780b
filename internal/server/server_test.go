package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/onedesk/internal/cache"
	"github.com/Aman-CERP/onedesk/internal/config"
	"github.com/Aman-CERP/onedesk/internal/embed"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/extract"
	"github.com/Aman-CERP/onedesk/internal/llm"
	"github.com/Aman-CERP/onedesk/internal/rag"
	"github.com/Aman-CERP/onedesk/internal/store"
	"github.com/Aman-CERP/onedesk/internal/summary"
	"github.com/Aman-CERP/onedesk/internal/telemetry"
)

type fakeAsker struct {
	query string
	topK  int
	err   error
	panic bool
}

func (f *fakeAsker) Ask(_ context.Context, query string, topK int) (*rag.Answer, error) {
	if f.panic {
		panic("boom")
	}
	f.query, f.topK = query, topK
	if f.err != nil {
		return nil, f.err
	}
	return &rag.Answer{
		Answer:   "20 days",
		Contexts: []string{"Employees get 20 days."},
		Sources:  []rag.Source{{Source: "leave.txt", Chunk: 0, Score: 0.91}},
	}, nil
}

type fakeSearcher struct {
	results []store.Result
	topK    int
}

func (f *fakeSearcher) Retrieve(_ context.Context, query string, topK int) ([]store.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, oderrors.New(oderrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	f.topK = topK
	return f.results, nil
}

type fakeSummarizer struct {
	text, title string
	mode        summary.Mode
	stored      bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, text, title string, mode summary.Mode) (*summary.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, oderrors.ValidationError("meeting content is required", nil)
	}
	f.text, f.title, f.mode = text, title, mode
	return &summary.Summary{Summary: "short", MeetingTitle: title, TextLength: len(text), Mode: mode}, nil
}

func (f *fakeSummarizer) SummarizeAndStore(ctx context.Context, text, title string, mode summary.Mode) (*summary.Summary, error) {
	sum, err := f.Summarize(ctx, text, title, mode)
	if err != nil {
		return nil, err
	}
	f.stored = true
	n, total := 2, 7
	sum.ChunksStored, sum.TotalMeetings = &n, &total
	return sum, nil
}

type fakeCache struct{ cleared bool }

func (f *fakeCache) Clear()             { f.cleared = true }
func (f *fakeCache) Stats() cache.Stats { return cache.Stats{ResponseEntries: 3} }

type fixture struct {
	srv      *Server
	hr       *fakeAsker
	meetings *fakeSearcher
	sum      *fakeSummarizer
	cache    *fakeCache
}

func newFixture() *fixture {
	f := &fixture{
		hr:       &fakeAsker{},
		meetings: &fakeSearcher{results: []store.Result{{Text: "budget agreed", Score: 0.8, Meta: store.Meta{Source: "Q3", Type: "meeting"}}}},
		sum:      &fakeSummarizer{},
		cache:    &fakeCache{},
	}
	f.srv = New(Options{
		Version:   "1.2.3",
		HR:        f.hr,
		Meetings:  f.meetings,
		Summaries: f.sum,
		Extractor: extract.New(config.UploadsConfig{AllowedFileTypes: []string{".pdf", ".txt"}, MaxFileSizeMB: 1}),
		Cache:     f.cache,
		Status: func() Status {
			return Status{Embedder: "static-256", LLM: "deepseek-chat", Indexes: []store.Info{{Name: "hr", Count: 4}}}
		},
	})
	gin.SetMode(gin.TestMode)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func postFile(t *testing.T, path, name string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, APIName, body["name"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestHealth(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	st := decode[Status](t, w)
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, "1.2.3", st.Version)
	assert.Equal(t, "static-256", st.Embedder)
	require.Len(t, st.Indexes, 1)
	assert.Equal(t, 4, st.Indexes[0].Count)
}

func TestAsk_Form(t *testing.T) {
	// Given: a form request with an explicit top_k
	f := newFixture()

	// When: posting to /api/hr/ask
	w := f.do(postForm("/api/hr/ask", url.Values{"query": {"How much leave?"}, "top_k": {"3"}}))

	// Then: the answer is returned and the parameters reach the service
	require.Equal(t, http.StatusOK, w.Code)
	ans := decode[rag.Answer](t, w)
	assert.Equal(t, "20 days", ans.Answer)
	assert.Equal(t, []rag.Source{{Source: "leave.txt", Chunk: 0, Score: 0.91}}, ans.Sources)
	assert.Equal(t, "How much leave?", f.hr.query)
	assert.Equal(t, 3, f.hr.topK)
}

func TestAsk_OmittedTopKLeftToService(t *testing.T) {
	f := newFixture()

	w := f.do(postJSON("/api/hr/ask", `{"query":"remote work?"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, f.hr.topK)
}

type recordingIndex struct{ k int }

func (r *recordingIndex) Search(_ []float32, k int) ([]store.Result, error) {
	r.k = k
	return []store.Result{{Text: "Employees get 20 leave days.", Score: 0.9, Meta: store.Meta{Source: "leave.txt"}}}, nil
}

func TestAskAndSearch_UseConfiguredDefaultTopK(t *testing.T) {
	// Given: services configured with a default top_k of 3
	hrIndex, meetIndex := &recordingIndex{}, &recordingIndex{}
	cfg := rag.Config{DefaultTopK: 3, MaxTopK: 20, MaxContextLength: 20000}
	unavailable := llm.NewUnavailable("none", "no provider")
	srv := New(Options{
		HR:       rag.New(hrIndex, embed.NewStaticEmbedder(32), unavailable, nil, cfg),
		Meetings: rag.New(meetIndex, embed.NewStaticEmbedder(32), unavailable, nil, cfg),
	})
	gin.SetMode(gin.TestMode)

	// When: requests omit top_k
	for _, path := range []string{"/api/hr/ask", "/api/meetings/search"} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, postJSON(path, `{"query":"leave days"}`))
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	// Then: both indexes are searched with the configured default
	assert.Equal(t, 3, hrIndex.k)
	assert.Equal(t, 3, meetIndex.k)
}

func TestAsk_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"zero top_k", postForm("/api/hr/ask", url.Values{"query": {"q"}, "top_k": {"0"}})},
		{"negative top_k", postJSON("/api/hr/ask", `{"query":"q","top_k":-1}`)},
		{"non-numeric top_k", postForm("/api/hr/ask", url.Values{"query": {"q"}, "top_k": {"many"}})},
		{"malformed json", postJSON("/api/hr/ask", `{"query":`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			w := f.do(tt.req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[oderrors.Body](t, w)
			assert.Equal(t, oderrors.ErrCodeInvalidInput, body.Code)
			assert.NotEmpty(t, body.RequestID)
			assert.Empty(t, f.hr.query)
		})
	}
}

func TestAsk_ServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty query", oderrors.New(oderrors.ErrCodeQueryEmpty, "query must not be empty", nil), http.StatusBadRequest, oderrors.ErrCodeQueryEmpty},
		{"top_k above max", oderrors.ValidationError("top_k must be between 1 and 20", nil), http.StatusBadRequest, oderrors.ErrCodeInvalidInput},
		{"embedder down", oderrors.New(oderrors.ErrCodeEmbedderBackend, "ollama unreachable", nil), http.StatusBadGateway, oderrors.ErrCodeEmbedderBackend},
		{"dimension mismatch", oderrors.DimensionError(256, 768), http.StatusConflict, oderrors.ErrCodeDimensionMismatch},
		{"foreign error", assert.AnError, http.StatusInternalServerError, oderrors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.hr.err = tt.err

			w := f.do(postForm("/api/hr/ask", url.Values{"query": {"q"}}))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[oderrors.Body](t, w).Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture()

	// Given: no incoming ID, one is generated
	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	// Given: an incoming ID, it is echoed
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = f.do(req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestPanicRecovery(t *testing.T) {
	f := newFixture()
	f.hr.panic = true

	w := f.do(postForm("/api/hr/ask", url.Values{"query": {"q"}}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, oderrors.ErrCodeInternal, decode[oderrors.Body](t, w).Code)
}

func TestNoRoute(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummarizeText_DefaultsToQuick(t *testing.T) {
	// Given: a form with meeting content and no mode
	f := newFixture()

	// When: posting to /summarize/text
	w := f.do(postForm("/api/meetings/summarize/text", url.Values{
		"meeting_content": {"We met. We agreed."},
		"meeting_title":   {"Sync"},
	}))

	// Then: the extractive mode is used and nothing is stored
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[summary.Summary](t, w)
	assert.Equal(t, "short", sum.Summary)
	assert.Equal(t, summary.ModeQuick, f.sum.mode)
	assert.False(t, f.sum.stored)
	assert.Nil(t, sum.ChunksStored)
}

func TestSummarizeText_ModeFromQuery(t *testing.T) {
	f := newFixture()

	w := f.do(postJSON("/api/meetings/summarize/text?mode=llm", `{"meeting_content":"We met."}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, summary.ModeLLM, f.sum.mode)
}

func TestSummarizeText_BadMode(t *testing.T) {
	f := newFixture()

	w := f.do(postJSON("/api/meetings/summarize/text?mode=poem", `{"meeting_content":"We met."}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummarizeText_EmptyContent(t *testing.T) {
	f := newFixture()

	w := f.do(postForm("/api/meetings/summarize/text", url.Values{"meeting_content": {"   "}}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummarizeTextStore(t *testing.T) {
	f := newFixture()

	w := f.do(postForm("/api/meetings/summarize/text/store", url.Values{"meeting_content": {"We met."}}))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "short", body["summary"])
	assert.EqualValues(t, 2, body["chunks_stored"])
	assert.EqualValues(t, 7, body["total_meetings"])
	assert.True(t, f.sum.stored)
}

func TestSummarizeFile_TextUpload(t *testing.T) {
	// Given: a .txt transcript uploaded with store=true and no title
	f := newFixture()
	req := postFile(t, "/api/meetings/summarize/pdf", "weekly-sync.txt", []byte("Alice presented."), map[string]string{"store": "true"})

	// When: posting it
	w := f.do(req)

	// Then: the extracted text is summarized and stored under the file stem
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice presented.", f.sum.text)
	assert.Equal(t, "weekly-sync", f.sum.title)
	assert.True(t, f.sum.stored)
}

func TestSummarizeFile_ExplicitTitle(t *testing.T) {
	f := newFixture()
	req := postFile(t, "/api/meetings/summarize/pdf", "a.txt", []byte("Text."), map[string]string{"meeting_title": "Board Meeting"})

	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Board Meeting", f.sum.title)
	assert.False(t, f.sum.stored)
}

func TestSummarizeFile_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		status  int
		code    string
	}{
		{"unsupported type", "notes.docx", []byte("x"), http.StatusUnsupportedMediaType, oderrors.ErrCodeUnsupportedFile},
		{"too large", "big.txt", bytes.Repeat([]byte("a"), 1024*1024+1), http.StatusRequestEntityTooLarge, oderrors.ErrCodeFileTooLarge},
		{"not a pdf", "fake.pdf", []byte("hello"), http.StatusBadRequest, oderrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			w := f.do(postFile(t, "/api/meetings/summarize/pdf", tt.file, tt.content, nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[oderrors.Body](t, w).Code)
		})
	}
}

func TestSummarizeFile_MissingFile(t *testing.T) {
	f := newFixture()

	w := f.do(postForm("/api/meetings/summarize/pdf", url.Values{"meeting_title": {"x"}}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMeetingSearch(t *testing.T) {
	f := newFixture()

	w := f.do(postJSON("/api/meetings/search", `{"query":" budget ","top_k":2}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Query   string         `json:"query"`
		Results []store.Result `json:"results"`
	}](t, w)
	assert.Equal(t, "budget", body.Query)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "meeting", body.Results[0].Meta.Type)
	assert.Equal(t, 2, f.meetings.topK)
}

func TestMeetingSearch_EmptyResultsIsArray(t *testing.T) {
	f := newFixture()
	f.meetings.results = nil

	w := f.do(postJSON("/api/meetings/search", `{"query":"anything"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results":[]`)
}

func TestCacheClear(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodPost, "/api/admin/cache/clear", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.cache.cleared)
	assert.Contains(t, w.Body.String(), `"cleared":true`)
}

func TestMetrics(t *testing.T) {
	// Given: a server with telemetry
	f := newFixture()
	metrics := telemetry.NewCollector(nil, telemetry.Config{})
	defer func() { _ = metrics.Close() }()
	metrics.Record(telemetry.QueryEvent{Query: "leave policy", Kind: telemetry.KindAsk, ResultCount: 2})
	metrics.Record(telemetry.QueryEvent{Query: "budget", Kind: telemetry.KindMeetingSearch})
	f.srv.opts.Metrics = metrics.Snapshot

	// When: requesting metrics
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/admin/metrics", nil))

	// Then: the snapshot is returned
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Metrics           telemetry.Snapshot `json:"metrics"`
		ZeroResultPercent float64            `json:"zero_result_percent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.Metrics.TotalQueries)
	assert.Equal(t, []string{"budget"}, body.Metrics.ZeroResultQueries)
	assert.InDelta(t, 50.0, body.ZeroResultPercent, 0.001)
}

func TestMetrics_Disabled(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/admin/metrics", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "telemetry is disabled")
}

func TestServeAndShutdown(t *testing.T) {
	// Given: a server on an ephemeral port
	f := newFixture()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(l) }()

	// When: a request is made and the server is shut down
	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))

	// Then: Serve returns without error
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestFormBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "on"} {
		assert.True(t, formBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "maybe"} {
		assert.False(t, formBool(v), v)
	}
}
