package server

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/store"
	"github.com/Aman-CERP/onedesk/internal/summary"
	"github.com/Aman-CERP/onedesk/internal/telemetry"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/healthz", s.handleHealth)

	hr := s.engine.Group("/api/hr")
	hr.POST("/ask", s.handleAsk)

	meetings := s.engine.Group("/api/meetings")
	meetings.POST("/summarize/text", s.handleSummarizeText(false))
	meetings.POST("/summarize/text/store", s.handleSummarizeText(true))
	meetings.POST("/summarize/pdf", s.handleSummarizeFile)
	meetings.POST("/search", s.handleMeetingSearch)

	admin := s.engine.Group("/api/admin")
	admin.POST("/cache/clear", s.handleCacheClear)
	admin.GET("/metrics", s.handleMetrics)

	s.engine.NoRoute(func(c *gin.Context) {
		body := oderrors.ToBody(oderrors.New(oderrors.ErrCodeInvalidPath,
			fmt.Sprintf("no route for %s %s", c.Request.Method, c.Request.URL.Path), nil))
		body.RequestID = requestIDFrom(c)
		c.AbortWithStatusJSON(http.StatusNotFound, body)
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    APIName,
		"version": s.opts.Version,
		"endpoints": []string{
			"GET /healthz",
			"POST /api/hr/ask",
			"POST /api/meetings/summarize/text",
			"POST /api/meetings/summarize/text/store",
			"POST /api/meetings/summarize/pdf",
			"POST /api/meetings/search",
			"POST /api/admin/cache/clear",
			"GET /api/admin/metrics",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	var st Status
	if s.opts.Status != nil {
		st = s.opts.Status()
	}
	st.Status = "ok"
	st.Version = s.opts.Version
	c.JSON(http.StatusOK, st)
}

// queryRequest is accepted as form fields or JSON.
type queryRequest struct {
	Query string `form:"query" json:"query"`
	TopK  *int   `form:"top_k" json:"top_k"`
}

// topK returns the requested top_k, or 0 when omitted so the service
// applies retrieval.top_k. An explicit value below one is rejected here; the
// upper bound is enforced by the service.
func (r queryRequest) topK() (int, error) {
	if r.TopK == nil {
		return 0, nil
	}
	if *r.TopK < 1 {
		return 0, oderrors.ValidationError(fmt.Sprintf("top_k must be at least 1, got %d", *r.TopK), nil).
			WithDetail("top_k", fmt.Sprint(*r.TopK))
	}
	return *r.TopK, nil
}

func bindQuery(c *gin.Context) (string, int, bool) {
	var req queryRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, oderrors.ValidationError("invalid request body", err))
		return "", 0, false
	}
	k, err := req.topK()
	if err != nil {
		writeError(c, err)
		return "", 0, false
	}
	return req.Query, k, true
}

func (s *Server) handleAsk(c *gin.Context) {
	query, k, ok := bindQuery(c)
	if !ok {
		return
	}
	ans, err := s.opts.HR.Ask(c.Request.Context(), query, k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ans)
}

func (s *Server) handleMeetingSearch(c *gin.Context) {
	query, k, ok := bindQuery(c)
	if !ok {
		return
	}
	results, err := s.opts.Meetings.Retrieve(c.Request.Context(), query, k)
	if err != nil {
		writeError(c, err)
		return
	}
	if results == nil {
		results = []store.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"query": strings.TrimSpace(query), "results": results})
}

type summarizeRequest struct {
	MeetingContent string `form:"meeting_content" json:"meeting_content"`
	MeetingTitle   string `form:"meeting_title" json:"meeting_title"`
	Mode           string `form:"mode" json:"mode"`
}

// summaryMode resolves the mode from the query string or body. Meeting
// endpoints default to the extractive summary.
func summaryMode(c *gin.Context, body string) (summary.Mode, error) {
	raw := c.Query("mode")
	if raw == "" {
		raw = body
	}
	if raw == "" {
		return summary.ModeQuick, nil
	}
	return summary.ParseMode(raw)
}

func (s *Server) handleSummarizeText(persist bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req summarizeRequest
		if err := c.ShouldBind(&req); err != nil {
			writeError(c, oderrors.ValidationError("invalid request body", err))
			return
		}
		mode, err := summaryMode(c, req.Mode)
		if err != nil {
			writeError(c, err)
			return
		}
		s.summarize(c, req.MeetingContent, req.MeetingTitle, mode, persist)
	}
}

func (s *Server) handleSummarizeFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, oderrors.ValidationError("multipart field \"file\" is required", err))
		return
	}
	if !s.opts.Extractor.Supported(fh.Filename) {
		_, err := s.opts.Extractor.Extract(fh.Filename, nil)
		writeError(c, err)
		return
	}
	if err := s.opts.Extractor.CheckSize(fh.Filename, fh.Size); err != nil {
		writeError(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, oderrors.IOError("cannot open upload", err))
		return
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, s.opts.Extractor.MaxBytes()+1))
	if err != nil {
		writeError(c, oderrors.IOError("cannot read upload", err))
		return
	}
	text, err := s.opts.Extractor.Extract(fh.Filename, data)
	if err != nil {
		writeError(c, err)
		return
	}

	title := c.PostForm("meeting_title")
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
	}
	mode, err := summaryMode(c, c.PostForm("mode"))
	if err != nil {
		writeError(c, err)
		return
	}
	s.summarize(c, text, title, mode, formBool(c.PostForm("store")))
}

func (s *Server) summarize(c *gin.Context, text, title string, mode summary.Mode, persist bool) {
	var (
		sum *summary.Summary
		err error
	)
	if persist {
		sum, err = s.opts.Summaries.SummarizeAndStore(c.Request.Context(), text, title, mode)
	} else {
		sum, err = s.opts.Summaries.Summarize(c.Request.Context(), text, title, mode)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleCacheClear(c *gin.Context) {
	before := s.opts.Cache.Stats()
	s.opts.Cache.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true, "before": before})
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (s *Server) handleMetrics(c *gin.Context) {
	var snap *telemetry.Snapshot
	if s.opts.Metrics != nil {
		snap = s.opts.Metrics()
	}
	if snap == nil {
		body := oderrors.ToBody(oderrors.New(oderrors.ErrCodeInvalidPath, "telemetry is disabled", nil).
			WithSuggestion("set telemetry.enabled: true in onedesk.yaml"))
		body.RequestID = requestIDFrom(c)
		c.AbortWithStatusJSON(http.StatusNotFound, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metrics":             snap,
		"zero_result_percent": snap.ZeroResultPercentage(),
		"cache_hit_percent":   snap.CacheHitPercentage(),
	})
}
