// Package server exposes One-Desk over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aman-CERP/onedesk/internal/cache"
	"github.com/Aman-CERP/onedesk/internal/extract"
	"github.com/Aman-CERP/onedesk/internal/rag"
	"github.com/Aman-CERP/onedesk/internal/store"
	"github.com/Aman-CERP/onedesk/internal/summary"
	"github.com/Aman-CERP/onedesk/internal/telemetry"
)

// APIName is reported by the root endpoint.
const APIName = "One-Desk Backend API"

// Asker answers HR policy questions.
type Asker interface {
	Ask(ctx context.Context, query string, topK int) (*rag.Answer, error)
}

// Searcher retrieves stored chunks without synthesis.
type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]store.Result, error)
}

// Summarizer summarizes and stores meetings.
type Summarizer interface {
	Summarize(ctx context.Context, text, title string, mode summary.Mode) (*summary.Summary, error)
	SummarizeAndStore(ctx context.Context, text, title string, mode summary.Mode) (*summary.Summary, error)
}

// CacheAdmin exposes cache maintenance.
type CacheAdmin interface {
	Clear()
	Stats() cache.Stats
}

// Status is the health report.
type Status struct {
	Status   string       `json:"status"`
	Version  string       `json:"version"`
	Indexes  []store.Info `json:"indexes"`
	Embedder string       `json:"embedder"`
	LLM      string       `json:"llm"`
	Cache    cache.Stats  `json:"cache"`
}

// Options wires the server to the application services.
type Options struct {
	Addr            string
	Version         string
	Debug           bool
	ShutdownTimeout time.Duration

	HR        Asker
	Meetings  Searcher
	Summaries Summarizer
	Extractor *extract.Extractor
	Cache     CacheAdmin

	// Status fills the health report; Status and Version are set by the server.
	Status func() Status

	// Metrics returns query statistics, or nil when telemetry is off.
	Metrics func() *telemetry.Snapshot
}

// Server manages the HTTP listener and routes.
type Server struct {
	opts   Options
	engine *gin.Engine
	server *http.Server
}

// New creates a server. Routes are registered immediately; nothing listens
// until Start.
func New(opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{opts: opts}
	s.engine = gin.New()
	s.engine.Use(requestID(), accessLog(), recovery())
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("http_server_starting", slog.String("addr", s.opts.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	slog.Info("http_server_starting", slog.String("addr", l.Addr().String()))
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http_server_stopping")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("http_server_stopped")
	return nil
}

// Run starts the server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
