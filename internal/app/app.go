// Package app assembles the One-Desk services from configuration.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/onedesk/internal/cache"
	"github.com/Aman-CERP/onedesk/internal/config"
	"github.com/Aman-CERP/onedesk/internal/embed"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/extract"
	"github.com/Aman-CERP/onedesk/internal/ingest"
	"github.com/Aman-CERP/onedesk/internal/llm"
	"github.com/Aman-CERP/onedesk/internal/rag"
	"github.com/Aman-CERP/onedesk/internal/server"
	"github.com/Aman-CERP/onedesk/internal/store"
	"github.com/Aman-CERP/onedesk/internal/summary"
	"github.com/Aman-CERP/onedesk/internal/telemetry"
	"github.com/Aman-CERP/onedesk/internal/watcher"
)

// App holds every long-lived component. There is exactly one HR policy
// index and one meeting index per App.
type App struct {
	Config *config.Config

	Embedder  embed.Embedder
	LLM       llm.Client
	Cache     *cache.Manager[rag.Answer]
	Extractor *extract.Extractor

	HRIndex      *store.Index
	MeetingIndex *store.Index

	HRIngest      *ingest.Ingester
	MeetingIngest *ingest.Ingester

	HR        *rag.Service
	Meetings  *rag.Service
	Summaries *summary.Service

	// Metrics is nil when telemetry is disabled.
	Metrics *telemetry.Collector
}

// New builds the application and loads both indexes from disk.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	backend, err := store.ParseBackend(cfg.Index.Backend)
	if err != nil {
		return nil, err
	}
	hrIndex, err := store.New(store.Config{Name: "hr", Stem: cfg.Storage.HRIndexStem(), Backend: backend})
	if err != nil {
		return nil, err
	}
	meetIndex, err := store.New(store.Config{Name: "meet", Stem: cfg.Storage.MeetingIndexStem(), Backend: backend})
	if err != nil {
		return nil, err
	}

	g, _ := errgroup.WithContext(ctx)
	for _, ix := range []*store.Index{hrIndex, meetIndex} {
		g.Go(func() error {
			loaded, err := ix.Load()
			if err != nil {
				return err
			}
			if !loaded {
				slog.Info("index_empty", slog.String("index", ix.Name()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	client, err := llm.New(cfg.LLM)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	caches := cache.NewManager[rag.Answer](cache.ManagerConfigFrom(cfg.Cache))
	extractor := extract.New(cfg.Uploads)
	chunking := ingest.ConfigFrom(cfg.Chunking)
	retrieval := rag.ConfigFrom(cfg.Retrieval)

	a := &App{
		Config:        cfg,
		Embedder:      embedder,
		LLM:           client,
		Cache:         caches,
		Extractor:     extractor,
		HRIndex:       hrIndex,
		MeetingIndex:  meetIndex,
		HRIngest:      ingest.New(hrIndex, embedder, extractor, chunking),
		MeetingIngest: ingest.New(meetIndex, embedder, extractor, chunking),
		HR:            rag.New(hrIndex, embedder, client, caches, retrieval),
		Meetings:      rag.New(meetIndex, embedder, client, caches, retrieval),
	}
	a.Summaries = summary.New(client, a.MeetingIngest)
	if cfg.Telemetry.Enabled {
		a.Metrics = newMetrics(cfg.Telemetry)
	}

	slog.Info("app_ready",
		slog.Int("hr_chunks", hrIndex.Count()),
		slog.Int("meeting_chunks", meetIndex.Count()),
		slog.String("embedder", embedder.ModelName()),
		slog.String("llm", client.Model()))
	return a, nil
}

// newMetrics opens the telemetry database. A database that cannot be opened
// leaves metrics in memory only.
func newMetrics(cfg config.TelemetryConfig) *telemetry.Collector {
	tcfg := telemetry.DefaultConfig()
	tcfg.FlushInterval = cfg.FlushInterval

	db, err := telemetry.OpenSQLite(cfg.Path)
	if err != nil {
		slog.Warn("telemetry_store_unavailable",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()))
		return telemetry.NewCollector(nil, tcfg)
	}
	return telemetry.NewCollector(db, tcfg)
}

// CheckDimensions fails when a loaded index was built with a different
// embedding dimension than the configured embedder produces. Rebuilding the
// HR index is the fix; meeting transcripts must be re-submitted.
func (a *App) CheckDimensions() error {
	want := a.Embedder.Dimensions()
	for _, ix := range a.Indexes() {
		if ix.Dimensions != 0 && ix.Dimensions != want {
			return oderrors.DimensionError(ix.Dimensions, want).
				WithDetail("index", ix.Name).
				WithSuggestion("the embedding model changed; run 'onedesk ingest --rebuild' or clear the index")
		}
	}
	return nil
}

// Indexes reports both indexes.
func (a *App) Indexes() []store.Info {
	return []store.Info{a.HRIndex.Info(), a.MeetingIndex.Info()}
}

// Index returns the index named "hr" or "meet".
func (a *App) Index(name string) (*store.Index, error) {
	switch name {
	case "hr":
		return a.HRIndex, nil
	case "meet", "meetings":
		return a.MeetingIndex, nil
	default:
		return nil, oderrors.ValidationError("unknown index "+name+" (use hr or meet)", nil)
	}
}

// Ask answers an HR question and records it.
func (a *App) Ask(ctx context.Context, query string, topK int) (*rag.Answer, error) {
	start := time.Now()
	ans, err := a.HR.Ask(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	a.record(telemetry.QueryEvent{
		Query:       query,
		Kind:        telemetry.KindAsk,
		ResultCount: len(ans.Contexts),
		Latency:     time.Since(start),
		Cached:      ans.Cached,
		Degraded:    ans.Degraded,
	})
	return ans, nil
}

// SearchMeetings searches stored meeting summaries and records the query.
func (a *App) SearchMeetings(ctx context.Context, query string, topK int) ([]store.Result, error) {
	start := time.Now()
	results, err := a.Meetings.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	a.record(telemetry.QueryEvent{
		Query:       query,
		Kind:        telemetry.KindMeetingSearch,
		ResultCount: len(results),
		Latency:     time.Since(start),
	})
	return results, nil
}

func (a *App) record(e telemetry.QueryEvent) {
	if a.Metrics != nil {
		a.Metrics.Record(e)
	}
}

// meetingSearcher adapts App to server.Searcher.
type meetingSearcher struct{ a *App }

func (m meetingSearcher) Retrieve(ctx context.Context, query string, topK int) ([]store.Result, error) {
	return m.a.SearchMeetings(ctx, query, topK)
}

// IngestHR ingests the HR policy folder, from scratch when rebuild is set.
// Cached answers are dropped afterwards since they may no longer match.
func (a *App) IngestHR(ctx context.Context, dir string, rebuild bool) (*ingest.Report, error) {
	if dir == "" {
		dir = a.Config.Storage.HRPoliciesPath
	}
	var (
		report *ingest.Report
		err    error
	)
	if rebuild {
		report, err = a.HRIngest.Rebuild(ctx, dir)
	} else {
		report, err = a.HRIngest.IngestDir(ctx, dir)
	}
	if err != nil {
		return nil, err
	}
	a.Cache.Clear()
	return report, nil
}

// WatchHR rebuilds the HR index whenever the policy folder changes, until
// ctx is cancelled.
func (a *App) WatchHR(ctx context.Context) error {
	dir := a.Config.Storage.HRPoliciesPath
	opts := watcher.DefaultOptions()
	if a.Config.Watch.Debounce > 0 {
		opts.Debounce = a.Config.Watch.Debounce
	}
	opts.Filter = a.Extractor.Supported

	return watcher.Run(ctx, dir, opts, func(ctx context.Context, events []watcher.FileEvent) error {
		report, err := a.IngestHR(ctx, dir, true)
		if err != nil {
			return err
		}
		slog.Info("hr_index_refreshed",
			slog.Int("changed", len(events)),
			slog.Int("files", report.Files),
			slog.Int("total", report.Total))
		return nil
	})
}

// ServerOptions wires the HTTP server to this App.
func (a *App) ServerOptions(version string) server.Options {
	return server.Options{
		Addr:            a.Config.Server.Addr(),
		Version:         version,
		Debug:           a.Config.Server.Debug,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
		HR:              a,
		Meetings:        meetingSearcher{a},
		Summaries:       a.Summaries,
		Extractor:       a.Extractor,
		Cache:           a.Cache,
		Status:          a.status,
		Metrics:         a.metricsSnapshot,
	}
}

func (a *App) metricsSnapshot() *telemetry.Snapshot {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics.Snapshot()
}

func (a *App) status() server.Status {
	return server.Status{
		Indexes:  a.Indexes(),
		Embedder: a.Embedder.ModelName(),
		LLM:      a.LLM.Model(),
		Cache:    a.Cache.Stats(),
	}
}

// Close releases backend resources.
func (a *App) Close() error {
	var errs []error
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	return errors.Join(errs...)
}
