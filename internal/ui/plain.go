package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per stage change and per finished stage.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	stage   Stage
	started bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer. Intermediate updates within a stage
// are dropped.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := !r.started || event.Stage != r.stage
	r.started = true
	r.stage = event.Stage
	finished := event.Total > 0 && event.Current >= event.Total
	if !first && !finished {
		return
	}

	switch {
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, event.Stage.unit())
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "[%s] %d files, %d chunks in %s",
		StageComplete.Icon(), stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Skipped > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d skipped)", stats.Skipped)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
