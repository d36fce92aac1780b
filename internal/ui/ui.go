// Package ui renders ingestion progress: a bubbletea view on interactive
// terminals and plain lines everywhere else.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a step of an ingestion run.
type Stage int

const (
	// StageExtract reads text out of each document.
	StageExtract Stage = iota
	// StageEmbed embeds the chunks.
	StageEmbed
	// StageSave writes the index to disk.
	StageSave
	// StageComplete marks the end of the run.
	StageComplete
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "Extract"
	case StageEmbed:
		return "Embed"
	case StageSave:
		return "Save"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short label used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StageExtract:
		return "EXTRACT"
	case StageEmbed:
		return "EMBED"
	case StageSave:
		return "SAVE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// unit names what a stage counts.
func (s Stage) unit() string {
	switch s {
	case StageExtract:
		return "files"
	case StageEmbed:
		return "chunks"
	default:
		return "steps"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Files    int
	Chunks   int
	Total    int // chunks in the index afterwards
	Skipped  int
	Duration time.Duration
	Embedder string
}

// Renderer displays progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithTitle sets the panel title, usually the folder being ingested.
func WithTitle(title string) ConfigOption {
	return func(c *Config) { c.Title = title }
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer for interactive terminals and the
// plain renderer for pipes, CI and --plain.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
