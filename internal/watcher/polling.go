package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the folder on an interval
// and comparing modification times and sizes.
type PollingWatcher struct {
	interval time.Duration

	mu       sync.Mutex
	state    map[string]fileSnapshot
	rootPath string
	stopped  bool

	events chan FileEvent
	errors chan error
	stopCh chan struct{}
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline and then polls until ctx is cancelled or Stop
// is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	p.mu.Lock()
	p.rootPath = absPath
	baseline, err := p.snapshot()
	if err == nil {
		p.state = baseline
	}
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				p.mu.Lock()
				if !p.stopped {
					select {
					case p.errors <- err:
					default:
					}
				}
				p.mu.Unlock()
			}
		}
	}
}

// Stop stops polling. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns raw, undebounced events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshot must be called with mu held. Only files are recorded; hidden
// directories are not descended.
func (p *PollingWatcher) snapshot() (map[string]fileSnapshot, error) {
	out := make(map[string]fileSnapshot)
	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(p.rootPath, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if d.IsDir() {
			if hidden(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[relPath] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return out, err
}

func (p *PollingWatcher) detectChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	current, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("scan for changes: %w", err)
	}

	now := time.Now()
	for path, snap := range current {
		prev, existed := p.state[path]
		switch {
		case !existed:
			p.emit(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emit(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path := range p.state {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

// emit must be called with mu held.
func (p *PollingWatcher) emit(event FileEvent) {
	select {
	case p.events <- event:
	default:
		slog.Warn("poll_event_dropped",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}
