package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches a folder recursively with fsnotify, or by polling
// when fsnotify cannot be used.
type HybridWatcher struct {
	opts        Options
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu       sync.RWMutex
	rootPath string
	stopped  bool
}

// New creates a watcher. It falls back to polling if fsnotify cannot be
// initialized or opts.ForcePolling is set.
func New(opts Options) *HybridWatcher {
	opts = opts.WithDefaults()
	h := &HybridWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			h.fsWatcher = fsw
			return h
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	h.pollWatcher = NewPollingWatcher(opts.PollInterval)
	return h
}

// Start watches path until ctx is cancelled or Stop is called.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", path)
	}

	h.mu.Lock()
	h.rootPath = absPath
	h.mu.Unlock()

	go h.forward(ctx)

	slog.Info("watch_started",
		slog.String("path", absPath),
		slog.String("mode", h.Mode()),
		slog.Duration("debounce", h.opts.Debounce))

	if h.fsWatcher != nil {
		return h.runFsnotify(ctx)
	}
	return h.runPolling(ctx)
}

func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotify(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				if h.opts.accepts(event.Path, event.IsDir) {
					h.debouncer.Add(event)
				}
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	err := h.pollWatcher.Start(ctx, h.rootPath)
	if ctx.Err() != nil {
		_ = h.Stop()
	}
	return err
}

func (h *HybridWatcher) handleFsnotify(event fsnotify.Event) {
	relPath := h.rel(event.Name)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir && !hidden(relPath) {
			// Files moved in together with a new directory produce no
			// events of their own.
			if err := h.addRecursive(event.Name); err != nil {
				h.emitError(err)
			}
			h.announceTree(event.Name)
			return
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	if !h.opts.accepts(relPath, isDir) {
		return
	}
	h.debouncer.Add(FileEvent{Path: relPath, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// announceTree reports every accepted file under dir as created.
func (h *HybridWatcher) announceTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		relPath := h.rel(path)
		if h.opts.accepts(relPath, false) {
			h.debouncer.Add(FileEvent{Path: relPath, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

func (h *HybridWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != h.rootPath && hidden(h.rel(path)) {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

func (h *HybridWatcher) rel(path string) string {
	relPath, err := filepath.Rel(h.rootPath, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(relPath)
}

func (h *HybridWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			h.emitEvents(events)
		}
	}
}

func (h *HybridWatcher) emitEvents(events []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.events <- events:
	default:
		slog.Warn("watch_buffer_full", slog.Int("batch_size", len(events)))
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops watching and closes Events and Errors. Safe to call more than once.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()

	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns debounced batches of accepted file events.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns non-fatal watcher errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// Mode returns "fsnotify" or "polling".
func (h *HybridWatcher) Mode() string {
	if h.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the absolute path being watched.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
