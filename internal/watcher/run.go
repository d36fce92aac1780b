package watcher

import (
	"context"
	"errors"
	"log/slog"
)

// Handler reacts to a debounced batch of changes.
type Handler func(ctx context.Context, events []FileEvent) error

// Run watches dir and calls handle for every batch until ctx is cancelled.
// Handler errors are logged and watching continues. Batches arriving while
// handle runs are buffered, so a slow rebuild is followed by at most a few
// more rather than one per file.
func Run(ctx context.Context, dir string, opts Options, handle Handler) error {
	w := New(opts)
	defer func() { _ = w.Stop() }()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, dir) }()

	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			slog.Info("watch_changes_detected",
				slog.String("path", dir),
				slog.Int("files", len(events)))
			if err := handle(ctx, events); err != nil {
				slog.Warn("watch_handler_failed",
					slog.String("path", dir),
					slog.String("error", err.Error()))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
