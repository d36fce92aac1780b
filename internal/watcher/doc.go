// Package watcher reports changes to a document folder.
//
// fsnotify is used where available, with periodic polling as a fallback
// for file systems that do not deliver events (network mounts, some
// container volumes). Raw events are filtered to the document types the
// caller accepts, hidden paths are skipped, and bursts are debounced into
// batches so an editor save or a bulk copy triggers one reaction.
//
// Usage:
//
//	opts := watcher.DefaultOptions()
//	opts.Filter = uploads.Allowed
//	err := watcher.Run(ctx, dir, opts, func(ctx context.Context, events []watcher.FileEvent) error {
//	    _, err := ingester.Rebuild(ctx, dir)
//	    return err
//	})
package watcher
