package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation is the kind of change observed on a file.
type Operation int

const (
	// OpCreate indicates a new file.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file was removed.
	OpDelete
	// OpRename indicates a file was moved away from its path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a single observed change.
type FileEvent struct {
	// Path is relative to the watched folder, slash-separated.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a watcher.
type Options struct {
	// Debounce is how long the folder must be quiet before a batch is
	// emitted. Default: 2s
	Debounce time.Duration

	// PollInterval is the scan interval when falling back to polling.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 16
	EventBufferSize int

	// Filter reports whether a file name is relevant. Nil accepts all files.
	Filter func(name string) bool

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        2 * time.Second,
		PollInterval:    5 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// accepts reports whether an event on relPath should be reported.
// Directories are never reported; hidden paths are always skipped.
func (o Options) accepts(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." || isDir || hidden(relPath) {
		return false
	}
	if o.Filter == nil {
		return true
	}
	return o.Filter(filepath.Base(relPath))
}

func hidden(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
