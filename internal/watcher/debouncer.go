package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer collects events until the folder has been quiet for the
// window, then emits them as one batch sorted by path. Repeated events for
// a path are merged:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - DELETE then CREATE becomes MODIFY (the file was replaced)
//   - otherwise the latest operation wins
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]pendingEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]pendingEvent),
		output:  make(chan []FileEvent, 4),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		if merged, keep := merge(prev, event); keep {
			d.pending[event.Path] = pendingEvent{event: merged, firstOp: merged.Operation}
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// merge combines a pending event with a newer one for the same path.
// keep is false when the two cancel out.
func merge(prev pendingEvent, next FileEvent) (merged FileEvent, keep bool) {
	switch {
	case prev.firstOp == OpCreate && next.Operation == OpModify:
		prev.event.Timestamp = next.Timestamp
		return prev.event, true
	case prev.firstOp == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case prev.firstOp == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return next, true
	default:
		return next, true
	}
}

// Pending returns the number of paths waiting to be flushed.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	d.pending = make(map[string]pendingEvent)

	select {
	case d.output <- events:
	default:
		slog.Warn("watch_batch_dropped", slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
