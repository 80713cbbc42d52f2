// Package watch turns raw change batches from the watching service into
// glob-scoped create, change, delete, and rename events.
//
// The package has three moving parts:
//
//   - Watcher: one glob pattern plus ignore flags; reconciles each incoming
//     batch and fires four broadcast streams.
//   - Registry: the process-wide set of live watchers, used to retroactively
//     wire new connections to existing watchers.
//   - Manager: owns one connection per workspace root, deduplicates
//     concurrent creation, and is the factory for watchers.
package watch

import (
	"context"
	"log"
	"sync"

	"github.com/edkit/filewatch/internal/notify"
)

// Watcher produces create, change, delete, and rename events for files
// matching one glob pattern across every attached workspace root.
//
// Watchers are created with Manager.CreateWatcher. A watcher may outlive or
// precede any particular connection; attachment is reconciled lazily in both
// directions.
type Watcher struct {
	pattern      string
	ignoreCreate bool
	ignoreChange bool
	ignoreDelete bool

	onCreate *Stream
	onChange *Stream
	onDelete *Stream
	onRename *RenameStream

	registry *Registry
	logger   *log.Logger

	mu       sync.Mutex
	subs     []notify.Subscription
	disposed bool
}

func newWatcher(pattern string, ignoreCreate, ignoreChange, ignoreDelete bool, registry *Registry, logger *log.Logger) *Watcher {
	return &Watcher{
		pattern:      pattern,
		ignoreCreate: ignoreCreate,
		ignoreChange: ignoreChange,
		ignoreDelete: ignoreDelete,
		onCreate:     newStream(),
		onChange:     newStream(),
		onDelete:     newStream(),
		onRename:     newRenameStream(),
		registry:     registry,
		logger:       logger,
	}
}

// Pattern returns the watcher's glob pattern.
func (w *Watcher) Pattern() string {
	return w.pattern
}

// OnCreate is the stream of created file locations.
func (w *Watcher) OnCreate() *Stream {
	return w.onCreate
}

// OnChange is the stream of changed file locations.
func (w *Watcher) OnChange() *Stream {
	return w.onChange
}

// OnDelete is the stream of deleted file locations.
func (w *Watcher) OnDelete() *Stream {
	return w.onDelete
}

// OnRename is the stream of inferred renames.
func (w *Watcher) OnRename() *RenameStream {
	return w.onRename
}

// attach registers a pattern-scoped subscription on conn. If the watcher is
// disposed before setup completes, the fresh subscription is torn down
// instead of kept.
func (w *Watcher) attach(ctx context.Context, conn notify.Connection) {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	sub, err := conn.Subscribe(ctx, w.pattern, w.handleBatch)
	if err != nil {
		w.logf("failed to subscribe pattern %s: %v", w.pattern, err)
		return
	}

	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		sub.Dispose()
		return
	}
	w.subs = append(w.subs, sub)
	w.mu.Unlock()
}

// handleBatch reconciles one batch and fires the resulting events, in batch
// record order, synchronously.
func (w *Watcher) handleBatch(batch notify.ChangeBatch) {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	r := reconciler{
		pattern:      w.pattern,
		ignoreCreate: w.ignoreCreate,
		ignoreChange: w.ignoreChange,
		ignoreDelete: w.ignoreDelete,
	}
	for _, ev := range r.reconcile(batch) {
		switch ev.kind {
		case eventCreate:
			w.onCreate.fire(ev.location)
		case eventChange:
			w.onChange.fire(ev.location)
		case eventDelete:
			w.onDelete.fire(ev.location)
		case eventRename:
			w.onRename.fire(RenameEvent{Old: ev.oldLocation, New: ev.location})
		}
	}
}

// Dispose terminates the watcher: it leaves the registry, releases its
// subscriptions, and disposes the four streams. After Dispose no further
// events are observable. Idempotent.
func (w *Watcher) Dispose() {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.disposed = true
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	w.registry.Remove(w)
	for _, sub := range subs {
		sub.Dispose()
	}
	w.onCreate.dispose()
	w.onChange.dispose()
	w.onDelete.dispose()
	w.onRename.dispose()
}

func (w *Watcher) logf(format string, args ...interface{}) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}
