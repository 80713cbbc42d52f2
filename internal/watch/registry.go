package watch

import "sync"

// Registry is the process-wide set of live watchers. The manager walks it
// whenever a new connection comes up so existing watchers attach
// retroactively. No ordering is guaranteed across watchers.
type Registry struct {
	mu       sync.Mutex
	watchers map[*Watcher]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{watchers: make(map[*Watcher]struct{})}
}

// Add registers a watcher.
func (r *Registry) Add(w *Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers[w] = struct{}{}
}

// Remove unregisters a watcher. Removing an absent watcher is a no-op.
func (r *Registry) Remove(w *Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, w)
}

// Contains reports whether w is registered.
func (r *Registry) Contains(w *Watcher) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watchers[w]
	return ok
}

// Len returns the number of registered watchers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// Each calls fn for every watcher registered at the time of the call.
// Iteration works over a snapshot, so a watcher disposed concurrently does
// not disturb it.
func (r *Registry) Each(fn func(*Watcher)) {
	r.mu.Lock()
	snapshot := make([]*Watcher, 0, len(r.watchers))
	for w := range r.watchers {
		snapshot = append(snapshot, w)
	}
	r.mu.Unlock()

	for _, w := range snapshot {
		fn(w)
	}
}
