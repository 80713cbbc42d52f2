// Package roots tracks the set of workspace roots being watched.
package roots

import (
	"path/filepath"
	"sync"
)

// Change describes a delta to the workspace root set.
type Change struct {
	Added   []string
	Removed []string
}

// Tracker exposes the current workspace roots and notifies subscribers when
// roots are added or removed.
type Tracker interface {
	// Roots returns the current root list as absolute paths.
	Roots() []string
	// Subscribe registers fn for future changes and returns a function
	// that cancels the subscription.
	Subscribe(fn func(Change)) func()
}

// StaticTracker is a Tracker over a fixed root list. It never changes.
type StaticTracker struct {
	roots []string
}

// Static creates a tracker over a fixed set of roots. Relative paths are
// made absolute.
func Static(rootList ...string) *StaticTracker {
	return &StaticTracker{roots: absAll(rootList)}
}

// Roots returns the fixed root list.
func (t *StaticTracker) Roots() []string {
	out := make([]string, len(t.roots))
	copy(out, t.roots)
	return out
}

// Subscribe is a no-op; a static tracker never fires changes.
func (t *StaticTracker) Subscribe(fn func(Change)) func() {
	return func() {}
}

func absAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			out = append(out, abs)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// subscriberList is shared change-notification plumbing for mutable trackers.
type subscriberList struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Change)
}

func (l *subscriberList) add(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs == nil {
		l.subs = make(map[int]func(Change))
	}
	id := l.next
	l.next++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

func (l *subscriberList) notify(change Change) {
	l.mu.Lock()
	snapshot := make([]func(Change), 0, len(l.subs))
	for _, fn := range l.subs {
		snapshot = append(snapshot, fn)
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(change)
	}
}

// diff computes the added and removed roots between two lists.
func diff(old, new []string) Change {
	oldSet := make(map[string]struct{}, len(old))
	for _, r := range old {
		oldSet[r] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(new))
	for _, r := range new {
		newSet[r] = struct{}{}
	}

	var change Change
	for _, r := range new {
		if _, ok := oldSet[r]; !ok {
			change.Added = append(change.Added, r)
		}
	}
	for _, r := range old {
		if _, ok := newSet[r]; !ok {
			change.Removed = append(change.Removed, r)
		}
	}
	return change
}
