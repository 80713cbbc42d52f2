package watch

import "testing"

// TestRegistryAddRemove verifies basic membership bookkeeping.
func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	w := newWatcher("*", false, false, false, r, nil)

	r.Add(w)
	if !r.Contains(w) || r.Len() != 1 {
		t.Fatal("Watcher should be registered")
	}

	r.Remove(w)
	if r.Contains(w) || r.Len() != 0 {
		t.Fatal("Watcher should be gone")
	}

	// Removing again is a no-op.
	r.Remove(w)
}

// TestRegistryEachSnapshot verifies that a watcher disposed during iteration
// does not disturb the walk.
func TestRegistryEachSnapshot(t *testing.T) {
	r := NewRegistry()
	w1 := newWatcher("*", false, false, false, r, nil)
	w2 := newWatcher("*", false, false, false, r, nil)
	r.Add(w1)
	r.Add(w2)

	visited := 0
	r.Each(func(w *Watcher) {
		visited++
		// Disposing removes the other watcher from the registry mid-walk.
		if w == w1 {
			w2.Dispose()
		} else {
			w1.Dispose()
		}
	})

	if visited != 2 {
		t.Errorf("Expected to visit 2 watchers, visited %d", visited)
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}
