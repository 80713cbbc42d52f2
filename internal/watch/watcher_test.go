package watch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/edkit/filewatch/internal/notify"
)

// collector subscribes to all four streams and records emissions in order.
type collector struct {
	creates []string
	changes []string
	deletes []string
	renames []RenameEvent
}

func collect(w *Watcher) *collector {
	c := &collector{}
	w.OnCreate().Subscribe(func(p string) { c.creates = append(c.creates, p) })
	w.OnChange().Subscribe(func(p string) { c.changes = append(c.changes, p) })
	w.OnDelete().Subscribe(func(p string) { c.deletes = append(c.deletes, p) })
	w.OnRename().Subscribe(func(ev RenameEvent) { c.renames = append(c.renames, ev) })
	return c
}

func (c *collector) total() int {
	return len(c.creates) + len(c.changes) + len(c.deletes) + len(c.renames)
}

// TestWatcherDeliversBatchEvents verifies the full path from a delivered
// batch to fired streams.
func TestWatcherDeliversBatchEvents(t *testing.T) {
	service := newFakeService()
	m := newTestManager(service)
	defer m.Dispose()

	m.ensureConnection(context.Background(), "/ws/a")
	w, err := m.CreateWatcher(context.Background(), "*.txt", false, false, false)
	if err != nil {
		t.Fatalf("CreateWatcher() failed: %v", err)
	}
	c := collect(w)

	conn := service.conn("/ws/a")
	conn.deliver(notify.ChangeBatch{Root: "/ws/a", Records: []notify.ChangeRecord{
		fileNew("a.txt", 1, 10),
		fileChanged("b.txt", 2, 20),
		fileGone("c.txt", 3, 30),
		fileNew("ignored.md", 4, 40),
	}})

	if len(c.creates) != 1 || len(c.changes) != 1 || len(c.deletes) != 1 {
		t.Errorf("Unexpected events: %+v", c)
	}
	if len(c.renames) != 0 {
		t.Errorf("Unexpected renames: %v", c.renames)
	}
}

// TestWatcherIgnoreDelete verifies that a watcher constructed with the
// delete flag never fires OnDelete while rename inference still works.
func TestWatcherIgnoreDelete(t *testing.T) {
	service := newFakeService()
	m := newTestManager(service)
	defer m.Dispose()

	m.ensureConnection(context.Background(), "/ws/a")
	w, err := m.CreateWatcher(context.Background(), "*.txt", false, false, true)
	if err != nil {
		t.Fatalf("CreateWatcher() failed: %v", err)
	}
	c := collect(w)

	service.conn("/ws/a").deliver(notify.ChangeBatch{Root: "/ws/a", Records: []notify.ChangeRecord{
		fileGone("a.txt", 10, 100),
		fileNew("b.txt", 10, 200),
	}})

	if len(c.deletes) != 0 {
		t.Errorf("OnDelete fired despite ignore flag: %v", c.deletes)
	}
	if len(c.creates) != 1 {
		t.Errorf("Expected create, got %v", c.creates)
	}
	if len(c.renames) != 1 {
		t.Errorf("Rename inference must be unaffected by ignore flags, got %v", c.renames)
	}
}

// TestWatcherMultipleSubscribers verifies that every subscriber on a stream
// receives every event, in emission order.
func TestWatcherMultipleSubscribers(t *testing.T) {
	service := newFakeService()
	m := newTestManager(service)
	defer m.Dispose()

	m.ensureConnection(context.Background(), "/ws/a")
	w, err := m.CreateWatcher(context.Background(), "*", false, false, false)
	if err != nil {
		t.Fatalf("CreateWatcher() failed: %v", err)
	}

	var first, second []string
	w.OnCreate().Subscribe(func(p string) { first = append(first, p) })
	w.OnCreate().Subscribe(func(p string) { second = append(second, p) })

	conn := service.conn("/ws/a")
	conn.deliver(notify.ChangeBatch{Root: "/ws/a", Records: []notify.ChangeRecord{
		fileNew("one", 1, 1),
	}})
	conn.deliver(notify.ChangeBatch{Root: "/ws/a", Records: []notify.ChangeRecord{
		fileNew("two", 2, 2),
	}})

	wantOne := filepath.Join("/ws/a", "one")
	wantTwo := filepath.Join("/ws/a", "two")
	for _, got := range [][]string{first, second} {
		if len(got) != 2 || got[0] != wantOne || got[1] != wantTwo {
			t.Errorf("Subscriber saw %v, want [%s %s]", got, wantOne, wantTwo)
		}
	}
}

// TestWatcherDisposeSilences verifies that a disposed watcher fires nothing,
// even when its orphaned subscription still receives batches, and that it
// leaves the registry.
func TestWatcherDisposeSilences(t *testing.T) {
	service := newFakeService()
	m := newTestManager(service)
	defer m.Dispose()

	m.ensureConnection(context.Background(), "/ws/a")
	w, err := m.CreateWatcher(context.Background(), "*", false, false, false)
	if err != nil {
		t.Fatalf("CreateWatcher() failed: %v", err)
	}
	c := collect(w)

	w.Dispose()

	if m.Registry().Contains(w) {
		t.Error("Disposed watcher must be absent from the registry")
	}

	conn := service.conn("/ws/a")
	conn.mu.Lock()
	entries := make([]*fakeSubEntry, len(conn.subs))
	copy(entries, conn.subs)
	conn.mu.Unlock()

	// Feed the raw callback directly, bypassing the disposed subscription.
	for _, entry := range entries {
		entry.onBatch(notify.ChangeBatch{Root: "/ws/a", Records: []notify.ChangeRecord{
			fileNew("late", 1, 1),
			fileGone("gone", 1, 1),
		}})
	}

	if c.total() != 0 {
		t.Errorf("Disposed watcher fired events: %+v", c)
	}
}

// TestWatcherDisposeReleasesSubscriptions verifies that disposal disposes
// the watcher's subscriptions without touching other watchers on the same
// connection.
func TestWatcherDisposeReleasesSubscriptions(t *testing.T) {
	service := newFakeService()
	m := newTestManager(service)
	defer m.Dispose()

	m.ensureConnection(context.Background(), "/ws/a")
	w1, err := m.CreateWatcher(context.Background(), "*.a", false, false, false)
	if err != nil {
		t.Fatalf("CreateWatcher() failed: %v", err)
	}
	w2, err := m.CreateWatcher(context.Background(), "*.b", false, false, false)
	if err != nil {
		t.Fatalf("CreateWatcher() failed: %v", err)
	}

	w1.Dispose()

	conn := service.conn("/ws/a")
	conn.mu.Lock()
	defer conn.mu.Unlock()
	for _, entry := range conn.subs {
		switch entry.pattern {
		case "*.a":
			if !entry.sub.isDisposed() {
				t.Error("Disposed watcher's subscription must be disposed")
			}
		case "*.b":
			if entry.sub.isDisposed() {
				t.Error("Other watcher's subscription must stay live")
			}
		}
	}
	_ = w2
}

// TestWatcherDisposedDuringAttach verifies that a subscription completing
// after the watcher was disposed is torn down instead of kept.
func TestWatcherDisposedDuringAttach(t *testing.T) {
	registry := NewRegistry()
	w := newWatcher("*", false, false, false, registry, nil)
	registry.Add(w)

	conn := &fakeConn{root: "/ws/a"}
	conn.subscribeHook = func() { w.Dispose() }

	w.attach(context.Background(), conn)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.subs) != 1 {
		t.Fatalf("Expected the subscription to have been created, got %d", len(conn.subs))
	}
	if !conn.subs[0].sub.isDisposed() {
		t.Error("Subscription set up after disposal must be torn down")
	}
}

// TestWatcherAttachSubscribeFailure verifies that a failed subscription
// setup leaves the watcher silent for that connection, without error
// propagation.
func TestWatcherAttachSubscribeFailure(t *testing.T) {
	registry := NewRegistry()
	w := newWatcher("*", false, false, false, registry, nil)
	registry.Add(w)
	defer w.Dispose()

	conn := &fakeConn{root: "/ws/a", subscribeErr: errors.New("subscription refused")}
	w.attach(context.Background(), conn)

	if conn.subCount() != 0 {
		t.Errorf("Expected no subscription, got %d", conn.subCount())
	}
}

// TestWatcherDisposeIdempotent verifies that double disposal is safe.
func TestWatcherDisposeIdempotent(t *testing.T) {
	registry := NewRegistry()
	w := newWatcher("*", false, false, false, registry, nil)
	registry.Add(w)

	w.Dispose()
	w.Dispose()

	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Len())
	}
}
