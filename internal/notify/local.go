package notify

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LocalConfig holds configuration for the local filesystem service.
type LocalConfig struct {
	// Window is how long raw events are coalesced before they are
	// delivered as one batch. Rename halves that land inside the same
	// window end up in the same batch and can be paired downstream.
	Window time.Duration

	// Logger for non-fatal backend errors. May be nil.
	Logger *log.Logger
}

// DefaultLocalConfig returns sensible defaults.
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Window: 50 * time.Millisecond,
	}
}

// LocalService implements Service on top of the local filesystem using
// fsnotify. Each connection owns one recursive watch rooted at a workspace
// directory and coalesces raw events into ChangeBatches.
type LocalService struct {
	config *LocalConfig
}

// NewLocalService creates a local filesystem watching service with defaults.
func NewLocalService() *LocalService {
	return NewLocalServiceWithConfig(nil)
}

// NewLocalServiceWithConfig creates a local service with custom configuration.
func NewLocalServiceWithConfig(config *LocalConfig) *LocalService {
	if config == nil {
		config = DefaultLocalConfig()
	}
	if config.Window <= 0 {
		config.Window = DefaultLocalConfig().Window
	}
	return &LocalService{config: config}
}

// CreateClient opens a recursive watch over root and returns the connection.
// The root must exist and be a directory.
func (s *LocalService) CreateClient(ctx context.Context, root string) (Connection, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	conn := &localConn{
		root:    absRoot,
		watcher: watcher,
		window:  s.config.Window,
		logger:  s.config.Logger,
		entries: make(map[string]entryStat),
		done:    make(chan struct{}),
	}

	if err := conn.addTree(absRoot); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absRoot, err)
	}

	conn.wg.Add(1)
	go conn.run()

	return conn, nil
}

// entryStat is the last-known fingerprint of an entry. It lets a vanished
// record carry the size and mtime the entry had before it disappeared, which
// is what rename pairing keys on.
type entryStat struct {
	typ       EntryType
	size      uint64
	modTimeMs uint64
}

type localSub struct {
	pattern string
	onBatch func(ChangeBatch)
	conn    *localConn

	mu       sync.Mutex
	disposed bool
}

// Dispose cancels the subscription.
func (sub *localSub) Dispose() {
	sub.mu.Lock()
	if sub.disposed {
		sub.mu.Unlock()
		return
	}
	sub.disposed = true
	sub.mu.Unlock()

	sub.conn.removeSub(sub)
}

func (sub *localSub) deliver(batch ChangeBatch) {
	sub.mu.Lock()
	disposed := sub.disposed
	sub.mu.Unlock()
	if disposed {
		return
	}
	sub.onBatch(batch)
}

// localConn is one live recursive watch over a workspace root.
type localConn struct {
	root    string
	watcher *fsnotify.Watcher
	window  time.Duration
	logger  *log.Logger

	mu       sync.Mutex
	subs     []*localSub
	pending  []ChangeRecord
	queued   map[string]int // relative name -> index into pending
	entries  map[string]entryStat
	disposed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Subscribe registers a batch callback. The local backend delivers every
// batch to every subscriber; pattern filtering happens in the consumer.
func (c *localConn) Subscribe(ctx context.Context, pattern string, onBatch func(ChangeBatch)) (Subscription, error) {
	if onBatch == nil {
		return nil, fmt.Errorf("onBatch cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, fmt.Errorf("connection for %s is disposed", c.root)
	}

	sub := &localSub{pattern: pattern, onBatch: onBatch, conn: c}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Dispose shuts the watch down and stops batch delivery. Idempotent.
func (c *localConn) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.subs = nil
	c.mu.Unlock()

	close(c.done)
	if err := c.watcher.Close(); err != nil {
		c.logf("error closing watcher for %s: %v", c.root, err)
	}
	c.wg.Wait()
}

// addTree adds dir and every subdirectory to the fsnotify watcher and primes
// the fingerprint cache for the files it finds.
func (c *localConn) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish mid-walk; skip rather than fail.
			return nil
		}
		if d.IsDir() {
			if err := c.watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if info, err := d.Info(); err == nil {
			c.mu.Lock()
			c.entries[c.rel(path)] = statOf(info)
			c.mu.Unlock()
		}
		return nil
	})
}

func (c *localConn) rel(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func statOf(info fs.FileInfo) entryStat {
	typ := EntryOther
	switch {
	case info.Mode().IsRegular():
		typ = EntryFile
	case info.IsDir():
		typ = EntryDir
	}
	return entryStat{
		typ:       typ,
		size:      uint64(info.Size()),
		modTimeMs: uint64(info.ModTime().UnixMilli()),
	}
}

// run is the event loop: converts raw fsnotify events into pending records
// and flushes them as one batch per coalescing window.
func (c *localConn) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.window)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logf("watch error for %s: %v", c.root, err)

		case <-ticker.C:
			c.flush()
		}
	}
}

// handleEvent converts one fsnotify event into a pending ChangeRecord.
// Later events for the same entry within a window overwrite earlier ones,
// keeping the original slot so record order follows first observation.
func (c *localConn) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	name := c.rel(event.Name)
	isNew := event.Has(fsnotify.Create)

	info, statErr := os.Stat(event.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}

	var rec ChangeRecord
	if statErr == nil {
		st := statOf(info)
		c.entries[name] = st
		rec = ChangeRecord{
			RelativeName: name,
			Type:         st.typ,
			Exists:       true,
			IsNew:        isNew,
			Size:         st.size,
			ModTimeMs:    st.modTimeMs,
		}
		if info.IsDir() && isNew {
			// New directories must be watched for the tree to stay recursive.
			if err := c.watcher.Add(event.Name); err != nil {
				c.logf("failed to watch new directory %s: %v", event.Name, err)
			}
		}
	} else {
		last, known := c.entries[name]
		delete(c.entries, name)
		if !known {
			last.typ = EntryFile
		}
		rec = ChangeRecord{
			RelativeName: name,
			Type:         last.typ,
			Exists:       false,
			Size:         last.size,
			ModTimeMs:    last.modTimeMs,
		}
	}

	if c.queued == nil {
		c.queued = make(map[string]int)
	}
	if idx, ok := c.queued[name]; ok {
		// Preserve the IsNew mark when a create is followed by writes in
		// the same window.
		if c.pending[idx].IsNew && rec.Exists {
			rec.IsNew = true
		}
		c.pending[idx] = rec
		return
	}
	c.queued[name] = len(c.pending)
	c.pending = append(c.pending, rec)
}

// flush delivers the pending records as one batch, synchronously, to every
// subscriber in registration order.
func (c *localConn) flush() {
	c.mu.Lock()
	if len(c.pending) == 0 || c.disposed {
		c.mu.Unlock()
		return
	}
	records := c.pending
	c.pending = nil
	c.queued = nil
	subs := make([]*localSub, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	// Vanished records first, then appeared, each side in observation
	// order. The watching service reports disappearances ahead of the
	// matching appearances, which is what downstream pairing expects.
	sort.SliceStable(records, func(i, j int) bool {
		return !records[i].Exists && records[j].Exists
	})

	batch := ChangeBatch{Root: c.root, Records: records}
	for _, sub := range subs {
		sub.deliver(batch)
	}
}

func (c *localConn) removeSub(sub *localSub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *localConn) logf(format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
