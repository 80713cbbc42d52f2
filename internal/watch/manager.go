package watch

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/edkit/filewatch/internal/notify"
	"github.com/edkit/filewatch/internal/roots"
)

// ErrDisposed is returned for operations on a disposed manager.
var ErrDisposed = errors.New("watch manager is disposed")

// Config holds configuration for the manager.
type Config struct {
	// Logger for non-fatal errors (failed connections, failed
	// subscriptions). May be nil, in which case errors are dropped.
	Logger *log.Logger
}

// Manager owns the mapping from workspace root to watching-service
// connection. It deduplicates concurrent connection creation, reacts to root
// addition and removal, and is the factory for watchers.
//
// At most one live connection exists per root. A root whose connection
// creation failed stays unwatched for the process lifetime; there is no
// retry.
type Manager struct {
	service  notify.Service
	registry *Registry
	logger   *log.Logger

	mu        sync.Mutex
	conns     map[string]notify.Connection
	creating  map[string]struct{}
	waiters   map[string][]chan struct{}
	stopRoots func()
	disposed  bool
}

// NewManager creates a manager over the given watching service. The registry
// holds the live watchers; passing nil creates a fresh one.
func NewManager(service notify.Service, registry *Registry, config *Config) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	var logger *log.Logger
	if config != nil {
		logger = config.Logger
	}
	return &Manager{
		service:  service,
		registry: registry,
		logger:   logger,
		conns:    make(map[string]notify.Connection),
		creating: make(map[string]struct{}),
		waiters:  make(map[string][]chan struct{}),
	}
}

// Registry returns the watcher registry the manager attaches through.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Attach connects the manager to a root tracker: every current root gets a
// connection, and root additions and removals are followed for the rest of
// the manager's life.
func (m *Manager) Attach(ctx context.Context, tracker roots.Tracker) {
	for _, root := range tracker.Roots() {
		go m.ensureConnection(ctx, root)
	}

	stop := tracker.Subscribe(func(change roots.Change) {
		for _, root := range change.Added {
			go m.ensureConnection(ctx, root)
		}
		for _, root := range change.Removed {
			m.dropConnection(root)
		}
	})

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		stop()
		return
	}
	m.stopRoots = stop
	m.mu.Unlock()
}

// ensureConnection creates the connection for root unless one already exists
// or is being created. Idempotent: concurrent calls for the same root
// coalesce into a single in-flight creation via the pending set.
func (m *Manager) ensureConnection(ctx context.Context, root string) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	if _, ok := m.conns[root]; ok {
		m.mu.Unlock()
		return
	}
	if _, ok := m.creating[root]; ok {
		m.mu.Unlock()
		return
	}
	m.creating[root] = struct{}{}
	m.mu.Unlock()

	conn, err := m.service.CreateClient(ctx, root)

	m.mu.Lock()
	delete(m.creating, root)
	if err != nil {
		m.mu.Unlock()
		m.logf("failed to create watch connection for %s: %v", root, err)
		return
	}
	if m.disposed {
		// Disposal raced the in-flight creation; the result is discarded,
		// never stored or attached.
		m.mu.Unlock()
		conn.Dispose()
		return
	}
	m.conns[root] = conn
	waiters := m.waiters[root]
	delete(m.waiters, root)
	m.mu.Unlock()

	m.registry.Each(func(w *Watcher) {
		w.attach(ctx, conn)
	})
	for _, ch := range waiters {
		close(ch)
	}
}

// WaitForConnection blocks until the connection for root is ready, the
// manager is disposed, or ctx is done.
//
// Known gap: a root whose connection creation failed never signals, so a
// caller waiting on it blocks until ctx expires. Callers must bound the wait
// with ctx.
func (m *Manager) WaitForConnection(ctx context.Context, root string) error {
	m.mu.Lock()
	if _, ok := m.conns[root]; ok {
		m.mu.Unlock()
		return nil
	}
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	ch := make(chan struct{})
	m.waiters[root] = append(m.waiters[root], ch)
	m.mu.Unlock()

	select {
	case <-ch:
		// Woken either by the connection becoming ready or by disposal.
		m.mu.Lock()
		_, ok := m.conns[root]
		m.mu.Unlock()
		if !ok {
			return ErrDisposed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateWatcher constructs a watcher for pattern, registers it, and attaches
// it to every currently-live connection. The ignore flags suppress the
// corresponding per-record events; rename inference is unaffected.
func (m *Manager) CreateWatcher(ctx context.Context, pattern string, ignoreCreate, ignoreChange, ignoreDelete bool) (*Watcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.New("invalid glob pattern: " + pattern)
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	conns := make([]notify.Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	w := newWatcher(pattern, ignoreCreate, ignoreChange, ignoreDelete, m.registry, m.logger)
	m.registry.Add(w)
	for _, conn := range conns {
		w.attach(ctx, conn)
	}
	return w, nil
}

// dropConnection disposes and forgets the connection for a removed root.
func (m *Manager) dropConnection(root string) {
	m.mu.Lock()
	conn := m.conns[root]
	delete(m.conns, root)
	m.mu.Unlock()

	if conn != nil {
		conn.Dispose()
	}
}

// Dispose terminates the manager: pending-creation bookkeeping is cleared,
// every stored connection is disposed, the root subscription is released,
// and blocked waiters are woken. Idempotent.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.creating = make(map[string]struct{})
	conns := m.conns
	m.conns = make(map[string]notify.Connection)
	waiters := m.waiters
	m.waiters = make(map[string][]chan struct{})
	stop := m.stopRoots
	m.stopRoots = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, conn := range conns {
		conn.Dispose()
	}
	for _, chans := range waiters {
		for _, ch := range chans {
			close(ch)
		}
	}
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
