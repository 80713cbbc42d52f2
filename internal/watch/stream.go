package watch

import "sync"

// RenameEvent pairs the old and new absolute locations of a renamed file.
type RenameEvent struct {
	Old string
	New string
}

// Stream is a broadcast event stream delivering absolute file locations.
// Every subscriber receives every event, in emission order. Delivery is
// synchronous: Fire does not return until all subscribers have run.
type Stream struct {
	mu       sync.Mutex
	handlers []*streamHandle
	disposed bool
}

type streamHandle struct {
	fn      func(string)
	removed bool
}

func newStream() *Stream {
	return &Stream{}
}

// Subscribe registers fn and returns a function that cancels the
// subscription. Subscribing to a disposed stream is a no-op.
func (s *Stream) Subscribe(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || fn == nil {
		return func() {}
	}
	handle := &streamHandle{fn: fn}
	s.handlers = append(s.handlers, handle)
	return func() {
		s.mu.Lock()
		handle.removed = true
		s.mu.Unlock()
	}
}

// fire delivers location to every live subscriber in subscription order.
func (s *Stream) fire(location string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	snapshot := make([]*streamHandle, len(s.handlers))
	copy(snapshot, s.handlers)
	s.mu.Unlock()

	// Invoked outside the lock so handlers may subscribe or dispose
	// reentrantly.
	for _, handle := range snapshot {
		s.mu.Lock()
		removed := handle.removed
		s.mu.Unlock()
		if !removed {
			handle.fn(location)
		}
	}
}

// dispose terminates the stream; no further events are observable.
func (s *Stream) dispose() {
	s.mu.Lock()
	s.disposed = true
	s.handlers = nil
	s.mu.Unlock()
}

// RenameStream is a broadcast event stream delivering rename pairs. It has
// the same delivery semantics as Stream.
type RenameStream struct {
	mu       sync.Mutex
	handlers []*renameHandle
	disposed bool
}

type renameHandle struct {
	fn      func(RenameEvent)
	removed bool
}

func newRenameStream() *RenameStream {
	return &RenameStream{}
}

// Subscribe registers fn and returns a function that cancels the
// subscription. Subscribing to a disposed stream is a no-op.
func (s *RenameStream) Subscribe(fn func(RenameEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || fn == nil {
		return func() {}
	}
	handle := &renameHandle{fn: fn}
	s.handlers = append(s.handlers, handle)
	return func() {
		s.mu.Lock()
		handle.removed = true
		s.mu.Unlock()
	}
}

func (s *RenameStream) fire(event RenameEvent) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	snapshot := make([]*renameHandle, len(s.handlers))
	copy(snapshot, s.handlers)
	s.mu.Unlock()

	for _, handle := range snapshot {
		s.mu.Lock()
		removed := handle.removed
		s.mu.Unlock()
		if !removed {
			handle.fn(event)
		}
	}
}

func (s *RenameStream) dispose() {
	s.mu.Lock()
	s.disposed = true
	s.handlers = nil
	s.mu.Unlock()
}
