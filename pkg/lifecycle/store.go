package lifecycle

import "sync"

// Listener receives the state produced by each dispatch.
type Listener func(State)

// Store holds a single State and notifies subscribers after every dispatch.
// Listeners run on the dispatching goroutine and must not call Dispatch themselves.
type Store struct {
	dispatchMu sync.Mutex

	mu        sync.RWMutex
	state     State
	nextID    uint64
	listeners map[uint64]Listener
	order     []uint64
}

// NewStore returns a store in the idle state.
func NewStore() *Store {
	return &Store{listeners: make(map[uint64]Listener)}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies sig and notifies every subscriber, in subscription order, with the new state.
// Dispatches are serialized so subscribers see transitions in the order they were applied.
func (s *Store) Dispatch(sig Signal) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	next := Reduce(s.state, sig)
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

// Subscribe registers fn and returns a function that removes it. The returned function is
// safe to call more than once.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = make(map[uint64]Listener)
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

func (s *Store) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listeners, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// snapshotListeners copies the listener list; callers hold s.mu.
func (s *Store) snapshotListeners() []Listener {
	if len(s.order) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.listeners[id])
	}
	return out
}
