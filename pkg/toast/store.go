package toast

import (
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultLimit is the maximum number of toasts visible at once.
	// The reference UI shows a single alert-style message; adding a new
	// toast evicts older ones from the visible list.
	DefaultLimit = 1

	// DefaultRemoveDelay is how long a dismissed toast stays in state
	// before it is purged. It is deliberately long: in practice only
	// explicit dismissal takes a toast out of the DOM, and removal just
	// reclaims the in-memory entry afterwards.
	DefaultRemoveDelay = 5 * time.Minute
)

// idBound caps the toast id counter. Ids cross the WebSocket feed as JSON,
// so the counter wraps before leaving the range a JSON number represents
// exactly.
const idBound = 1 << 53

// Store owns the toast state, the listener registry and the pending-removal
// timers. All methods are safe for concurrent use; dispatches are serialized
// so no two transitions interleave.
//
// Construct one Store per user-facing surface at application start and pass
// it by reference to whatever needs to raise or render notifications.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []listenerEntry
	nextToken uint64
	pending   map[string]*time.Timer
	idCounter uint64
	closed    bool

	limit       int
	removeDelay time.Duration
	metrics     *storeMetrics
}

type listenerEntry struct {
	token uint64
	fn    func(State)
}

// Option configures a Store.
type Option func(*Store)

// WithLimit sets the maximum number of visible toasts. Values below 1 are
// ignored.
func WithLimit(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.limit = n
		}
	}
}

// WithRemoveDelay sets how long a dismissed toast stays in state before it
// is removed.
func WithRemoveDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.removeDelay = d
		}
	}
}

// New creates a toast store.
func New(opts ...Option) *Store {
	s := &Store{
		limit:       DefaultLimit,
		removeDelay: DefaultRemoveDelay,
		pending:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close cancels all pending removal timers. The store remains usable, but
// callers should treat Close as the end of its lifecycle (typically on
// server shutdown).
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
}

// actionKind enumerates the four transitions the reducer understands.
type actionKind int

const (
	actionAdd actionKind = iota
	actionUpdate
	actionDismiss
	actionRemove
)

// action is a single state transition request. For dismiss and remove,
// hasID=false targets every current toast.
type action struct {
	kind  actionKind
	toast Toast // actionAdd
	patch Patch // actionUpdate
	id    string
	hasID bool
}

// reduce is the pure transition function. It never schedules timers or
// touches the registry; dispatch handles those around it.
func reduce(state State, a action, limit int) State {
	switch a.kind {
	case actionAdd:
		toasts := make([]Toast, 0, len(state.Toasts)+1)
		toasts = append(toasts, a.toast)
		toasts = append(toasts, state.Toasts...)
		if len(toasts) > limit {
			toasts = toasts[:limit]
		}
		return State{Toasts: toasts}

	case actionUpdate:
		toasts := make([]Toast, len(state.Toasts))
		for i, t := range state.Toasts {
			if t.ID == a.id {
				t = applyPatch(t, a.patch)
			}
			toasts[i] = t
		}
		return State{Toasts: toasts}

	case actionDismiss:
		toasts := make([]Toast, len(state.Toasts))
		for i, t := range state.Toasts {
			if !a.hasID || t.ID == a.id {
				t.Open = false
			}
			toasts[i] = t
		}
		return State{Toasts: toasts}

	case actionRemove:
		if !a.hasID {
			return State{}
		}
		toasts := make([]Toast, 0, len(state.Toasts))
		for _, t := range state.Toasts {
			if t.ID != a.id {
				toasts = append(toasts, t)
			}
		}
		return State{Toasts: toasts}
	}
	return state
}

func applyPatch(t Toast, p Patch) Toast {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Level != nil {
		t.Level = *p.Level
	}
	if p.Data != nil {
		t.Data = p.Data
	}
	return t
}

// dispatch applies an action and notifies subscribers with the resulting
// snapshot. The reduce happens under the store lock; listeners are called
// after it is released, from a copied slice, so a listener may re-enter
// the store (dismiss from a render callback, for example) without
// deadlocking.
func (s *Store) dispatch(a action) {
	s.mu.Lock()

	// Scheduling is a side effect of DISMISS that happens before the
	// pure merge, and REMOVE retires any timer still pending for the id.
	switch a.kind {
	case actionDismiss:
		if a.hasID {
			s.scheduleRemovalLocked(a.id)
		} else {
			for _, t := range s.state.Toasts {
				s.scheduleRemovalLocked(t.ID)
			}
		}
	case actionRemove:
		s.cancelRemovalLocked(a.id, a.hasID)
	}

	before := len(s.state.Toasts)
	s.state = reduce(s.state, a, s.limit)
	s.metrics.observe(a, before, len(s.state.Toasts))

	snapshot := s.snapshotLocked()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(snapshot)
	}
}

// snapshotLocked copies the toast slice so subscribers cannot observe later
// mutations. Toast values are copied shallowly; Data maps are opaque shared
// payloads.
func (s *Store) snapshotLocked() State {
	toasts := make([]Toast, len(s.state.Toasts))
	copy(toasts, s.state.Toasts)
	return State{Toasts: toasts}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener that receives every new state snapshot,
// synchronously, in registration order. The returned function removes the
// listener; calling it more than once is a no-op.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextToken++
	token := s.nextToken
	s.listeners = append(s.listeners, listenerEntry{token: token, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.token == token {
				// Splice rather than swap: notification order is
				// registration order.
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Toast creates a toast from props and makes it visible, evicting the
// oldest entries beyond the store limit. The returned handle updates or
// dismisses exactly this toast.
func (s *Store) Toast(p Props) Handle {
	id := s.nextID()

	t := Toast{
		ID:          id,
		Title:       p.Title,
		Description: p.Description,
		Level:       p.Level,
		Data:        p.Data,
		Open:        true,
	}

	userChange := p.OnOpenChange
	t.OnOpenChange = func(open bool) {
		if !open {
			s.Dismiss(id)
		}
		if userChange != nil {
			userChange(open)
		}
	}

	s.dispatch(action{kind: actionAdd, toast: t})
	return Handle{ID: id, store: s}
}

// Dismiss closes the toast with the given id and schedules its removal.
// Unknown ids are ignored.
func (s *Store) Dismiss(id string) {
	s.dispatch(action{kind: actionDismiss, id: id, hasID: true})
}

// DismissAll closes every visible toast and schedules each for removal.
func (s *Store) DismissAll() {
	s.dispatch(action{kind: actionDismiss})
}

// Remove purges the toast with the given id immediately, without waiting
// for the removal delay. Unknown ids are ignored.
func (s *Store) Remove(id string) {
	s.dispatch(action{kind: actionRemove, id: id, hasID: true})
}

// RemoveAll purges every toast immediately.
func (s *Store) RemoveAll() {
	s.dispatch(action{kind: actionRemove})
}

func (s *Store) update(id string, p Patch) {
	s.dispatch(action{kind: actionUpdate, id: id, hasID: true, patch: p})
}

// nextID returns a fresh toast id from a wrapping monotonic counter.
func (s *Store) nextID() string {
	s.mu.Lock()
	s.idCounter = (s.idCounter + 1) % idBound
	id := s.idCounter
	s.mu.Unlock()
	return strconv.FormatUint(id, 10)
}
