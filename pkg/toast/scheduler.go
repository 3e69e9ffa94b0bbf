package toast

import "time"

// scheduleRemovalLocked arms a removal timer for the given toast id. At most
// one timer per id may be pending; scheduling again while one is armed is a
// no-op, which makes double dismissal (user click racing an auto-dismiss)
// harmless.
//
// Callers must hold s.mu.
func (s *Store) scheduleRemovalLocked(id string) {
	if s.closed {
		return
	}
	if _, ok := s.pending[id]; ok {
		return
	}
	s.pending[id] = time.AfterFunc(s.removeDelay, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.dispatch(action{kind: actionRemove, id: id, hasID: true})
	})
}

// cancelRemovalLocked retires the pending timer for an id, or every pending
// timer when hasID is false. Removal already happened (or is happening), so
// the timer has nothing left to do; stopping it just reclaims the handle.
//
// Callers must hold s.mu.
func (s *Store) cancelRemovalLocked(id string, hasID bool) {
	if !hasID {
		for pendingID, timer := range s.pending {
			timer.Stop()
			delete(s.pending, pendingID)
		}
		return
	}
	if timer, ok := s.pending[id]; ok {
		timer.Stop()
		delete(s.pending, id)
	}
}

// PendingRemovals reports how many removal timers are armed. Exposed for
// health reporting.
func (s *Store) PendingRemovals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
