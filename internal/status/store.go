package status

import (
	"sync"

	"github.com/matheus3301/wpplus/internal/bus"
)

// Store holds the single process-wide connection state. It is safe for
// concurrent use; reads never block on I/O.
type Store struct {
	mu    sync.RWMutex
	state State
	bus   *bus.Bus
}

// NewStore creates a store in the disconnected state. b may be nil.
func NewStore(b *bus.Bus) *Store {
	return &Store{
		state: State{Status: Disconnected},
		bus:   b,
	}
}

// Status returns the current status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

// QR returns the current QR data URL, or "" when none is shown.
func (s *Store) QR() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.QR
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetStatus sets the status. Moving to Ready clears the QR.
func (s *Store) SetStatus(st Status) {
	s.update(func(cur State) State {
		cur.Status = st
		if st == Ready {
			cur.QR, cur.Code = "", ""
		}
		return cur
	})
}

// SetQR replaces the QR. A non-empty QR is only accepted while connecting;
// clearing is always allowed.
func (s *Store) SetQR(qr, code string) {
	s.update(func(cur State) State {
		if qr != "" && cur.Status != Connecting {
			return cur
		}
		cur.QR, cur.Code = qr, code
		if qr == "" {
			cur.Code = ""
		}
		return cur
	})
}

// Apply feeds ev through the state machine and returns the resulting state.
func (s *Store) Apply(ev Event) State {
	return s.update(func(cur State) State {
		return Apply(cur, ev)
	})
}

func (s *Store) update(fn func(State) State) State {
	s.mu.Lock()
	from := s.state
	to := fn(from)
	s.state = to
	s.mu.Unlock()

	if to != from && s.bus != nil {
		s.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	}
	return to
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
