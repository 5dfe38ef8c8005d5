// Package authstate holds the per-session "is authenticated" flag that the
// route guard reads and writes.
package authstate

import (
	"sync"

	"tgforward-web/internal/event"
)

// Store is in-memory only. A new Store always starts unauthenticated.
type Store struct {
	sessionID string
	bus       event.Bus

	mu            sync.Mutex
	authenticated bool
	nextID        int
	subscribers   map[int]chan bool
}

func New(sessionID string, bus event.Bus) *Store {
	return &Store{
		sessionID:   sessionID,
		bus:         bus,
		subscribers: map[int]chan bool{},
	}
}

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// SetAuthenticated stores v and reports whether the flag changed. Subscribers
// only hear about changes.
func (s *Store) SetAuthenticated(v bool) bool {
	s.mu.Lock()
	if s.authenticated == v {
		s.mu.Unlock()
		return false
	}
	s.authenticated = v
	for _, ch := range s.subscribers {
		// Each subscriber only needs the latest value.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(event.New(s.sessionID, event.TypeAuthChanged, v))
	}
	return true
}

// Reset forgets any earlier authorization, as on a full page load.
func (s *Store) Reset() {
	s.SetAuthenticated(false)
}

func (s *Store) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan bool, 1)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}
