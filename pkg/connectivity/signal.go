// Package connectivity exposes the shared online/offline signal. The value
// is read-only shared state broadcast to multiple subscribers; only the
// platform integration layer calls Set.
package connectivity

import (
	"sync"

	"cadence/pkg/logger"
)

// Signal holds the current connectivity state and fans out changes.
type Signal struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan bool
	next   int
}

// New returns a Signal with the given initial state.
func New(online bool) *Signal {
	return &Signal{online: online, subs: make(map[int]chan bool)}
}

// IsOnline reports the current state.
func (s *Signal) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// Set updates the state and notifies subscribers on change. Slow
// subscribers miss intermediate transitions rather than block the caller.
func (s *Signal) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == online {
		return
	}
	s.online = online
	logger.Info("connectivity_changed", "online", online)
	for _, ch := range s.subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Subscribe registers a listener for state changes. The returned cancel
// function must be called to release the subscription.
func (s *Signal) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan bool, 16)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}
