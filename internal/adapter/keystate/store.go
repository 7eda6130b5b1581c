// Package keystate holds the single shared KeyState per API key, so the
// rate limiter, circuit breaker and key pool all observe and mutate the same
// counters instead of keeping separate, divergent bookkeeping.
package keystate

import (
	"sync"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

type Store struct {
	states sync.Map // string (key secret) -> *domain.KeyState
}

func NewStore() *Store {
	return &Store{}
}

// Get returns the KeyState for id, creating it on first use.
func (s *Store) Get(id string) *domain.KeyState {
	if v, ok := s.states.Load(id); ok {
		return v.(*domain.KeyState)
	}
	v, _ := s.states.LoadOrStore(id, domain.NewKeyState())
	return v.(*domain.KeyState)
}
