package domain

import (
	"sync"
	"time"
)

// BreakerState is the three-state circuit breaker position for a key.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// KeyState is the per-key runtime record mutated by the rate limiter,
// circuit breaker and key pool. All fields are guarded by Mu; callers must
// not read the plain fields without holding it (Snapshot does this safely).
type KeyState struct {
	Mu sync.Mutex

	Tokens     float64
	LastRefill time.Time

	BreakerState        BreakerState
	ConsecutiveFailures int
	OpenedAt            time.Time
	HalfOpenInFlight    bool

	TotalRequests   int64
	TotalSuccesses  int64
	TotalFailures   int64
	TotalLatencyNs  int64
	PerStatusCounts map[int]int64
}

// KeyStateSnapshot is a point-in-time, lock-free copy of KeyState for stats
// reporting. Readers may observe slightly stale data; that's acceptable per
// the concurrency model.
type KeyStateSnapshot struct {
	Tokens              float64
	BreakerState        BreakerState
	ConsecutiveFailures int
	OpenedAt            time.Time
	TotalRequests       int64
	TotalSuccesses      int64
	TotalFailures       int64
	TotalLatencyNs      int64
	PerStatusCounts     map[int]int64
	InFlight            int64
}

func NewKeyState() *KeyState {
	return &KeyState{
		BreakerState:    BreakerClosed,
		PerStatusCounts: make(map[int]int64),
	}
}

// Snapshot takes a consistent copy under the lock.
func (ks *KeyState) Snapshot() KeyStateSnapshot {
	ks.Mu.Lock()
	defer ks.Mu.Unlock()

	counts := make(map[int]int64, len(ks.PerStatusCounts))
	for k, v := range ks.PerStatusCounts {
		counts[k] = v
	}

	return KeyStateSnapshot{
		Tokens:              ks.Tokens,
		BreakerState:        ks.BreakerState,
		ConsecutiveFailures: ks.ConsecutiveFailures,
		OpenedAt:            ks.OpenedAt,
		TotalRequests:       ks.TotalRequests,
		TotalSuccesses:      ks.TotalSuccesses,
		TotalFailures:       ks.TotalFailures,
		TotalLatencyNs:      ks.TotalLatencyNs,
		PerStatusCounts:     counts,
		InFlight:            ks.TotalRequests - ks.TotalSuccesses - ks.TotalFailures,
	}
}
