package ports

import (
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

// SelectionStrategy names the algorithm a KeyPool uses to pick the next key.
type SelectionStrategy string

const (
	StrategyRoundRobin SelectionStrategy = "round_robin"
	StrategyLeastBusy  SelectionStrategy = "least_busy"
)

// KeySelector is the read side of a KeyPool: pick the next candidate key.
// Implementations must not block on rate limiter or breaker state - that
// filtering happens at the caller (pool client), which may call Next
// repeatedly as it walks the candidate list.
type KeySelector interface {
	// Next returns the keys in this pool's selection order, starting at the
	// current cursor. Callers walk the slice trying each key in turn.
	Next() []domain.Key
}

// KeyPool is a KeySelector plus outcome recording, serving one provider.
type KeyPool interface {
	KeySelector

	RecordSuccess(key domain.Key, latency time.Duration)
	RecordFailure(key domain.Key, statusCode int)

	Stats() map[string]domain.KeyStateSnapshot
}
