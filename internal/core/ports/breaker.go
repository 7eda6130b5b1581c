package ports

import "github.com/thushan-yassen/egressgw/internal/core/domain"

// CircuitBreaker tracks failure/recovery state for a single key. One
// instance is shared per key; the pool asks Allow before dispatch and
// reports the outcome afterwards.
type CircuitBreaker interface {
	// Allow reports whether a call may proceed for key right now, and
	// advances Open->HalfOpen transitions when recoveryTimeout has elapsed.
	// When the breaker is HalfOpen, Allow returns true for exactly one
	// caller until that probe resolves.
	Allow(key string) bool

	// RecordSuccess closes the breaker and resets its failure count.
	RecordSuccess(key string)

	// RecordFailure increments the failure count and opens the breaker once
	// failureThreshold consecutive failures (weighted per spec.md's
	// rate-limit weighting) have been observed.
	RecordFailure(key string, kind domain.ErrorKind)

	// State reports the current breaker position for a key, for stats/health.
	State(key string) domain.BreakerState
}
