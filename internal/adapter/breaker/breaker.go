// Package breaker implements the three-state circuit breaker (C2) shared
// across every key: Closed admits all calls, Open denies everything until
// recoveryTimeout elapses, HalfOpen admits exactly one probe and resolves
// back to Closed or Open based on its outcome.
package breaker

import (
	"time"

	"github.com/thushan-yassen/egressgw/internal/adapter/keystate"
	"github.com/thushan-yassen/egressgw/internal/core/constants"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

type Breaker struct {
	store            *keystate.Store
	failureThreshold int
	recoveryTimeout  time.Duration
}

func New(store *keystate.Store, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = constants.DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = constants.DefaultRecoveryTimeout
	}
	return &Breaker{store: store, failureThreshold: failureThreshold, recoveryTimeout: recoveryTimeout}
}

// Allow reports whether a call may proceed. When the breaker is Open and
// recoveryTimeout has elapsed since it opened, it transitions to HalfOpen
// and admits exactly one caller as the probe; further callers are denied
// until that probe calls RecordSuccess or RecordFailure.
func (b *Breaker) Allow(key string) bool {
	ks := b.store.Get(key)
	ks.Mu.Lock()
	defer ks.Mu.Unlock()

	switch ks.BreakerState {
	case domain.BreakerClosed:
		return true
	case domain.BreakerHalfOpen:
		if ks.HalfOpenInFlight {
			return false
		}
		ks.HalfOpenInFlight = true
		return true
	case domain.BreakerOpen:
		if time.Since(ks.OpenedAt) < b.recoveryTimeout {
			return false
		}
		ks.BreakerState = domain.BreakerHalfOpen
		ks.HalfOpenInFlight = true
		return true
	default:
		return true
	}
}

func (b *Breaker) RecordSuccess(key string) {
	ks := b.store.Get(key)
	ks.Mu.Lock()
	defer ks.Mu.Unlock()

	ks.BreakerState = domain.BreakerClosed
	ks.ConsecutiveFailures = 0
	ks.HalfOpenInFlight = false
}

// RecordFailure increments the failure count, weighting rate-limit failures
// heavier since they indicate sustained exhaustion rather than a one-off
// server fault. Crossing failureThreshold opens the breaker; a failed
// HalfOpen probe reopens it immediately and restarts the recovery window.
func (b *Breaker) RecordFailure(key string, kind domain.ErrorKind) {
	ks := b.store.Get(key)
	ks.Mu.Lock()
	defer ks.Mu.Unlock()

	weight := 1
	if kind == domain.KindRateLimited {
		weight = constants.RateLimitFailureWeight
	}

	if ks.BreakerState == domain.BreakerHalfOpen {
		ks.HalfOpenInFlight = false
		ks.BreakerState = domain.BreakerOpen
		ks.OpenedAt = time.Now()
		ks.ConsecutiveFailures += weight
		return
	}

	ks.ConsecutiveFailures += weight
	if ks.ConsecutiveFailures >= b.failureThreshold {
		ks.BreakerState = domain.BreakerOpen
		ks.OpenedAt = time.Now()
	}
}

func (b *Breaker) State(key string) domain.BreakerState {
	ks := b.store.Get(key)
	ks.Mu.Lock()
	defer ks.Mu.Unlock()
	return ks.BreakerState
}
