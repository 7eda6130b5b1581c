// Package pool implements the orchestrator (C6): it walks a provider's key
// ring, skipping keys whose breaker or rate limiter deny them, dispatches to
// whichever key clears both, and folds the outcome back into the shared key
// state. Selecting the next key is the only part done under a lock; the
// HTTP round trip itself never holds one.
package pool

import (
	"context"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/constants"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/core/ports"
	"github.com/thushan-yassen/egressgw/internal/metrics"
)

type Client struct {
	selector         ports.KeySelector
	pool             ports.KeyPool
	limiter          ports.RateLimiter
	breaker          ports.CircuitBreaker
	factory          ports.ProviderClientFactory
	perKeyMaxRetries int
	metrics          *metrics.Pool
}

type Config struct {
	Selector         ports.KeySelector
	Pool             ports.KeyPool
	Limiter          ports.RateLimiter
	Breaker          ports.CircuitBreaker
	Factory          ports.ProviderClientFactory
	PerKeyMaxRetries int
	Metrics          *metrics.Pool
}

func New(cfg Config) *Client {
	perKey := cfg.PerKeyMaxRetries
	if perKey <= 0 {
		perKey = 1
	}
	return &Client{
		selector:         cfg.Selector,
		pool:             cfg.Pool,
		limiter:          cfg.Limiter,
		breaker:          cfg.Breaker,
		factory:          cfg.Factory,
		perKeyMaxRetries: perKey,
		metrics:          cfg.Metrics,
	}
}

// Call dispatches fp to the first key that clears both its breaker and its
// rate limiter, cycling through the ring up to len(keys)*perKeyMaxRetries
// times. If every key is denied on the first pass (no key has an available
// token), it falls back to blocking on the first round-robin key's limiter,
// regardless of that key's breaker state, mirroring how the reference
// implementation behaves when the whole pool is saturated. AuthError and
// ValidationError abort the whole dispatch immediately instead of rotating;
// every other retryable kind pauses per sleepForRetry before trying the
// next key.
func (c *Client) Call(ctx context.Context, fp domain.RequestFingerprint) (domain.Response, error) {
	ring := c.selector.Next()
	if len(ring) == 0 {
		return domain.Response{}, &domain.AllKeysExhaustedError{Attempts: 0}
	}

	maxAttempts := len(ring) * c.perKeyMaxRetries
	var last *domain.TypedError
	attempts := 0
	denied := 0

	for round := 0; attempts < maxAttempts && denied < len(ring); round++ {
		key := ring[round%len(ring)]
		id := key.Secret

		if !c.breaker.Allow(id) {
			c.observeDenied(key, "breaker")
			denied++
			continue
		}
		if !c.limiter.TryAcquire(id) {
			c.observeDenied(key, "rate_limit")
			denied++
			continue
		}

		denied = 0
		attempts++
		resp, typed := c.dispatch(ctx, key, fp)
		if typed == nil {
			c.observeRequest(key, "ok")
			return resp, nil
		}
		last = typed
		c.observeRequest(key, string(typed.Kind))

		// AuthError/ValidationError are never the rotation's problem to
		// solve: surface the typed error straight to the caller instead of
		// burning the rest of the ring on it.
		if typed.Kind == domain.KindAuthError || typed.Kind == domain.KindValidationError {
			return domain.Response{}, typed
		}

		if attempts >= maxAttempts {
			break
		}

		c.sleepForRetry(ctx, typed)
	}

	if attempts == 0 {
		resp, typed := c.fallback(ctx, ring[0], fp)
		if typed == nil {
			return resp, nil
		}
		if typed.Kind == domain.KindAuthError || typed.Kind == domain.KindValidationError {
			return domain.Response{}, typed
		}
		last = typed
		attempts = 1
	}

	return domain.Response{}, &domain.AllKeysExhaustedError{Attempts: attempts, Last: last}
}

// Stats returns the per-key snapshot accumulated by the underlying KeyPool
// (C3), keyed by key suffix.
func (c *Client) Stats() map[string]domain.KeyStateSnapshot {
	return c.pool.Stats()
}

func (c *Client) dispatch(ctx context.Context, key domain.Key, fp domain.RequestFingerprint) (domain.Response, *domain.TypedError) {
	start := time.Now()
	defer c.observeLatency(key, start)

	client, err := c.factory.NewClient(key)
	if err != nil {
		typed := domain.NewTypedError(domain.KindValidationError, "building provider client").WithCause(err).WithKeySuffix(key.Suffix())
		c.recordFailure(key, typed)
		return domain.Response{}, typed
	}

	resp, typed := client.Call(ctx, fp)
	if typed != nil {
		c.recordFailure(key, typed)
		return domain.Response{}, typed
	}

	c.breaker.RecordSuccess(key.Secret)
	c.pool.RecordSuccess(key, time.Since(start))
	return resp, nil
}

// fallback blocks on the first round-robin key's limiter even if its
// breaker is open, since with every key denied there is nothing better to
// wait on.
func (c *Client) fallback(ctx context.Context, key domain.Key, fp domain.RequestFingerprint) (domain.Response, *domain.TypedError) {
	if err := c.limiter.Acquire(ctx, key.Secret); err != nil {
		return domain.Response{}, domain.NewTypedError(domain.KindTimeout, "waiting for key availability").WithCause(err).WithKeySuffix(key.Suffix())
	}
	return c.dispatch(ctx, key, fp)
}

// recordFailure folds a dispatch failure back into the breaker and the key
// pool. ServiceOverload never touches the breaker (it's not the key's
// fault); AuthError/ValidationError don't either, since they're
// non-retryable caller-side problems rather than a signal about the key's
// health.
func (c *Client) recordFailure(key domain.Key, typed *domain.TypedError) {
	switch typed.Kind {
	case domain.KindServiceOverload, domain.KindAuthError, domain.KindValidationError:
	default:
		c.breaker.RecordFailure(key.Secret, typed.Kind)
		if c.breaker.State(key.Secret) == domain.BreakerOpen {
			c.observeBreakerTrip(key)
		}
	}
	c.pool.RecordFailure(key, typed.Status)
}

// sleepForRetry pauses before the pool rotates to the next key, per the
// error kind: RateLimited waits the upstream's retryAfter (capped at 30s),
// ServiceOverload always waits a fixed 30s, and every other retryable kind
// rotates immediately.
func (c *Client) sleepForRetry(ctx context.Context, typed *domain.TypedError) {
	var wait time.Duration
	switch typed.Kind {
	case domain.KindRateLimited:
		if typed.RetryAfter <= 0 {
			return
		}
		wait = typed.RetryAfter
		if wait > constants.ServiceOverloadSleep {
			wait = constants.ServiceOverloadSleep
		}
	case domain.KindServiceOverload:
		wait = constants.ServiceOverloadSleep
	default:
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (c *Client) observeRequest(key domain.Key, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Requests.WithLabelValues(key.Provider.String(), outcome).Inc()
}

func (c *Client) observeDenied(key domain.Key, reason string) {
	if c.metrics == nil {
		return
	}
	switch reason {
	case "breaker":
		c.metrics.BreakerDenied.WithLabelValues(key.Provider.String()).Inc()
	case "rate_limit":
		c.metrics.RateLimitDenied.WithLabelValues(key.Provider.String()).Inc()
	}
}

func (c *Client) observeBreakerTrip(key domain.Key) {
	if c.metrics == nil {
		return
	}
	c.metrics.BreakerTrips.WithLabelValues(key.Provider.String()).Inc()
}

func (c *Client) observeLatency(key domain.Key, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.CallLatency.WithLabelValues(key.Provider.String()).Observe(time.Since(start).Seconds())
}
