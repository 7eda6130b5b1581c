// Package keypool implements the key selector (C3): the ordered list of
// keys for one provider, plus the round-robin/least-busy strategies used to
// pick which key a dispatch should try next.
package keypool

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan-yassen/egressgw/internal/adapter/keystate"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/core/ports"
)

type Pool struct {
	keys     []domain.Key
	strategy ports.SelectionStrategy
	store    *keystate.Store
	cursor   atomic.Uint64

	// statuses caches the last recorded HTTP status per key purely for
	// Stats(); outcome accounting itself lives on domain.KeyState.
	statuses *xsync.Map[string, int]
}

func New(keys []domain.Key, strategy ports.SelectionStrategy, store *keystate.Store) *Pool {
	ordered := make([]domain.Key, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	return &Pool{
		keys:     ordered,
		strategy: strategy,
		store:    store,
		statuses: xsync.NewMap[string, int](),
	}
}

// Next returns the pool's keys in selection order starting at the current
// cursor. RoundRobin always walks the ring from the next cursor position;
// LeastBusy sorts by in-flight count (ties broken by ring position) so the
// caller's first attempt goes to the least-loaded key.
func (p *Pool) Next() []domain.Key {
	n := len(p.keys)
	if n == 0 {
		return nil
	}

	start := int(p.cursor.Add(1)-1) % n
	ring := make([]domain.Key, n)
	for i := 0; i < n; i++ {
		ring[i] = p.keys[(start+i)%n]
	}

	if p.strategy != ports.StrategyLeastBusy {
		return ring
	}

	inflight := make(map[string]int64, n)
	for _, k := range p.keys {
		inflight[k.Secret] = p.store.Get(k.Secret).Snapshot().InFlight
	}

	sort.SliceStable(ring, func(i, j int) bool {
		return inflight[ring[i].Secret] < inflight[ring[j].Secret]
	})
	return ring
}

func (p *Pool) RecordSuccess(key domain.Key, latency time.Duration) {
	ks := p.store.Get(key.Secret)
	ks.Mu.Lock()
	ks.TotalRequests++
	ks.TotalSuccesses++
	ks.TotalLatencyNs += latency.Nanoseconds()
	ks.Mu.Unlock()

	p.statuses.Store(key.Secret, 200)
}

func (p *Pool) RecordFailure(key domain.Key, statusCode int) {
	ks := p.store.Get(key.Secret)
	ks.Mu.Lock()
	ks.TotalRequests++
	ks.TotalFailures++
	if statusCode != 0 {
		ks.PerStatusCounts[statusCode]++
	}
	ks.Mu.Unlock()

	p.statuses.Store(key.Secret, statusCode)
}

func (p *Pool) Stats() map[string]domain.KeyStateSnapshot {
	out := make(map[string]domain.KeyStateSnapshot, len(p.keys))
	for _, k := range p.keys {
		out[k.Suffix()] = p.store.Get(k.Secret).Snapshot()
	}
	return out
}
