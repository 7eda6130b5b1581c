// Package metrics exposes pool and VPN counters the way the rest of the
// Go ecosystem exposes service metrics: a registered prometheus.Registry
// scraped over HTTP, in place of a bespoke runtime snapshot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pool holds the C1-C6 counters: requests routed through the provider pool,
// broken down by provider, outcome and the subsystem responsible for a
// denial.
type Pool struct {
	Requests        *prometheus.CounterVec
	KeySelections   *prometheus.CounterVec
	RateLimitDenied *prometheus.CounterVec
	BreakerDenied   *prometheus.CounterVec
	BreakerTrips    *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	CallLatency     *prometheus.HistogramVec
}

// VPN holds the C7-C9 counters: tunnel lifecycle transitions and health
// probe outcomes.
type VPN struct {
	TunnelState    *prometheus.GaugeVec
	BootstrapTotal *prometheus.CounterVec
	HealthProbes   *prometheus.CounterVec
	ProbeLatency   prometheus.Histogram
}

type Registry struct {
	reg  *prometheus.Registry
	Pool *Pool
	VPN  *VPN
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	pool := &Pool{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "pool",
			Name:      "requests_total",
			Help:      "Requests dispatched through the provider pool, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		KeySelections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "pool",
			Name:      "key_selections_total",
			Help:      "Key selections made by the key pool, by strategy.",
		}, []string{"strategy"}),
		RateLimitDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "pool",
			Name:      "rate_limit_denied_total",
			Help:      "Dispatch attempts denied by the per-key rate limiter.",
		}, []string{"provider"}),
		BreakerDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "pool",
			Name:      "breaker_denied_total",
			Help:      "Dispatch attempts denied by an open circuit breaker.",
		}, []string{"provider"}),
		BreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "pool",
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker transitions into the Open state, by provider.",
		}, []string{"provider"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "pool",
			Name:      "retries_total",
			Help:      "Local retries issued by a provider client, by reason.",
		}, []string{"provider", "reason"}),
		CallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "egressgw",
			Subsystem: "pool",
			Name:      "call_latency_seconds",
			Help:      "End-to-end latency of a single provider call attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	vpn := &VPN{
		TunnelState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "egressgw",
			Subsystem: "vpn",
			Name:      "tunnel_up",
			Help:      "1 if the configured tunnel interface is up, 0 otherwise.",
		}, []string{"kind"}),
		BootstrapTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "vpn",
			Name:      "bootstrap_total",
			Help:      "Tunnel bootstrap attempts, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		HealthProbes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egressgw",
			Subsystem: "vpn",
			Name:      "health_probes_total",
			Help:      "External reachability probes through the tunnel, by outcome.",
		}, []string{"outcome"}),
		ProbeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "egressgw",
			Subsystem: "vpn",
			Name:      "probe_latency_seconds",
			Help:      "Latency of the external reachability probe.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	return &Registry{reg: reg, Pool: pool, VPN: vpn}
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
