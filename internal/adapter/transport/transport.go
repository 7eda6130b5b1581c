// Package transport builds the pooled HTTP client each provider client uses
// (C4), optionally routed through a SOCKS5 upstream proxy for Hysteria2
// egress, and classifies every response into the typed error taxonomy the
// rest of the pool dispatches on.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/thushan-yassen/egressgw/internal/core/constants"
)

// New builds a pooled http.Client. When proxyURL is non-empty (a Hysteria2
// SOCKS5 listener), all dials are routed through it instead of the kernel
// routing table.
func New(proxyURL string, requestTimeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        constants.DefaultMaxIdleConns,
		MaxIdleConnsPerHost: constants.DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     constants.DefaultIdleConnTimeout,
		TLSHandshakeTimeout: constants.DefaultTLSHandshakeTimeout,
	}

	if proxyURL != "" {
		dialer, err := newSocks5Dialer(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("building socks5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	} else {
		transport.DialContext = (&net.Dialer{Timeout: constants.DefaultDialTimeout}).DialContext
	}

	return &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
	}, nil
}

// rateLimitedRoundTripper throttles the health probe's own outbound GETs so
// a flapping probe domain can't be hammered once a second by every health
// check tick; it is not used on the provider call path, which has its own
// per-key limiter (C1).
type rateLimitedRoundTripper struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (rt *rateLimitedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return rt.next.RoundTrip(req)
}

// NewProbeLimited wraps client's transport with a token-bucket limiter
// bounding how often the VPN health probe may fire its external GET.
func NewProbeLimited(client *http.Client, requestsPerSecond float64, burst int) *http.Client {
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	limited := *client
	limited.Transport = &rateLimitedRoundTripper{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
	return &limited
}

func newSocks5Dialer(proxyURL string) (proxy.Dialer, error) {
	u, err := parseSocks5URL(proxyURL)
	if err != nil {
		return nil, err
	}
	return proxy.SOCKS5("tcp", u, nil, proxy.Direct)
}

func parseSocks5URL(raw string) (string, error) {
	const prefix = "socks5://"
	if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
		return "", fmt.Errorf("transport: expected socks5:// proxy URL, got %q", raw)
	}
	return raw[len(prefix):], nil
}
