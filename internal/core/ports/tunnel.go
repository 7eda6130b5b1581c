package ports

import (
	"context"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

// Tunnel is the lifecycle contract satisfied by every egress backend
// (WireGuard, AmneziaWG, OpenVPN, Hysteria2). Start is idempotent: calling it
// against an already-running tunnel of the same kind recovers rather than
// errors.
type Tunnel interface {
	Start(ctx context.Context, timeout time.Duration) error
	Stop(ctx context.Context) error

	// ProxyURL returns a non-empty SOCKS5/HTTP proxy URL when this tunnel
	// routes traffic via an upstream proxy (Hysteria2) instead of the kernel
	// routing table.
	ProxyURL() string

	Descriptor() domain.TunnelDescriptor
}

// RouteProgrammer applies and restores the kernel routing table around an
// active tunnel, per the configured domain.RouteMode.
type RouteProgrammer interface {
	Apply(ctx context.Context, mode domain.RouteMode, tunnelDev string) error
	Restore(ctx context.Context) error
}

// HealthChecker produces the C9 snapshot served at GET /api/vpn/health.
type HealthChecker interface {
	Probe(ctx context.Context) domain.HealthReport
}
