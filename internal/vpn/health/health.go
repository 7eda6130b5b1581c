// Package health inspects a bootstrapped tunnel (C9): interface state, wg
// peer/route tables, the Hysteria2 process and its local ports, and a live
// HTTPS probe through the egress path. The result feeds GET /api/vpn/health.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/metrics"
	"github.com/thushan-yassen/egressgw/internal/util"
	"github.com/thushan-yassen/egressgw/internal/vpn/cmdrunner"
)

type Config struct {
	Descriptor domain.TunnelDescriptor
	ProbeURL   string
	Enabled    bool
}

type Checker struct {
	runner  cmdrunner.Runner
	cfg     Config
	client  *http.Client
	metrics *metrics.VPN
}

func New(runner cmdrunner.Runner, cfg Config, client *http.Client) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Checker{runner: runner, cfg: cfg, client: client}
}

// WithMetrics attaches the VPN counters Probe reports into. Optional: a
// Checker built without it simply skips metric recording.
func (c *Checker) WithMetrics(m *metrics.VPN) *Checker {
	c.metrics = m
	return c
}

func (c *Checker) Probe(ctx context.Context) domain.HealthReport {
	if !c.cfg.Enabled {
		return domain.HealthReport{Status: domain.HealthDisabled}
	}

	report := domain.HealthReport{VPNType: c.cfg.Descriptor.Kind}
	var details []string

	switch c.cfg.Descriptor.Kind {
	case domain.TunnelHysteria2:
		report.Hysteria2 = c.checkHysteria2(ctx)
	default:
		iface := c.checkInterface(ctx)
		report.Interface = iface
		if c.cfg.Descriptor.Kind == domain.TunnelWireGuard || c.cfg.Descriptor.Kind == domain.TunnelAWG {
			if wg, err := c.checkWireGuard(ctx); err != nil {
				details = append(details, err.Error())
			} else {
				report.WireGuard = wg
			}
		}
		report.Routes = c.checkRoutes(ctx)
	}

	report.Probe = c.probeExternal(ctx)
	report.Details = details
	report.Status = overallStatus(report)
	c.observeProbe(report.Probe)
	return report
}

func (c *Checker) observeProbe(result domain.ProbeResult) {
	if c.metrics == nil {
		return
	}
	c.metrics.HealthProbes.WithLabelValues(string(result.Outcome)).Inc()
	if result.Outcome != domain.ProbeSkipped {
		c.metrics.ProbeLatency.Observe(float64(result.LatencyMillis) / 1000)
	}
}

func overallStatus(r domain.HealthReport) domain.HealthStatus {
	switch {
	case r.Interface != nil && !r.Interface.IsUp:
		return domain.HealthDegraded
	case r.Hysteria2 != nil && (!r.Hysteria2.IsRunning || !r.Hysteria2.SOCKS5Accessible):
		return domain.HealthDegraded
	case r.WireGuard != nil && len(r.WireGuard.Peers) == 0:
		return domain.HealthDegraded
	case r.Probe.Outcome == domain.ProbeFail:
		return domain.HealthDegraded
	default:
		return domain.HealthHealthy
	}
}

func (c *Checker) checkInterface(ctx context.Context) *domain.InterfaceStatus {
	iface := c.cfg.Descriptor.InterfaceName
	res, err := c.runner.Run(ctx, "ip", "addr", "show", "dev", iface)
	if err != nil || !res.Success() {
		return &domain.InterfaceStatus{Name: iface, IsUp: false}
	}

	status := &domain.InterfaceStatus{Name: iface}
	for _, line := range strings.Split(res.Stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, "state UP") || strings.Contains(trimmed, "<POINTOPOINT,UP") || strings.Contains(trimmed, "<UP,") {
			status.IsUp = true
		}
		if strings.HasPrefix(trimmed, "inet ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				status.Addresses = append(status.Addresses, fields[1])
			}
		}
	}
	if strings.Contains(res.Stdout, "state UP") {
		status.State = "UP"
	} else if strings.Contains(res.Stdout, "state DOWN") {
		status.State = "DOWN"
	}
	return status
}

// checkWireGuard prefers querying the WireGuard UAPI socket via wgctrl, and
// falls back to parsing `wg show <iface> dump` (a tab-separated peer table
// whose first line is the interface's own private-key/listen-port row) when
// the UAPI socket isn't reachable - e.g. a namespace without CAP_NET_ADMIN.
func (c *Checker) checkWireGuard(ctx context.Context) (*domain.WireGuardOverview, error) {
	iface := c.cfg.Descriptor.InterfaceName

	if overview, err := c.checkWireGuardNative(iface); err == nil {
		return overview, nil
	}

	res, err := c.runner.Run(ctx, "wg", "show", iface, "dump")
	if err != nil || !res.Success() {
		return nil, fmt.Errorf("health: wg show %s: %s", iface, res.Details())
	}

	lines := strings.Split(strings.TrimRight(res.Stdout, "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("health: wg show %s returned no data", iface)
	}

	overview := &domain.WireGuardOverview{}
	header := strings.Split(lines[0], "\t")
	if len(header) >= 3 {
		overview.PublicKey = header[1]
		if port, err := strconv.Atoi(header[2]); err == nil {
			overview.ListenPort = port
		}
	}

	for _, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		if len(fields) < 8 {
			continue
		}
		rx, _ := strconv.ParseUint(fields[5], 10, 64)
		tx, _ := strconv.ParseUint(fields[6], 10, 64)
		peer := domain.WireGuardPeer{
			PublicKey:       fields[0],
			Endpoint:        orDash(fields[2]),
			AllowedIPs:      strings.Split(fields[3], ","),
			TransferRxBytes: rx,
			TransferTxBytes: tx,
		}
		if hs, err := strconv.ParseInt(fields[4], 10, 64); err == nil && hs > 0 {
			peer.LatestHandshake = time.Unix(hs, 0).UTC().Format(time.RFC3339)
		}
		overview.Peers = append(overview.Peers, peer)
	}
	return overview, nil
}

func (c *Checker) checkWireGuardNative(iface string) (*domain.WireGuardOverview, error) {
	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("health: wgctrl unavailable: %w", err)
	}
	defer client.Close()

	dev, err := client.Device(iface)
	if err != nil {
		return nil, fmt.Errorf("health: wgctrl device %s: %w", iface, err)
	}

	overview := &domain.WireGuardOverview{
		PublicKey:  dev.PublicKey.String(),
		ListenPort: dev.ListenPort,
	}
	for _, p := range dev.Peers {
		peer := domain.WireGuardPeer{
			PublicKey:       p.PublicKey.String(),
			TransferRxBytes: util.SafeUint64(p.ReceiveBytes),
			TransferTxBytes: util.SafeUint64(p.TransmitBytes),
		}
		if p.Endpoint != nil {
			peer.Endpoint = p.Endpoint.String()
		}
		for _, ip := range p.AllowedIPs {
			peer.AllowedIPs = append(peer.AllowedIPs, ip.String())
		}
		if !p.LastHandshakeTime.IsZero() {
			peer.LatestHandshake = p.LastHandshakeTime.UTC().Format(time.RFC3339)
		}
		overview.Peers = append(overview.Peers, peer)
	}
	return overview, nil
}

func orDash(s string) string {
	if s == "(none)" {
		return ""
	}
	return s
}

func (c *Checker) checkRoutes(ctx context.Context) []domain.RouteEntry {
	iface := c.cfg.Descriptor.InterfaceName
	res, err := c.runner.Run(ctx, "ip", "route", "show", "dev", iface)
	if err != nil || !res.Success() {
		return nil
	}

	var entries []domain.RouteEntry
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		entry := domain.RouteEntry{Destination: fields[0], Dev: iface}
		for i, f := range fields {
			if f == "via" && i+1 < len(fields) {
				entry.Gateway = fields[i+1]
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func (c *Checker) checkHysteria2(ctx context.Context) *domain.Hysteria2Status {
	status := &domain.Hysteria2Status{ServerRef: c.cfg.Descriptor.URI}
	status.IsRunning = c.hysteria2ProcessRunning(ctx)
	if c.cfg.Descriptor.SOCKS5Port != 0 {
		status.SOCKS5Accessible = portOpen(c.cfg.Descriptor.SOCKS5Port)
	}
	if c.cfg.Descriptor.HTTPPort != 0 {
		status.HTTPAccessible = portOpen(c.cfg.Descriptor.HTTPPort)
	}
	return status
}

// hysteria2ProcessRunning prefers pgrep; falls back to scanning `ps aux`
// output for environments where pgrep isn't installed.
func (c *Checker) hysteria2ProcessRunning(ctx context.Context) bool {
	res, err := c.runner.Run(ctx, "pgrep", "-f", "hysteria")
	if err == nil && res.Success() && strings.TrimSpace(res.Stdout) != "" {
		return true
	}

	res, err = c.runner.Run(ctx, "ps", "aux")
	if err != nil || !res.Success() {
		return false
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "hysteria") {
			return true
		}
	}
	return false
}

func portOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 1500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *Checker) probeExternal(ctx context.Context) domain.ProbeResult {
	if c.cfg.ProbeURL == "" {
		return domain.ProbeResult{Outcome: domain.ProbeSkipped}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
	if err != nil {
		return domain.ProbeResult{Domain: c.cfg.ProbeURL, Outcome: domain.ProbeFail, Error: err.Error()}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return domain.ProbeResult{Domain: c.cfg.ProbeURL, Outcome: domain.ProbeFail, Error: err.Error(), LatencyMillis: latency.Milliseconds()}
	}
	defer resp.Body.Close()

	outcome := domain.ProbeOk
	if resp.StatusCode >= 500 {
		outcome = domain.ProbeFail
	}
	return domain.ProbeResult{
		Domain:        c.cfg.ProbeURL,
		Outcome:       outcome,
		HTTPStatus:    resp.StatusCode,
		LatencyMillis: latency.Milliseconds(),
	}
}

// parseByteSize converts a `wg`/`ip -s` style quantity like "1.23 MiB" into
// bytes. Probe does not call it: the transfer totals it reports are the raw
// byte counters from wgctrl or `wg show dump`.
func parseByteSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	units := []struct {
		suffix string
		mult   float64
	}{
		{"TiB", 1 << 40},
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			num, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("health: parsing byte size %q: %w", s, err)
			}
			return uint64(num * u.mult), nil
		}
	}
	return 0, fmt.Errorf("health: unrecognised byte size unit in %q", s)
}
