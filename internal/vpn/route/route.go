// Package route programs the kernel routing table around an active tunnel
// (C8): full-tunnel mode locks all outbound traffic to the tunnel except
// configured bypass CIDRs; domain/cidr split-tunnel modes restore the
// original default route and add targeted routes through the tunnel
// interface instead.
package route

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/vishvananda/netlink"

	"github.com/thushan-yassen/egressgw/internal/core/constants"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/util"
	"github.com/thushan-yassen/egressgw/internal/vpn/cmdrunner"
)

type Config struct {
	Domains     []string
	CIDRs       []string
	BypassCIDRs []string
}

type Programmer struct {
	runner  cmdrunner.Runner
	cfg     Config
	applied domain.RouteState
}

func New(runner cmdrunner.Runner, cfg Config) *Programmer {
	return &Programmer{runner: runner, cfg: cfg}
}

func (p *Programmer) Apply(ctx context.Context, mode domain.RouteMode, tunnelDev string) error {
	if _, err := util.ParseTrustedCIDRs(p.cfg.CIDRs); err != nil {
		return fmt.Errorf("route: invalid cidrs: %w", err)
	}
	if _, err := util.ParseTrustedCIDRs(p.cfg.BypassCIDRs); err != nil {
		return fmt.Errorf("route: invalid bypass_cidrs: %w", err)
	}

	defaultRoute, err := p.captureDefaultRoute(ctx)
	if err != nil {
		return err
	}

	if mode == domain.RouteModeAll {
		if len(p.cfg.BypassCIDRs) > 0 {
			if defaultRoute == nil {
				return fmt.Errorf("route: cannot add bypass CIDRs without a baseline default route")
			}
			for _, cidr := range p.cfg.BypassCIDRs {
				if err := p.routeViaGateway(ctx, cidr, *defaultRoute); err != nil {
					return err
				}
			}
		}
		p.applied = orZero(defaultRoute)
		return nil
	}

	if defaultRoute == nil {
		return fmt.Errorf("route: split-tunnel mode requires detecting the original default route")
	}
	p.applied = *defaultRoute

	targets, err := p.resolveTargets(mode)
	if err != nil {
		return err
	}

	if _, err := p.runner.Run(ctx, "ip", "route", "del", "default", "dev", tunnelDev); err != nil {
		return fmt.Errorf("route: removing tunnel default route: %w", err)
	}
	if err := p.restoreDefaultRoute(ctx, *defaultRoute); err != nil {
		return err
	}

	for _, target := range targets {
		if err := p.routeViaInterface(ctx, target, tunnelDev); err != nil {
			return err
		}
	}
	for _, cidr := range p.cfg.BypassCIDRs {
		if err := p.routeViaGateway(ctx, cidr, *defaultRoute); err != nil {
			return err
		}
	}
	return nil
}

func (p *Programmer) Restore(ctx context.Context) error {
	if p.applied.Gateway == "" {
		return nil
	}
	return p.restoreDefaultRoute(ctx, p.applied)
}

func (p *Programmer) resolveTargets(mode domain.RouteMode) ([]string, error) {
	switch mode {
	case domain.RouteModeDomains:
		if len(p.cfg.Domains) == 0 {
			return nil, fmt.Errorf("route: at least one domain is required in domains mode")
		}
		resolved, err := p.resolveDomains(p.cfg.Domains)
		if err != nil {
			return nil, err
		}
		targets := make([]string, len(resolved))
		for i, ip := range resolved {
			if strings.Contains(ip, "/") {
				targets[i] = ip
			} else {
				targets[i] = ip + "/32"
			}
		}
		return targets, nil
	case domain.RouteModeCIDR:
		if len(p.cfg.CIDRs) == 0 {
			return nil, fmt.Errorf("route: at least one CIDR is required in cidr mode")
		}
		return p.cfg.CIDRs, nil
	default:
		return nil, fmt.Errorf("route: unsupported route mode %q", mode)
	}
}

// resolveDomains resolves each domain to its IPv4 addresses, taking 3
// attempts per domain to catch the different addresses an Anycast service
// may hand out across queries. A domain recognised as a Google API host
// contributes the known Google Anycast CIDR blocks instead of an individual
// lookup, since those addresses are neither stable nor enumerable; every
// other domain in the list is still resolved and unioned in, rather than
// the whole list being dropped in favour of the Anycast blocks alone.
func (p *Programmer) resolveDomains(domains []string) ([]string, error) {
	seen := make(map[string]bool)
	var addresses []string
	var toResolve []string

	for _, d := range domains {
		if strings.Contains(d, "googleapis.com") {
			for _, cidr := range constants.GoogleAnycastCIDRs {
				if !seen[cidr] {
					seen[cidr] = true
					addresses = append(addresses, cidr)
				}
			}
			continue
		}
		toResolve = append(toResolve, d)
	}

	for _, d := range toResolve {
		var lastErr error
		found := false
		for attempt := 0; attempt < constants.DefaultDNSResolveAttempts; attempt++ {
			ips, err := net.LookupIP(d)
			if err != nil {
				lastErr = err
				continue
			}
			found = true
			for _, ip := range ips {
				if v4 := ip.To4(); v4 != nil && !seen[v4.String()] {
					seen[v4.String()] = true
					addresses = append(addresses, v4.String())
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("route: resolving domain %q: %w", d, lastErr)
		}
	}

	if len(addresses) == 0 {
		return nil, fmt.Errorf("route: DNS lookup for %s returned no IPv4 addresses", strings.Join(domains, ", "))
	}
	return addresses, nil
}

func (p *Programmer) captureDefaultRoute(ctx context.Context) (*domain.RouteState, error) {
	res, err := p.runner.Run(ctx, "ip", "route", "show", "default")
	if err != nil || !res.Success() {
		return nil, nil
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, nil
	}

	tokens := strings.Fields(lines[0])
	var gw, dev string
	metric := 0
	for i, tok := range tokens {
		switch tok {
		case "via":
			if i+1 < len(tokens) {
				gw = tokens[i+1]
			}
		case "dev":
			if i+1 < len(tokens) {
				dev = tokens[i+1]
			}
		case "metric":
			if i+1 < len(tokens) {
				metric, _ = strconv.Atoi(tokens[i+1])
			}
		}
	}
	if gw == "" || dev == "" {
		return nil, nil
	}
	return &domain.RouteState{Gateway: gw, Dev: dev, Metric: metric}, nil
}

func (p *Programmer) restoreDefaultRoute(ctx context.Context, route domain.RouteState) error {
	args := []string{"route", "replace", "default", "via", route.Gateway, "dev", route.Dev}
	if route.Metric != 0 {
		args = append(args, "metric", strconv.Itoa(route.Metric))
	}
	res, err := p.runner.Run(ctx, "ip", args...)
	if err != nil || !res.Success() {
		return fmt.Errorf("route: restoring default route: %s", res.Details())
	}
	return nil
}

func (p *Programmer) routeViaGateway(ctx context.Context, target string, via domain.RouteState) error {
	res, err := p.runner.Run(ctx, "ip", "route", "replace", target, "via", via.Gateway, "dev", via.Dev)
	if err != nil || !res.Success() {
		return fmt.Errorf("route: adding bypass route for %s: %s", target, res.Details())
	}
	return nil
}

func (p *Programmer) routeViaInterface(ctx context.Context, target, iface string) error {
	res, err := p.runner.Run(ctx, "ip", "route", "replace", target, "dev", iface)
	if err != nil || !res.Success() {
		return fmt.Errorf("route: adding tunnel route for %s: %s", target, res.Details())
	}
	verifyRouteInstalled(iface, target)
	return nil
}

// verifyRouteInstalled reads back the route table via netlink after `ip
// route replace` reports success. It never fails the apply: `ip` is the
// spec-mandated, CLI-observable mechanism for installing routes, netlink is
// only a sanity check against a silent kernel-side rejection.
func verifyRouteInstalled(iface, target string) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return
	}
	_, dst, err := net.ParseCIDR(target)
	if err != nil {
		return
	}
	routes, err := netlink.RouteList(link, netlink.FAMILY_V4)
	if err != nil {
		return
	}
	for _, r := range routes {
		if r.Dst != nil && r.Dst.String() == dst.String() {
			return
		}
	}
}

func orZero(r *domain.RouteState) domain.RouteState {
	if r == nil {
		return domain.RouteState{}
	}
	return *r
}
