// Package bootstrap brings up the configured egress tunnel (C7): WireGuard,
// AmneziaWG, OpenVPN or Hysteria2. Each kind is idempotent - calling Start
// against an interface that is already up recovers instead of erroring.
package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/metrics"
	"github.com/thushan-yassen/egressgw/internal/util"
	"github.com/thushan-yassen/egressgw/internal/vpn/cmdrunner"
)

// Tunnel brings up one of the four supported egress backends per its
// domain.TunnelDescriptor and satisfies ports.Tunnel.
type Tunnel struct {
	runner     cmdrunner.Runner
	descriptor domain.TunnelDescriptor
	metrics    *metrics.VPN
}

func New(runner cmdrunner.Runner, descriptor domain.TunnelDescriptor) *Tunnel {
	return &Tunnel{runner: runner, descriptor: descriptor}
}

// WithMetrics attaches the VPN counters Start/Stop report into. Optional:
// a Tunnel built without it simply skips metric recording.
func (t *Tunnel) WithMetrics(m *metrics.VPN) *Tunnel {
	t.metrics = m
	return t
}

func (t *Tunnel) Descriptor() domain.TunnelDescriptor { return t.descriptor }

func (t *Tunnel) ProxyURL() string { return t.descriptor.ProxyURL() }

func (t *Tunnel) Start(ctx context.Context, timeout time.Duration) error {
	var err error
	switch t.descriptor.Kind {
	case domain.TunnelWireGuard:
		err = t.ensureWireGuardUp(ctx, timeout)
	case domain.TunnelAWG:
		err = t.ensureAWGUp(ctx, timeout)
	case domain.TunnelOpenVPN:
		err = t.ensureOpenVPNUp(ctx, timeout)
	case domain.TunnelHysteria2:
		err = t.ensureHysteria2Up(ctx, timeout)
	default:
		err = fmt.Errorf("bootstrap: unsupported tunnel kind %q", t.descriptor.Kind)
	}
	t.observeBootstrap(err)
	return err
}

func (t *Tunnel) observeBootstrap(err error) {
	if t.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	t.metrics.BootstrapTotal.WithLabelValues(string(t.descriptor.Kind), outcome).Inc()
	if err == nil {
		t.metrics.TunnelState.WithLabelValues(string(t.descriptor.Kind)).Set(1)
	} else {
		t.metrics.TunnelState.WithLabelValues(string(t.descriptor.Kind)).Set(0)
	}
}

func (t *Tunnel) Stop(ctx context.Context) error {
	if t.descriptor.Kind == domain.TunnelHysteria2 {
		return nil // detached process; left running across restarts
	}
	_, _ = t.runner.Run(ctx, "ip", "link", "del", t.descriptor.InterfaceName)
	return nil
}

func (t *Tunnel) requireBinary(name string) error {
	if _, err := t.runner.LookPath(name); err != nil {
		return fmt.Errorf("bootstrap: %q binary not found: %w", name, err)
	}
	return nil
}

func (t *Tunnel) interfaceUp(ctx context.Context, iface string) bool {
	res, err := t.runner.Run(ctx, "ip", "link", "show", "dev", iface)
	if err != nil || !res.Success() {
		return false
	}
	if strings.Contains(res.Stdout, "state UP") {
		return true
	}
	if i := strings.Index(res.Stdout, "<"); i >= 0 {
		if j := strings.Index(res.Stdout[i:], ">"); j >= 0 {
			flags := strings.Split(res.Stdout[i+1:i+j], ",")
			for _, f := range flags {
				f = strings.TrimSpace(f)
				if f == "UP" || f == "LOWER_UP" {
					return true
				}
			}
		}
	}
	return false
}

func (t *Tunnel) waitForInterface(ctx context.Context, iface string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for attempt := 1; time.Now().Before(deadline); attempt++ {
		if t.interfaceUp(ctx, iface) {
			return nil
		}
		time.Sleep(util.CalculateExponentialBackoff(attempt, 100*time.Millisecond, 2*time.Second, 0.2))
	}
	return fmt.Errorf("bootstrap: interface %q did not become available within %s", iface, timeout)
}

// checkSysctl reads param via the unix.Sysctl syscall when it names a
// /proc/sys entry directly reachable that way, falling back to shelling out
// to sysctl(8) for anything it can't (e.g. a missing CGO sysctl translation
// table on this platform).
func (t *Tunnel) checkSysctl(ctx context.Context, param, expected string) bool {
	if v, err := unix.Sysctl(param); err == nil {
		return strings.TrimSpace(v) == expected
	}

	res, err := t.runner.Run(ctx, "sysctl", "-n", param)
	return err == nil && res.Success() && strings.TrimSpace(res.Stdout) == expected
}

// runWithSysctlFallback runs cmd; if it fails with what looks like a
// src_valid_mark sysctl permission error (common when Docker already sets
// the kernel parameter but wg-quick still tries and gets EACCES), it
// tolerates the failure provided the parameter is already correctly set.
func (t *Tunnel) runWithSysctlFallback(ctx context.Context, sysctlParam string, name string, args ...string) error {
	res, err := t.runner.Run(ctx, name, args...)
	if err == nil && res.Success() {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap: running %s: %w", name, err)
	}

	combined := strings.ToLower(res.Stdout + " " + res.Stderr)
	isSysctlError := strings.Contains(combined, "sysctl") &&
		(strings.Contains(combined, "permission denied") || strings.Contains(combined, "operation not permitted") || strings.Contains(combined, "eacces")) &&
		(strings.Contains(combined, strings.ToLower(sysctlParam)) || strings.Contains(combined, "src_valid_mark"))

	if isSysctlError && t.checkSysctl(ctx, sysctlParam, "1") {
		return nil
	}

	return fmt.Errorf("bootstrap: command '%s %s' failed: %s", name, strings.Join(args, " "), res.Details())
}

const wireGuardSysctlParam = "net.ipv4.conf.all.src_valid_mark"

func (t *Tunnel) ensureWireGuardUp(ctx context.Context, timeout time.Duration) error {
	if err := t.requireBinary("wg-quick"); err != nil {
		return err
	}
	if err := t.requireBinary("ip"); err != nil {
		return err
	}
	if _, err := os.Stat(t.descriptor.ConfigPath); err != nil {
		return fmt.Errorf("bootstrap: wireguard config not found: %s", t.descriptor.ConfigPath)
	}

	if t.interfaceUp(ctx, t.descriptor.InterfaceName) {
		return nil
	}

	if err := t.runWithSysctlFallback(ctx, wireGuardSysctlParam, "wg-quick", "up", t.descriptor.ConfigPath); err != nil {
		return err
	}
	return t.waitForInterface(ctx, t.descriptor.InterfaceName, timeout)
}

var requiredAWGParams = []string{"Jc", "Jmin", "Jmax", "S1", "S2", "H1", "H2", "H3", "H4"}

func (t *Tunnel) validateAWGConfig() error {
	f, err := os.Open(t.descriptor.ConfigPath)
	if err != nil {
		return fmt.Errorf("bootstrap: reading awg config: %w", err)
	}
	defer f.Close()

	found := make(map[string]bool, len(requiredAWGParams))
	inInterface := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "[Interface]"):
			inInterface = true
		case strings.HasPrefix(line, "[") && !strings.HasPrefix(line, "[Interface"):
			inInterface = false
		case inInterface && strings.Contains(line, "="):
			key := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
			for _, req := range requiredAWGParams {
				if key == req {
					found[req] = true
				}
			}
		}
	}

	var missing []string
	for _, req := range requiredAWGParams {
		if !found[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("bootstrap: awg config missing obfuscation parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ensureAWGUp brings up the AmneziaWG interface using the amneziawg client
// when present; otherwise it falls back to wg-quick with a config stripped
// of AWG-only parameters, which loses obfuscation but still connects.
func (t *Tunnel) ensureAWGUp(ctx context.Context, timeout time.Duration) error {
	if _, err := os.Stat(t.descriptor.ConfigPath); err != nil {
		return fmt.Errorf("bootstrap: awg config not found: %s", t.descriptor.ConfigPath)
	}
	if err := t.validateAWGConfig(); err != nil {
		return err
	}
	if t.interfaceUp(ctx, t.descriptor.InterfaceName) {
		return nil
	}

	if client, err := t.runner.LookPath("amneziawg"); err == nil {
		if err := t.requireBinary("ip"); err != nil {
			return err
		}
		if err := t.runWithSysctlFallback(ctx, wireGuardSysctlParam, client, "up", t.descriptor.ConfigPath); err != nil {
			return err
		}
		return t.waitForInterface(ctx, t.descriptor.InterfaceName, timeout)
	}

	if err := t.requireBinary("wg-quick"); err != nil {
		return err
	}
	strippedPath, cleanup, err := t.stripAWGParams(t.descriptor.ConfigPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := t.runWithSysctlFallback(ctx, wireGuardSysctlParam, "wg-quick", "up", strippedPath); err != nil {
		return err
	}
	if !t.interfaceUp(ctx, t.descriptor.InterfaceName) {
		_, _ = t.runner.Run(ctx, "ip", "link", "set", "up", "dev", t.descriptor.InterfaceName)
	}
	return t.waitForInterface(ctx, t.descriptor.InterfaceName, timeout)
}

func (t *Tunnel) stripAWGParams(configPath string) (path string, cleanup func(), err error) {
	src, err := os.Open(configPath)
	if err != nil {
		return "", nil, fmt.Errorf("bootstrap: opening awg config: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "wg-awg-*.conf")
	if err != nil {
		return "", nil, fmt.Errorf("bootstrap: creating stripped config: %w", err)
	}

	inInterface := false
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "[Interface]"):
			inInterface = true
			fmt.Fprintln(tmp, line)
		case strings.HasPrefix(trimmed, "[Peer]"):
			inInterface = false
			fmt.Fprintln(tmp, line)
		case inInterface:
			key := ""
			if idx := strings.Index(trimmed, "="); idx >= 0 {
				key = strings.TrimSpace(trimmed[:idx])
			}
			if !containsStr(requiredAWGParams, key) {
				fmt.Fprintln(tmp, line)
			}
		default:
			fmt.Fprintln(tmp, line)
		}
	}
	tmp.Close()

	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t *Tunnel) ensureOpenVPNUp(ctx context.Context, timeout time.Duration) error {
	if err := t.requireBinary("openvpn"); err != nil {
		return err
	}
	if err := t.requireBinary("ip"); err != nil {
		return err
	}
	if _, err := os.Stat(t.descriptor.ConfigPath); err != nil {
		return fmt.Errorf("bootstrap: openvpn config not found: %s", t.descriptor.ConfigPath)
	}

	iface := t.descriptor.InterfaceName
	if iface == "" {
		iface = "tun0"
	}
	if t.interfaceUp(ctx, iface) {
		return nil
	}

	args := []string{
		"--config", t.descriptor.ConfigPath,
		"--daemon", "openvpn",
		"--route-nopull",
		"--dev", iface,
	}
	if pidDir := "/var/run/openvpn"; dirWritable(pidDir) {
		args = append(args, "--writepid", pidDir+"/"+iface+".pid")
	}

	res, err := t.runner.Run(ctx, "openvpn", args...)
	if err != nil || !res.Success() {
		time.Sleep(time.Second)
		if t.interfaceUp(ctx, iface) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bootstrap: starting openvpn: %w", err)
		}
		return fmt.Errorf("bootstrap: openvpn start failed: %s", res.Details())
	}

	return t.waitForInterface(ctx, iface, timeout)
}

func dirWritable(path string) bool {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false
	}
	return true
}

type hysteria2Params struct {
	password string
	server   string
	port     string
	sni      string
}

func parseHysteria2URI(uri string) (hysteria2Params, error) {
	const prefix = "hysteria2://"
	if !strings.HasPrefix(uri, prefix) {
		return hysteria2Params{}, fmt.Errorf("bootstrap: hysteria2 uri must start with %q", prefix)
	}

	rest := uri[len(prefix):]
	at := strings.Index(rest, "@")
	if at < 0 {
		return hysteria2Params{}, fmt.Errorf("bootstrap: hysteria2 uri missing password (format: hysteria2://password@server:port)")
	}
	password := rest[:at]
	rest = rest[at+1:]

	hostPart := rest
	query := ""
	if q := strings.Index(rest, "?"); q >= 0 {
		hostPart = rest[:q]
		query = rest[q+1:]
	}
	if slash := strings.Index(hostPart, "/"); slash >= 0 {
		hostPart = hostPart[:slash]
	}

	host, port, err := net.SplitHostPort(hostPart)
	if err != nil {
		return hysteria2Params{}, fmt.Errorf("bootstrap: hysteria2 uri missing host:port: %w", err)
	}

	sni := host
	for _, kv := range strings.Split(query, "&") {
		if strings.HasPrefix(kv, "sni=") {
			sni = strings.TrimPrefix(kv, "sni=")
		}
	}

	if password == "" || host == "" || port == "" {
		return hysteria2Params{}, fmt.Errorf("bootstrap: hysteria2 uri incomplete")
	}
	return hysteria2Params{password: password, server: host, port: port, sni: sni}, nil
}

// hysteria2Config mirrors the upstream client's YAML schema closely enough
// for our generated config to be accepted as-is.
type hysteria2Config struct {
	Server string            `yaml:"server"`
	Auth   string            `yaml:"auth"`
	TLS    hysteria2TLS      `yaml:"tls"`
	SOCKS5 hysteria2Listener `yaml:"socks5"`
	HTTP   hysteria2Listener `yaml:"http"`
}

type hysteria2TLS struct {
	SNI      string `yaml:"sni"`
	Insecure bool   `yaml:"insecure"`
}

type hysteria2Listener struct {
	Listen string `yaml:"listen"`
}

func (t *Tunnel) ensureHysteria2Up(ctx context.Context, timeout time.Duration) error {
	if err := t.requireBinary("hysteria"); err != nil {
		return err
	}

	params, err := parseHysteria2URI(t.descriptor.URI)
	if err != nil {
		return err
	}

	cfg := hysteria2Config{
		Server: fmt.Sprintf("%s:%s", params.server, params.port),
		Auth:   params.password,
		TLS:    hysteria2TLS{SNI: params.sni, Insecure: false},
		SOCKS5: hysteria2Listener{Listen: fmt.Sprintf("127.0.0.1:%d", t.descriptor.SOCKS5Port)},
		HTTP:   hysteria2Listener{Listen: fmt.Sprintf("127.0.0.1:%d", t.descriptor.HTTPPort)},
	}

	config, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: marshalling hysteria2 config: %w", err)
	}

	if err := os.WriteFile(t.descriptor.ConfigPath, config, 0o600); err != nil {
		return fmt.Errorf("bootstrap: writing hysteria2 config: %w", err)
	}

	if portOpen("127.0.0.1", t.descriptor.SOCKS5Port) {
		return nil // already running
	}

	if err := spawnDetached("hysteria", "client", "-c", t.descriptor.ConfigPath); err != nil {
		return fmt.Errorf("bootstrap: starting hysteria2 client: %w", err)
	}

	return waitForPort("127.0.0.1", t.descriptor.SOCKS5Port, timeout)
}

func portOpen(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func waitForPort(host string, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if portOpen(host, port) {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("bootstrap: port %s:%d did not become available within %s", host, port, timeout)
}
