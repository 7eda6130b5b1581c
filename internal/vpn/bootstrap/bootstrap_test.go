package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/vpn/cmdrunner"
)

type fakeRunner struct {
	responses map[string]cmdrunner.Result
	paths     map[string]string
	calls     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string]cmdrunner.Result{}, paths: map[string]string{}}
}

func key(name string, args ...string) string {
	s := name
	for _, a := range args {
		s += " " + a
	}
	return s
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (cmdrunner.Result, error) {
	f.calls = append(f.calls, key(name, args...))
	if res, ok := f.responses[key(name, args...)]; ok {
		return res, nil
	}
	return cmdrunner.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) RunWithStdin(ctx context.Context, stdin string, name string, args ...string) (cmdrunner.Result, error) {
	return f.Run(ctx, name, args...)
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if p, ok := f.paths[name]; ok {
		return p, nil
	}
	return "/usr/bin/" + name, nil
}

func TestEnsureWireGuardUp_SkipsWhenAlreadyUp(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "wg0.conf")
	os.WriteFile(cfg, []byte("[Interface]\n"), 0o600)

	r := newFakeRunner()
	r.responses[key("ip", "link", "show", "dev", "wg0")] = cmdrunner.Result{ExitCode: 0, Stdout: "1: wg0: <POINTOPOINT,UP,LOWER_UP> mtu 1420 state UP"}

	tun := New(r, domain.TunnelDescriptor{Kind: domain.TunnelWireGuard, ConfigPath: cfg, InterfaceName: "wg0"})
	if err := tun.Start(context.Background(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range r.calls {
		if c == "wg-quick up "+cfg {
			t.Fatal("expected wg-quick not to run when interface already up")
		}
	}
}

func TestEnsureWireGuardUp_MissingConfig(t *testing.T) {
	r := newFakeRunner()
	tun := New(r, domain.TunnelDescriptor{Kind: domain.TunnelWireGuard, ConfigPath: "/nonexistent/wg0.conf", InterfaceName: "wg0"})
	if err := tun.Start(context.Background(), time.Second); err == nil {
		t.Fatal("expected an error for a missing wireguard config")
	}
}

func TestValidateAWGConfig_MissingParams(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "awg0.conf")
	os.WriteFile(cfg, []byte("[Interface]\nPrivateKey = abc\nJc = 4\n"), 0o600)

	tun := New(newFakeRunner(), domain.TunnelDescriptor{Kind: domain.TunnelAWG, ConfigPath: cfg, InterfaceName: "awg0"})
	if err := tun.validateAWGConfig(); err == nil {
		t.Fatal("expected an error when obfuscation parameters are missing")
	}
}

func TestValidateAWGConfig_AllParamsPresent(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "awg0.conf")
	content := "[Interface]\nJc = 4\nJmin = 40\nJmax = 70\nS1 = 0\nS2 = 0\nH1 = 1\nH2 = 2\nH3 = 3\nH4 = 4\n"
	os.WriteFile(cfg, []byte(content), 0o600)

	tun := New(newFakeRunner(), domain.TunnelDescriptor{Kind: domain.TunnelAWG, ConfigPath: cfg, InterfaceName: "awg0"})
	if err := tun.validateAWGConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseHysteria2URI_Valid(t *testing.T) {
	params, err := parseHysteria2URI("hysteria2://secret@example.com:443/?sni=custom.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.password != "secret" || params.server != "example.com" || params.port != "443" || params.sni != "custom.example.com" {
		t.Fatalf("unexpected parse result: %+v", params)
	}
}

func TestParseHysteria2URI_DefaultsSNIToServer(t *testing.T) {
	params, err := parseHysteria2URI("hysteria2://secret@example.com:443/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.sni != "example.com" {
		t.Fatalf("expected sni to default to server, got %q", params.sni)
	}
}

func TestParseHysteria2URI_RejectsWrongScheme(t *testing.T) {
	if _, err := parseHysteria2URI("wireguard://secret@example.com:443"); err == nil {
		t.Fatal("expected an error for a non-hysteria2 scheme")
	}
}

func TestRunWithSysctlFallback_ToleratesAlreadySetParam(t *testing.T) {
	r := newFakeRunner()
	r.responses[key("wg-quick", "up", "cfg")] = cmdrunner.Result{
		ExitCode: 1,
		Stderr:   "sysctl: permission denied setting net.ipv4.conf.all.src_valid_mark",
	}
	r.responses[key("sysctl", "-n", wireGuardSysctlParam)] = cmdrunner.Result{ExitCode: 0, Stdout: "1"}

	tun := New(r, domain.TunnelDescriptor{Kind: domain.TunnelWireGuard})
	err := tun.runWithSysctlFallback(context.Background(), wireGuardSysctlParam, "wg-quick", "up", "cfg")
	if err != nil {
		t.Fatalf("expected fallback to tolerate an already-set sysctl param, got %v", err)
	}
}

func TestRunWithSysctlFallback_FailsWhenParamNotSet(t *testing.T) {
	r := newFakeRunner()
	r.responses[key("wg-quick", "up", "cfg")] = cmdrunner.Result{
		ExitCode: 1,
		Stderr:   "sysctl: permission denied setting net.ipv4.conf.all.src_valid_mark",
	}
	r.responses[key("sysctl", "-n", wireGuardSysctlParam)] = cmdrunner.Result{ExitCode: 0, Stdout: "0"}

	tun := New(r, domain.TunnelDescriptor{Kind: domain.TunnelWireGuard})
	err := tun.runWithSysctlFallback(context.Background(), wireGuardSysctlParam, "wg-quick", "up", "cfg")
	if err == nil {
		t.Fatal("expected an error when the sysctl param is not already set")
	}
}
