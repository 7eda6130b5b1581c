package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/vpn/cmdrunner"
	"github.com/thushan-yassen/egressgw/internal/vpn/health"
	"github.com/thushan-yassen/egressgw/internal/vpn/route"
)

type fakeRunner struct {
	responses map[string]cmdrunner.Result
	calls     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string]cmdrunner.Result{}}
}

func runnerKey(name string, args ...string) string {
	s := name
	for _, a := range args {
		s += " " + a
	}
	return s
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (cmdrunner.Result, error) {
	k := runnerKey(name, args...)
	f.calls = append(f.calls, k)
	if res, ok := f.responses[k]; ok {
		return res, nil
	}
	return cmdrunner.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) RunWithStdin(ctx context.Context, stdin string, name string, args ...string) (cmdrunner.Result, error) {
	return f.Run(ctx, name, args...)
}

func (f *fakeRunner) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

func (f *fakeRunner) has(call string) bool {
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

// Scenario 5: domain-mode split tunnel with a bypass CIDR. A configured
// Google API domain contributes the three well-known Anycast blocks routed
// via the tunnel interface; the bypass CIDR routes via the pre-existing
// gateway; and the original default route is restored afterwards.
func TestScenario_VPNSplitTunnelDomains(t *testing.T) {
	r := newFakeRunner()
	r.responses[runnerKey("ip", "route", "show", "default")] = cmdrunner.Result{
		ExitCode: 0,
		Stdout:   "default via 192.168.1.1 dev eth0",
	}

	p := route.New(r, route.Config{
		Domains:     []string{"generativelanguage.googleapis.com"},
		BypassCIDRs: []string{"10.0.0.0/8"},
	})

	if err := p.Apply(context.Background(), domain.RouteModeDomains, "wg0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, cidr := range []string{"142.250.0.0/15", "172.217.0.0/16", "216.58.192.0/19"} {
		if !r.has(runnerKey("ip", "route", "replace", cidr, "dev", "wg0")) {
			t.Fatalf("expected a tunnel-interface route for Google anycast block %s, calls: %v", cidr, r.calls)
		}
	}
	if !r.has(runnerKey("ip", "route", "replace", "10.0.0.0/8", "via", "192.168.1.1", "dev", "eth0")) {
		t.Fatalf("expected the bypass CIDR routed via the original gateway, calls: %v", r.calls)
	}
	if !r.has(runnerKey("ip", "route", "replace", "default", "via", "192.168.1.1", "dev", "eth0")) {
		t.Fatalf("expected the original default route restored, calls: %v", r.calls)
	}
}

// Scenario 6: health probe against the tunnel routed in scenario 5. A 404
// response from the probe URL still counts as Healthy (only >=500 degrades
// it), and the wg peer table is read back via the `wg show ... dump`
// fallback since no real WireGuard device exists in this test.
func TestScenario_HealthProbeOkOn404(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer probe.Close()

	r := newFakeRunner()
	r.responses[runnerKey("ip", "addr", "show", "dev", "wg0")] = cmdrunner.Result{
		ExitCode: 0,
		Stdout:   "2: wg0: <POINTOPOINT,UP,LOWER_UP> mtu 1420 state UNKNOWN",
	}
	dump := "privkeyhash\tpubkeyhash\t51820\toff\n" +
		"peerkey1\t(none)\t203.0.113.5:51820\t0.0.0.0/0\t1700000000\t1024\t2048\toff\n"
	r.responses[runnerKey("wg", "show", "wg0", "dump")] = cmdrunner.Result{ExitCode: 0, Stdout: dump}
	r.responses[runnerKey("ip", "route", "show", "dev", "wg0")] = cmdrunner.Result{
		ExitCode: 0,
		Stdout:   "142.250.0.0/15 dev wg0\n172.217.0.0/16 dev wg0\n216.58.192.0/19 dev wg0",
	}

	checker := health.New(r, health.Config{
		Enabled: true,
		Descriptor: domain.TunnelDescriptor{
			Kind:          domain.TunnelWireGuard,
			InterfaceName: "wg0",
		},
		ProbeURL: probe.URL,
	}, probe.Client())

	report := checker.Probe(context.Background())
	if report.Status != domain.HealthHealthy {
		t.Fatalf("expected Healthy status (404 < 500), got %s; report: %+v", report.Status, report)
	}
	if report.Probe.Outcome != domain.ProbeOk {
		t.Fatalf("expected probe outcome Ok, got %s", report.Probe.Outcome)
	}
	if report.Probe.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected probe HTTP status 404, got %d", report.Probe.HTTPStatus)
	}
	if report.WireGuard == nil || len(report.WireGuard.Peers) != 1 {
		t.Fatalf("expected exactly one WireGuard peer, got %+v", report.WireGuard)
	}
}
