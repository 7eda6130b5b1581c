package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/vpn/cmdrunner"
)

type loopbackListener struct {
	net.Listener
	port int
}

func newLoopbackListener(t *testing.T) *loopbackListener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open loopback listener: %v", err)
	}
	return &loopbackListener{Listener: ln, port: ln.Addr().(*net.TCPAddr).Port}
}

type fakeRunner struct {
	responses map[string]cmdrunner.Result
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string]cmdrunner.Result{}}
}

func key(name string, args ...string) string {
	s := name
	for _, a := range args {
		s += " " + a
	}
	return s
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (cmdrunner.Result, error) {
	if res, ok := f.responses[key(name, args...)]; ok {
		return res, nil
	}
	return cmdrunner.Result{ExitCode: 1}, nil
}

func (f *fakeRunner) RunWithStdin(ctx context.Context, stdin string, name string, args ...string) (cmdrunner.Result, error) {
	return f.Run(ctx, name, args...)
}

func (f *fakeRunner) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

func TestProbe_DisabledReturnsDisabledStatus(t *testing.T) {
	c := New(newFakeRunner(), Config{Enabled: false}, nil)
	report := c.Probe(context.Background())
	if report.Status != domain.HealthDisabled {
		t.Fatalf("expected Disabled, got %s", report.Status)
	}
}

func TestProbe_WireGuardInterfaceDown(t *testing.T) {
	r := newFakeRunner()
	r.responses[key("ip", "addr", "show", "dev", "wg0")] = cmdrunner.Result{ExitCode: 0, Stdout: "2: wg0: <POINTOPOINT> mtu 1420 state DOWN"}

	c := New(r, Config{Enabled: true, Descriptor: domain.TunnelDescriptor{Kind: domain.TunnelWireGuard, InterfaceName: "wg0"}}, nil)
	report := c.Probe(context.Background())
	if report.Interface == nil || report.Interface.IsUp {
		t.Fatalf("expected interface reported down, got %+v", report.Interface)
	}
	if report.Status != domain.HealthDegraded {
		t.Fatalf("expected Degraded overall status, got %s", report.Status)
	}
}

func TestCheckWireGuard_ParsesDumpOutput(t *testing.T) {
	r := newFakeRunner()
	dump := "privkeyhash\tpubkeyhash\t51820\toff\n" +
		"peerkey1\t(none)\t203.0.113.5:51820\t0.0.0.0/0\t1700000000\t1024\t2048\toff\n"
	r.responses[key("wg", "show", "wg0", "dump")] = cmdrunner.Result{ExitCode: 0, Stdout: dump}

	c := New(r, Config{Enabled: true, Descriptor: domain.TunnelDescriptor{Kind: domain.TunnelWireGuard, InterfaceName: "wg0"}}, nil)
	overview, err := c.checkWireGuard(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if overview.ListenPort != 51820 {
		t.Fatalf("expected listen port 51820, got %d", overview.ListenPort)
	}
	if len(overview.Peers) != 1 || overview.Peers[0].TransferRxBytes != 1024 || overview.Peers[0].TransferTxBytes != 2048 {
		t.Fatalf("unexpected peer parse result: %+v", overview.Peers)
	}
}

func TestCheckHysteria2_DetectsRunningProcessAndOpenPort(t *testing.T) {
	ln := newLoopbackListener(t)
	defer ln.Close()

	r := newFakeRunner()
	r.responses[key("pgrep", "-f", "hysteria")] = cmdrunner.Result{ExitCode: 0, Stdout: "1234\n"}

	c := New(r, Config{
		Enabled: true,
		Descriptor: domain.TunnelDescriptor{
			Kind:       domain.TunnelHysteria2,
			SOCKS5Port: ln.port,
		},
	}, nil)
	status := c.checkHysteria2(context.Background())
	if !status.IsRunning {
		t.Fatal("expected hysteria2 process to be detected as running")
	}
	if !status.SOCKS5Accessible {
		t.Fatal("expected the SOCKS5 port to be reported accessible")
	}
}

func TestProbeExternal_SkippedWithoutURL(t *testing.T) {
	c := New(newFakeRunner(), Config{Enabled: true}, nil)
	result := c.probeExternal(context.Background())
	if result.Outcome != domain.ProbeSkipped {
		t.Fatalf("expected Skipped, got %s", result.Outcome)
	}
}

func TestProbeExternal_OkBelow500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(newFakeRunner(), Config{Enabled: true, ProbeURL: srv.URL}, srv.Client())
	result := c.probeExternal(context.Background())
	if result.Outcome != domain.ProbeOk {
		t.Fatalf("expected Ok, got %s", result.Outcome)
	}
}

func TestProbeExternal_FailOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(newFakeRunner(), Config{Enabled: true, ProbeURL: srv.URL}, srv.Client())
	result := c.probeExternal(context.Background())
	if result.Outcome != domain.ProbeFail {
		t.Fatalf("expected Fail, got %s", result.Outcome)
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]uint64{
		"512 B":   512,
		"1 KiB":   1024,
		"1.5 MiB": uint64(1.5 * (1 << 20)),
		"2 GiB":   2 << 30,
	}
	for input, want := range cases {
		got, err := parseByteSize(input)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parseByteSize(%q) = %d, want %d", input, got, want)
		}
	}
}
