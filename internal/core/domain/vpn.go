package domain

import "fmt"

// TunnelKind discriminates the four supported egress backends.
type TunnelKind string

const (
	TunnelWireGuard TunnelKind = "wireguard"
	TunnelAWG       TunnelKind = "awg"
	TunnelOpenVPN   TunnelKind = "openvpn"
	TunnelHysteria2 TunnelKind = "hysteria2"
)

// RouteMode selects the routing discipline applied once the tunnel is up.
type RouteMode string

const (
	RouteModeAll     RouteMode = "all"
	RouteModeDomains RouteMode = "domains"
	RouteModeCIDR    RouteMode = "cidr"
)

// TunnelDescriptor configures a single tunnel backend. Not every field
// applies to every kind; bootstrap.go validates per-kind requirements.
type TunnelDescriptor struct {
	Kind          TunnelKind
	ConfigPath    string
	InterfaceName string

	// Hysteria2-only.
	URI         string
	SOCKS5Port  int
	HTTPPort    int
}

// ProxyURL returns the SOCKS5 proxy URL contributed by Hysteria2, or "" for
// tunnel kinds that program routes instead.
func (t TunnelDescriptor) ProxyURL() string {
	if t.Kind != TunnelHysteria2 || t.SOCKS5Port == 0 {
		return ""
	}
	return fmt.Sprintf("socks5://127.0.0.1:%d", t.SOCKS5Port)
}

// RouteState snapshots the default route present before the tunnel takes it
// over, so the route programmer can restore it in split-tunnel mode.
type RouteState struct {
	Gateway string
	Dev     string
	Metric  int
}

// HealthStatus is the overall VPN health verdict.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "Healthy"
	HealthDegraded HealthStatus = "Degraded"
	HealthDisabled HealthStatus = "Disabled"
)

// ProbeOutcome is the result of the live reachability probe.
type ProbeOutcome string

const (
	ProbeOk      ProbeOutcome = "Ok"
	ProbeFail    ProbeOutcome = "Fail"
	ProbeSkipped ProbeOutcome = "Skipped"
)

type InterfaceStatus struct {
	Name      string   `json:"name"`
	IsUp      bool     `json:"isUp"`
	State     string   `json:"state,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

type WireGuardPeer struct {
	PublicKey       string `json:"publicKey"`
	Endpoint        string `json:"endpoint,omitempty"`
	AllowedIPs      []string `json:"allowedIps,omitempty"`
	LatestHandshake string `json:"latestHandshake,omitempty"`
	TransferRxBytes uint64 `json:"transferRxBytes"`
	TransferTxBytes uint64 `json:"transferTxBytes"`
}

type WireGuardOverview struct {
	PublicKey  string          `json:"publicKey"`
	ListenPort int             `json:"listenPort"`
	Peers      []WireGuardPeer `json:"peers"`
}

type RouteEntry struct {
	Destination string `json:"destination"`
	Gateway     string `json:"gateway,omitempty"`
	Dev         string `json:"dev,omitempty"`
}

type Hysteria2Status struct {
	IsRunning       bool   `json:"isRunning"`
	SOCKS5Accessible bool  `json:"socks5Accessible"`
	HTTPAccessible  bool   `json:"httpAccessible"`
	ServerRef       string `json:"serverRef,omitempty"`
}

type ProbeResult struct {
	Domain        string       `json:"domain"`
	Outcome       ProbeOutcome `json:"outcome"`
	HTTPStatus    int          `json:"httpStatus,omitempty"`
	LatencyMillis int64        `json:"latencyMillis,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// HealthReport is the full C9 snapshot returned by ProbeVPN and served at
// GET /api/vpn/health.
type HealthReport struct {
	Status    HealthStatus       `json:"status"`
	VPNType   TunnelKind         `json:"vpnType,omitempty"`
	Interface *InterfaceStatus   `json:"interface,omitempty"`
	WireGuard *WireGuardOverview `json:"wireguard,omitempty"`
	Routes    []RouteEntry       `json:"routes,omitempty"`
	Hysteria2 *Hysteria2Status   `json:"hysteria2,omitempty"`
	Probe     ProbeResult        `json:"probe"`
	Details   []string           `json:"details,omitempty"`
}
