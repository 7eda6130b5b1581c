package constants

import "time"

// Google Anycast ranges that a googleapis.com domain expands to in domains
// route mode. They are routed through the tunnel interface in place of
// per-query DNS results, which vary between queries for Anycast hosts.
var GoogleAnycastCIDRs = []string{
	"142.250.0.0/15",
	"172.217.0.0/16",
	"216.58.192.0/19",
}

const (
	DefaultDNSResolveAttempts = 3
	DefaultBootstrapTimeout   = 30 * time.Second
	DefaultHealthProbeTimeout = 5 * time.Second

	WireGuardSysctlPath = "net.ipv4.conf.all.src_valid_mark"
)
