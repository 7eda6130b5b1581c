// Package version carries the build-time identity surfaced at GET
// /internal/version and printed at startup.
package version

import (
	"fmt"
	"log"
	"runtime"

	"github.com/thushan-yassen/egressgw/theme"
)

var (
	Name        = "egressgw"
	Authors     = "Yassen Fernando"
	Description = "Internal LLM API gateway with egress VPN controller"
	Edition     = "oss"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
	Runtime     = runtime.Version()
)

const (
	GithubHomeText  = "github.com/thushan-yassen/egressgw"
	GithubHomeUri   = "https://github.com/thushan-yassen/egressgw"
	GithubLatestUri = "https://github.com/thushan-yassen/egressgw/releases/latest"
)

// Capabilities lists the request-handling features this build exposes.
var Capabilities = []string{
	"provider-pool",
	"rate-limiting",
	"circuit-breaker",
	"egress-vpn",
}

// SupportedBackends lists the upstream LLM wire formats the pool can speak.
var SupportedBackends = []string{"gemini", "openrouter"}

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	homepage := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latest := theme.Hyperlink(GithubLatestUri, Version)

	vlog.Println(theme.ColourSplash(fmt.Sprintf("%s %s (%s)", Name, Version, Edition)))
	vlog.Println(theme.StyleUrl(homepage) + "  " + theme.ColourVersion(latest))

	if extendedInfo {
		vlog.Printf(" Commit: %s\n", Commit)
		vlog.Printf("  Built: %s\n", Date)
		vlog.Printf("  Using: %s\n", User)
		vlog.Printf("     Go: %s\n", Runtime)
	}
}
