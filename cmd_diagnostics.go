package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thushan-yassen/egressgw/internal/app"
	"github.com/thushan-yassen/egressgw/internal/config"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/logger"
	"github.com/thushan-yassen/egressgw/pkg/format"
)

// probeVPNCmd builds a one-shot Application from the current configuration
// and runs the C9 health probe without starting the HTTP server or bringing
// the tunnel up.
func probeVPNCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe-vpn",
		Short: "Run a single VPN health probe and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildDiagnosticApp()
			if err != nil {
				return err
			}

			report := application.ProbeVPN(context.Background())
			if report == nil {
				return fmt.Errorf("vpn controller is disabled in configuration")
			}

			if asJSON {
				return printJSON(report)
			}
			printHealthReport(report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON report instead of a human summary")
	return cmd
}

func printHealthReport(r *domain.HealthReport) {
	fmt.Printf("status:    %s (%s)\n", r.Status, r.VPNType)
	if r.Interface != nil {
		fmt.Printf("interface: %s up=%v\n", r.Interface.Name, r.Interface.IsUp)
	}
	if r.WireGuard != nil {
		for _, peer := range r.WireGuard.Peers {
			fmt.Printf("peer:      %s rx=%s tx=%s handshake=%s\n",
				peer.Endpoint,
				format.Bytes(peer.TransferRxBytes),
				format.Bytes(peer.TransferTxBytes),
				peer.LatestHandshake)
		}
	}
	if r.Probe.Domain != "" {
		fmt.Printf("probe:     %s %s latency=%s\n", r.Probe.Domain, r.Probe.Outcome, format.Latency(r.Probe.LatencyMillis))
	}
	for _, d := range r.Details {
		fmt.Printf("detail:    %s\n", d)
	}
}

// poolStatsCmd builds a one-shot Application and prints the C3 key-pool
// snapshot, without dispatching any provider call.
func poolStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pool-stats",
		Short: "Print per-key provider pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildDiagnosticApp()
			if err != nil {
				return err
			}
			return printJSON(application.PoolStats())
		},
	}
}

func buildDiagnosticApp() (*app.Application, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	lcfg := buildLoggerConfig(cfg)
	lcfg.Level = logger.LogLevelError
	lcfg.FileOutput = false

	_, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise logger: %w", err)
	}
	defer cleanup()

	return app.New(cfg, styledLogger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
