package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var pingTimeout time.Duration

// pingCmd checks whether conduitd is reachable and healthy.
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is reachable",
	Long:  `Connect to the conduitd endpoint and run a health check.`,
	RunE:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 0, "connection timeout (default from config)")
}

func runPing(cmd *cobra.Command, args []string) error {
	timeout := pingTimeout
	if timeout == 0 {
		timeout = cfg.DialTimeout
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	conn, err := dialDaemon()
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	defer conn.Close()

	log.Debug("pinging daemon", "endpoint", cfg.Endpoint, "timeout", timeout)

	start := time.Now()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", cfg.Endpoint, err)
	}
	rtt := time.Since(start)

	fmt.Printf("%s: %s (%.2fms)\n", cfg.Endpoint, resp.GetStatus(), float64(rtt.Microseconds())/1000)
	return nil
}
