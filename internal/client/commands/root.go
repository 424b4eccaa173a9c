// Package commands provides CLI commands for the EmbedQueue operator client.
// It implements the cobra-based command structure with global flags and
// subcommands for interacting with the EmbedQueue API.
package commands

import (
	"embedqueue/internal/client"

	"github.com/spf13/cobra"
)

const (
	// clientVersion is the current version of the CLI client.
	clientVersion = "1.0.0"
)

// Flag names for persistent global flags.
const (
	flagAPIURL  = "api-url"
	flagTimeout = "timeout"
)

// NewRootCmd creates and returns the root command for the EmbedQueue CLI client.
// The root command establishes persistent flags (api-url, timeout) that are
// inherited by all subcommands. It sets SilenceUsage to true to prevent
// usage information from being printed on command execution errors.
//
// Subcommands:
//   - health: Check API server health status
//   - queue: Enqueue and inspect embedding queue items
//   - workers: Control the embedded queue worker
//   - breaker: Inspect and reset the provider circuit breaker
//   - metrics: Query aggregated outcome rollups
//
// Global Flags:
//   - --api-url: API server URL (default: http://localhost:8080)
//   - --timeout: Request timeout duration (default: 30s)
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "embedqueue-client",
		Short:        "CLI client for the EmbedQueue API",
		Version:      clientVersion,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String(flagAPIURL, client.DefaultAPIURL, "API server URL")
	cmd.PersistentFlags().Duration(flagTimeout, client.DefaultTimeout, "Request timeout")

	cmd.AddCommand(NewHealthCmd())
	cmd.AddCommand(NewQueueCmd())
	cmd.AddCommand(NewWorkersCmd())
	cmd.AddCommand(NewBreakerCmd())
	cmd.AddCommand(NewMetricsCmd())

	return cmd
}
