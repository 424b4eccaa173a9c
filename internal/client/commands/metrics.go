package commands

import (
	"context"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/client"

	"github.com/spf13/cobra"
)

// NewMetricsCmd creates and returns the metrics parent command.
// The command provides subcommands for aggregated outcome statistics:
//   - rollups: List hourly or daily rollup buckets
func NewMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Query aggregated outcome rollups",
	}

	// Add subcommands
	cmd.AddCommand(NewMetricsRollupsCmd())

	return cmd
}

// NewMetricsRollupsCmd creates and returns the metrics rollups command.
func NewMetricsRollupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollups",
		Short: "List aggregated rollup buckets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			granularity, _ := cmd.Flags().GetString("granularity")
			since, _ := cmd.Flags().GetString("since")
			limit, _ := cmd.Flags().GetInt("limit")

			query := dto.MetricsRollupQuery{
				Granularity: granularity,
				Since:       since,
				Limit:       limit,
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.ListRollups(ctx, query)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}

	// Add optional flags
	cmd.Flags().String("granularity", "hourly", "Bucket granularity (hourly or daily)")
	cmd.Flags().String("since", "", "Only include buckets starting at or after this RFC 3339 timestamp")
	cmd.Flags().Int("limit", 24, "Maximum number of buckets to return")

	return cmd
}
