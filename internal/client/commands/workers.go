package commands

import (
	"context"

	"embedqueue/internal/client"

	"github.com/spf13/cobra"
)

// NewWorkersCmd creates and returns the workers parent command.
// The command provides subcommands for controlling the API process's
// embedded queue worker:
//   - start: Start the worker
//   - stop: Stop the worker and report its counters
//   - status: Show the worker's run state
func NewWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Control the embedded queue worker",
	}

	// Add subcommands
	cmd.AddCommand(NewWorkersStartCmd())
	cmd.AddCommand(NewWorkersStopCmd())
	cmd.AddCommand(NewWorkersStatusCmd())

	return cmd
}

// NewWorkersStartCmd creates and returns the workers start command.
func NewWorkersStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the embedded queue worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.StartWorker(ctx)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}
}

// NewWorkersStopCmd creates and returns the workers stop command.
// The response carries the stopped worker's processed and error counters.
func NewWorkersStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the embedded queue worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.StopWorker(ctx)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}
}

// NewWorkersStatusCmd creates and returns the workers status command.
func NewWorkersStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the embedded worker's run state and counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.WorkerStatus(ctx)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}
}
