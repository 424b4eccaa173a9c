package commands

import (
	"context"
	"os/user"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/client"

	"github.com/spf13/cobra"
)

// NewBreakerCmd creates and returns the breaker parent command.
// The command provides subcommands for the circuit breaker guarding the
// embedding provider:
//   - status: Show breaker state, failure count, and operator recommendation
//   - reset: Force the breaker closed (audited)
func NewBreakerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect and reset the provider circuit breaker",
	}

	// Add subcommands
	cmd.AddCommand(NewBreakerStatusCmd())
	cmd.AddCommand(NewBreakerResetCmd())

	return cmd
}

// NewBreakerStatusCmd creates and returns the breaker status command.
func NewBreakerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the circuit breaker state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.BreakerStatus(ctx)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}
}

// NewBreakerResetCmd creates and returns the breaker reset command.
// Resetting is an audited operator action: the server records who forced the
// breaker closed and why, so the reason flag is mandatory.
func NewBreakerResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Force the circuit breaker closed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			if reason == "" {
				_ = client.WriteError(
					cmd.OutOrStdout(),
					errCodeInvalidArgument,
					"--reason is required: breaker resets are audited",
					nil,
				)
				return nil
			}

			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			actor, _ := cmd.Flags().GetString("actor")
			if actor == "" {
				actor = currentUsername()
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.ResetBreaker(ctx, dto.CircuitBreakerResetRequest{
				Actor:  actor,
				Reason: reason,
			})
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().String("actor", "", "Operator identity recorded on the audit event (default: current OS user)")
	cmd.Flags().String("reason", "", "Why the breaker is being reset (required)")

	return cmd
}

// currentUsername resolves the local account name for the audit record,
// falling back to a placeholder when the lookup fails.
func currentUsername() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}
