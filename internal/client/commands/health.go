package commands

import (
	"context"
	"strings"

	"embedqueue/internal/client"

	"github.com/spf13/cobra"
)

// Error codes reported in the JSON error envelope. Shared by every
// subcommand so scripted callers can branch on a stable vocabulary.
const (
	errCodeInvalidConfig   = "INVALID_CONFIG"
	errCodeClientError     = "CLIENT_ERROR"
	errCodeConnectionError = "CONNECTION_ERROR"
	errCodeTimeoutError    = "TIMEOUT_ERROR"
	errCodeServerError     = "SERVER_ERROR"
	errCodeAPIError        = "API_ERROR"
	errCodeInvalidArgument = "INVALID_ARGUMENT"
	errCodeNotFound        = "NOT_FOUND"
)

// NewHealthCmd returns the health command. It queries /health and prints
// the JSON envelope; failures are reported inside the envelope with a
// classified error code rather than as a cobra error, so usage text is
// never printed for a server problem.
func NewHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check API server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			health, err := c.Health(ctx)
			if err != nil {
				_ = client.WriteError(cmd.OutOrStdout(), determineErrorCode(err), err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), health)
		},
	}
}

// determineErrorCode classifies a request failure by its message. The
// client wraps transport and HTTP-status failures as plain errors, so
// the status code or dial failure only survives in the text.
func determineErrorCode(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return errCodeConnectionError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return errCodeTimeoutError
	case strings.Contains(msg, "404"):
		return errCodeNotFound
	case strings.Contains(msg, "500"):
		return errCodeServerError
	default:
		return errCodeAPIError
	}
}
