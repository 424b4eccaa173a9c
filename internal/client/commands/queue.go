package commands

import (
	"context"
	"io"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/client"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Error messages for queue command argument validation.
const (
	errMsgRequiresOneArgument = "requires exactly 1 argument"
	errMsgInvalidItemUUID     = "invalid item ID: must be a valid UUID"
)

// createClientFromFlags creates and validates a client from command flags.
// It handles configuration validation and client creation, writing errors
// to the provided output if validation or creation fails.
// Returns the client and true if successful, or nil and false on failure.
func createClientFromFlags(cmd *cobra.Command, out io.Writer) (*client.Client, bool) {
	apiURL, _ := cmd.Flags().GetString(flagAPIURL)
	timeout, _ := cmd.Flags().GetDuration(flagTimeout)

	cfg := &client.Config{APIURL: apiURL, Timeout: timeout}
	if err := cfg.Validate(); err != nil {
		_ = client.WriteError(out, errCodeInvalidConfig, err.Error(), nil)
		return nil, false
	}

	c, err := client.NewClient(cfg)
	if err != nil {
		_ = client.WriteError(out, errCodeClientError, err.Error(), nil)
		return nil, false
	}

	return c, true
}

// NewQueueCmd creates and returns the queue parent command.
// The command provides subcommands for working with the embedding queue:
//   - enqueue: Submit an item for embedding generation
//   - get: Get a single queue item by ID
//   - status: Show per-status queue depth counts
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Enqueue and inspect embedding queue items",
	}

	// Add subcommands
	cmd.AddCommand(NewQueueEnqueueCmd())
	cmd.AddCommand(NewQueueGetCmd())
	cmd.AddCommand(NewQueueStatusCmd())

	return cmd
}

// NewQueueEnqueueCmd creates and returns the queue enqueue command.
// The command submits one source row for embedding generation and can
// optionally wait for the item to reach a terminal status.
func NewQueueEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a source row for embedding generation",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				_ = client.WriteError(cmd.OutOrStdout(), errCodeInvalidArgument, errMsgRequiresOneArgument, nil)
				return nil
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return nil
			}

			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			sourceType, _ := cmd.Flags().GetString("source-type")
			operation, _ := cmd.Flags().GetString("operation")
			priority, _ := cmd.Flags().GetString("priority")
			maxRetries, _ := cmd.Flags().GetInt("max-retries")

			req := dto.EnqueueItemRequest{
				SourceType: sourceType,
				SourceID:   args[0],
				Operation:  operation,
				Priority:   priority,
				MaxRetries: maxRetries,
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.EnqueueItem(ctx, req)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			wait, _ := cmd.Flags().GetBool("wait")
			if !wait {
				return client.WriteSuccess(cmd.OutOrStdout(), result)
			}

			pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
			waitTimeout, _ := cmd.Flags().GetDuration("wait-timeout")

			poller, err := client.NewPoller(c, &client.PollerConfig{
				Interval: pollInterval,
				MaxWait:  waitTimeout,
			})
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			// Polling gets its own context; the wait budget usually exceeds
			// the per-request timeout.
			pollCtx, pollCancel := context.WithTimeout(cmd.Context(), waitTimeout)
			defer pollCancel()

			item, err := poller.WaitForCompletion(pollCtx, result.ID, cmd.ErrOrStderr())
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), item)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), item)
		},
	}

	// Add optional flags
	cmd.Flags().String("source-type", "receipts", "Source table the row lives in")
	cmd.Flags().String("operation", "INSERT", "Triggering operation (INSERT or UPDATE)")
	cmd.Flags().String("priority", "", "Item priority (high, medium, low)")
	cmd.Flags().Int("max-retries", 0, "Maximum retry attempts before the item fails")
	cmd.Flags().BoolP("wait", "w", false, "Wait for the item to reach a terminal status")
	cmd.Flags().Duration("poll-interval", client.DefaultPollInterval, "Interval between status polls")
	cmd.Flags().Duration("wait-timeout", client.DefaultMaxWait, "Maximum time to wait for completion")

	return cmd
}

// NewQueueGetCmd creates and returns the queue get command.
// The command retrieves a single queue item by UUID.
func NewQueueGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a queue item by ID",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				_ = client.WriteError(cmd.OutOrStdout(), errCodeInvalidArgument, errMsgRequiresOneArgument, nil)
				return nil
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return nil
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				_ = client.WriteError(
					cmd.OutOrStdout(),
					errCodeInvalidArgument,
					errMsgInvalidItemUUID,
					nil,
				)
				return nil
			}

			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.GetItem(ctx, id)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}

	return cmd
}

// NewQueueStatusCmd creates and returns the queue status command.
// The command reports per-status depth counts for the queue.
func NewQueueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, ok := createClientFromFlags(cmd, cmd.OutOrStdout())
			if !ok {
				return nil
			}

			timeout, _ := cmd.Flags().GetDuration(flagTimeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := c.QueueStatus(ctx)
			if err != nil {
				code := determineErrorCode(err)
				_ = client.WriteError(cmd.OutOrStdout(), code, err.Error(), nil)
				return nil
			}

			return client.WriteSuccess(cmd.OutOrStdout(), result)
		},
	}
}
