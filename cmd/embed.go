package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/service"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"

	"github.com/spf13/cobra"
)

// embedCmd implements: embedqueue embed --source-id <id> [--source-id <id> ...]
// [--priority high] [--metadata '{...}'] [--out out.json]. Requests bypass the
// durable queue but still flow through the in-process task manager, so a
// multi-row invocation gets priority ordering and the configured concurrency
// bound instead of a flat sequential loop.
func newEmbedCmd() *cobra.Command {
	var sourceIDs []string
	var priorityName string
	var processAllFields bool
	var processLineItems bool
	var metadataJSON string
	var outPath string

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Send embedding requests straight to the provider, bypassing the durable queue",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runEmbed(sourceIDs, priorityName, processAllFields, processLineItems, metadataJSON, outPath)
		},
	}

	cmd.Flags().StringArrayVar(&sourceIDs, "source-id", nil, "Source row ID to embed (repeatable)")
	cmd.Flags().StringVar(&priorityName, "priority", "medium", "Dispatch priority: high, medium, or low")
	cmd.Flags().BoolVar(&processAllFields, "process-all-fields", true, "Embed every configured field of each row")
	cmd.Flags().BoolVar(&processLineItems, "process-line-items", false, "Also embed each row's line items")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "Optional raw JSON metadata passed through to the provider")
	cmd.Flags().StringVar(&outPath, "out", "", "Optional path to write JSON output")

	_ = cmd.MarkFlagRequired("source-id")

	return cmd
}

// runEmbed performs: build requests -> dispatch through the task manager ->
// output JSON.
func runEmbed(sourceIDs []string, priorityName string, processAllFields, processLineItems bool, metadataJSON, outPath string) error {
	cfg := GetConfig()

	timeout := cfg.Provider.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	priority, err := valueobject.NewPriority(priorityName)
	if err != nil {
		return fmt.Errorf("invalid --priority: %w", err)
	}

	requests, err := buildEmbeddingRequests(sourceIDs, processAllFields, processLineItems, metadataJSON)
	if err != nil {
		return err
	}

	provider := createEmbeddingProvider(cfg)

	outcomes := dispatchEmbeds(cfg.TaskManager, provider, priority, requests, timeout)
	if err := outputEmbedResults(cfg.Provider.Model, priority, requests, outcomes, outPath); err != nil {
		return err
	}

	for _, outcome := range outcomes {
		if outcome.Err == "" {
			return nil
		}
	}
	return errors.New("all embedding requests failed")
}

// buildEmbeddingRequests validates the flags and assembles one provider
// request per source ID. Duplicate IDs collapse to a single request.
func buildEmbeddingRequests(
	sourceIDs []string,
	processAllFields, processLineItems bool,
	metadataJSON string,
) ([]outbound.EmbeddingRequest, error) {
	var metadata json.RawMessage
	if metadataJSON != "" {
		if !json.Valid([]byte(metadataJSON)) {
			return nil, errors.New("--metadata must be valid JSON")
		}
		metadata = json.RawMessage(metadataJSON)
	}

	seen := make(map[string]bool, len(sourceIDs))
	requests := make([]outbound.EmbeddingRequest, 0, len(sourceIDs))
	for _, sourceID := range sourceIDs {
		sourceID = strings.TrimSpace(sourceID)
		if sourceID == "" || seen[sourceID] {
			continue
		}
		seen[sourceID] = true
		requests = append(requests, outbound.EmbeddingRequest{
			SourceID:         sourceID,
			ProcessAllFields: processAllFields,
			ProcessLineItems: processLineItems,
			QueueMode:        outbound.QueueModeImmediate,
			WorkerID:         "cli",
			Metadata:         metadata,
		})
	}
	if len(requests) == 0 {
		return nil, errors.New("--source-id is required")
	}

	return requests, nil
}

// embedOutcome records how one dispatched request fared.
type embedOutcome struct {
	SourceID            string
	Success             bool
	TotalTokens         int
	EmbeddingsGenerated int
	DurationMS          int64
	Err                 string
}

// dispatchEmbeds routes the requests through an in-process task manager and
// waits for every one to finish. Outcomes are keyed by source ID; requests
// must already be deduplicated.
func dispatchEmbeds(
	tmCfg config.TaskManagerConfig,
	provider outbound.EmbeddingProvider,
	priority valueobject.Priority,
	requests []outbound.EmbeddingRequest,
	timeout time.Duration,
) map[string]embedOutcome {
	var mu sync.Mutex
	var wg sync.WaitGroup
	outcomes := make(map[string]embedOutcome, len(requests))

	record := func(outcome embedOutcome) {
		mu.Lock()
		outcomes[outcome.SourceID] = outcome
		mu.Unlock()
	}

	manager := service.NewInProcessTaskManager(tmCfg, func(ctx context.Context, request outbound.EmbeddingRequest) error {
		defer wg.Done()

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		result, err := provider.GenerateEmbeddings(callCtx, request)
		outcome := embedOutcome{
			SourceID:   request.SourceID,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			outcome.Err = err.Error()
		} else {
			outcome.Success = result.Success
			outcome.TotalTokens = result.TotalTokens
			outcome.EmbeddingsGenerated = result.EmbeddingsGenerated
		}
		record(outcome)
		return err
	})

	for _, request := range requests {
		wg.Add(1)
		if _, err := manager.AddTask(priority, request); err != nil {
			wg.Done()
			record(embedOutcome{SourceID: request.SourceID, Err: err.Error()})
		}
	}
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Task manager shutdown failed", slogger.Fields{"error": err.Error()})
	}

	return outcomes
}

// outputEmbedResults formats and writes the per-source outcomes. A single
// source keeps the flat payload shape; multiple sources get a results array
// in input order.
func outputEmbedResults(
	model string,
	priority valueobject.Priority,
	requests []outbound.EmbeddingRequest,
	outcomes map[string]embedOutcome,
	outPath string,
) error {
	entry := func(outcome embedOutcome) map[string]any {
		m := map[string]any{
			"source_id":            outcome.SourceID,
			"success":              outcome.Success,
			"total_tokens":         outcome.TotalTokens,
			"embeddings_generated": outcome.EmbeddingsGenerated,
			"duration_ms":          outcome.DurationMS,
		}
		if outcome.Err != "" {
			m["error"] = outcome.Err
		}
		return m
	}

	var payload map[string]any
	if len(requests) == 1 {
		payload = entry(outcomes[requests[0].SourceID])
		payload["model"] = model
	} else {
		results := make([]map[string]any, 0, len(requests))
		for _, request := range requests {
			results = append(results, entry(outcomes[request.SourceID]))
		}
		payload = map[string]any{
			"model":    model,
			"priority": priority.String(),
			"results":  results,
		}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	if outPath == "" {
		_, _ = os.Stdout.Write(data)
		_, _ = os.Stdout.WriteString("\n")
	} else {
		if err := os.WriteFile(outPath, data, 0o600); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		slogger.InfoNoCtx("Wrote embed output", slogger.Fields{"path": outPath})
	}

	return nil
}

func init() { //nolint:gochecknoinits // required by cobra for command registration
	rootCmd.AddCommand(newEmbedCmd())
}
