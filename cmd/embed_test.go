package cmd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"embedqueue/internal/adapter/outbound/provider"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyProvider fails requests whose source ID appears in failIDs and counts
// the peak number of in-flight calls.
type flakyProvider struct {
	failIDs  map[string]bool
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (p *flakyProvider) GenerateEmbeddings(
	_ context.Context,
	request outbound.EmbeddingRequest,
) (*outbound.EmbeddingResult, error) {
	current := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	time.Sleep(5 * time.Millisecond)
	if p.failIDs[request.SourceID] {
		return nil, errors.New("provider rejected request")
	}
	return &outbound.EmbeddingResult{Success: true, TotalTokens: 100, EmbeddingsGenerated: 1}, nil
}

func (p *flakyProvider) Ping(context.Context) error { return nil }

func embedTestConfig(maxConcurrent int) config.TaskManagerConfig {
	return config.TaskManagerConfig{MaxConcurrent: maxConcurrent, QueueCapacity: 32}
}

func TestBuildEmbeddingRequests(t *testing.T) {
	t.Run("deduplicates and trims source IDs", func(t *testing.T) {
		requests, err := buildEmbeddingRequests([]string{"rcpt-1", " rcpt-2 ", "rcpt-1", ""}, true, false, "")
		require.NoError(t, err)
		require.Len(t, requests, 2)
		assert.Equal(t, "rcpt-1", requests[0].SourceID)
		assert.Equal(t, "rcpt-2", requests[1].SourceID)
		assert.Equal(t, outbound.QueueModeImmediate, requests[0].QueueMode)
		assert.Equal(t, "cli", requests[0].WorkerID)
	})

	t.Run("rejects empty source list", func(t *testing.T) {
		_, err := buildEmbeddingRequests(nil, true, false, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--source-id")
	})

	t.Run("rejects invalid metadata", func(t *testing.T) {
		_, err := buildEmbeddingRequests([]string{"rcpt-1"}, true, false, "{not json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metadata")
	})
}

// TestDispatchEmbeds_AllSourcesComplete verifies that every request handed to
// the task manager produces an outcome, successes and failures alike.
func TestDispatchEmbeds_AllSourcesComplete(t *testing.T) {
	sourceIDs := []string{"rcpt-a", "rcpt-b", "rcpt-c", "rcpt-d"}
	requests, err := buildEmbeddingRequests(sourceIDs, true, false, "")
	require.NoError(t, err)

	p := &flakyProvider{failIDs: map[string]bool{"rcpt-c": true}}
	outcomes := dispatchEmbeds(embedTestConfig(2), p, valueobject.PriorityMedium, requests, time.Second)

	require.Len(t, outcomes, len(sourceIDs))
	for _, id := range sourceIDs {
		outcome, ok := outcomes[id]
		require.True(t, ok, "missing outcome for %s", id)
		if id == "rcpt-c" {
			assert.False(t, outcome.Success)
			assert.Contains(t, outcome.Err, "rejected")
		} else {
			assert.True(t, outcome.Success)
			assert.Empty(t, outcome.Err)
			assert.Equal(t, 100, outcome.TotalTokens)
		}
	}
}

// TestDispatchEmbeds_RespectsConcurrencyBound verifies the manager's
// semaphore caps in-flight provider calls.
func TestDispatchEmbeds_RespectsConcurrencyBound(t *testing.T) {
	var sourceIDs []string
	for i := range 12 {
		sourceIDs = append(sourceIDs, string(rune('a'+i)))
	}
	requests, err := buildEmbeddingRequests(sourceIDs, true, false, "")
	require.NoError(t, err)

	p := &flakyProvider{}
	outcomes := dispatchEmbeds(embedTestConfig(2), p, valueobject.PriorityHigh, requests, time.Second)

	require.Len(t, outcomes, len(sourceIDs))
	assert.LessOrEqual(t, p.peak.Load(), int64(2))
}

// TestDispatchEmbeds_StaticProviderDeterministic verifies the offline
// provider yields identical token counts across dispatches for the same
// source ID.
func TestDispatchEmbeds_StaticProviderDeterministic(t *testing.T) {
	requests, err := buildEmbeddingRequests([]string{"rcpt-42"}, true, true, "")
	require.NoError(t, err)

	p := provider.NewStatic()
	first := dispatchEmbeds(embedTestConfig(1), p, valueobject.PriorityMedium, requests, time.Second)
	second := dispatchEmbeds(embedTestConfig(1), p, valueobject.PriorityMedium, requests, time.Second)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.True(t, first["rcpt-42"].Success)
	assert.Equal(t, first["rcpt-42"].TotalTokens, second["rcpt-42"].TotalTokens)
	assert.Equal(t, first["rcpt-42"].EmbeddingsGenerated, second["rcpt-42"].EmbeddingsGenerated)
}
