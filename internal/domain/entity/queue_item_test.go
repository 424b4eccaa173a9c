package entity

import (
	"encoding/json"
	"testing"
	"time"

	"embedqueue/internal/domain/valueobject"

	"github.com/google/uuid"
)

func newTestItem(t *testing.T) *QueueItem {
	t.Helper()
	item, err := NewQueueItem(
		"receipts",
		"b2f9d6de-6a1f-4b6a-9a57-1f1b9f4c1a11",
		valueobject.OperationInsert,
		valueobject.PriorityMedium,
		json.RawMessage(`{"upload_batch":"batch-7"}`),
		2,
	)
	if err != nil {
		t.Fatalf("Expected no error creating item, got: %v", err)
	}
	return item
}

func TestNewQueueItem(t *testing.T) {
	item := newTestItem(t)

	if item.ID() == uuid.Nil {
		t.Error("Expected non-nil UUID")
	}
	if item.SourceType() != "receipts" {
		t.Errorf("Expected source type receipts, got %s", item.SourceType())
	}
	if item.Status() != valueobject.ItemStatusPending {
		t.Errorf("Expected initial status pending, got %s", item.Status())
	}
	if item.RetryCount() != 0 {
		t.Errorf("Expected initial retry count 0, got %d", item.RetryCount())
	}
	if item.MaxRetries() != 2 {
		t.Errorf("Expected max retries 2, got %d", item.MaxRetries())
	}
	if item.RateLimitCount() != 0 {
		t.Errorf("Expected initial rate limit count 0, got %d", item.RateLimitCount())
	}
	if item.ClaimedBy() != nil {
		t.Error("Expected new item to be unclaimed")
	}
	if !item.IsClaimEligible(time.Now()) {
		t.Error("Expected new item to be claim eligible")
	}
}

func TestNewQueueItem_Validation(t *testing.T) {
	if _, err := NewQueueItem("", "id", valueobject.OperationInsert, valueobject.PriorityLow, nil, 3); err == nil {
		t.Error("Expected error for missing source type")
	}
	if _, err := NewQueueItem("receipts", "", valueobject.OperationInsert, valueobject.PriorityLow, nil, 3); err == nil {
		t.Error("Expected error for missing source id")
	}
}

func TestNewQueueItem_DefaultMaxRetries(t *testing.T) {
	item, err := NewQueueItem("receipts", "r1", valueobject.OperationUpdate, valueobject.PriorityLow, nil, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if item.MaxRetries() != DefaultMaxRetries {
		t.Errorf("Expected default max retries %d, got %d", DefaultMaxRetries, item.MaxRetries())
	}
}

func TestQueueItem_MarkProcessing(t *testing.T) {
	item := newTestItem(t)

	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("Expected no error claiming pending item, got: %v", err)
	}

	if item.Status() != valueobject.ItemStatusProcessing {
		t.Errorf("Expected status processing, got %s", item.Status())
	}
	if item.ClaimedBy() == nil || *item.ClaimedBy() != "worker-1" {
		t.Errorf("Expected claimed_by worker-1, got %v", item.ClaimedBy())
	}
	if item.ClaimedAt() == nil {
		t.Error("Expected claimed_at to be set")
	}

	// A processing item cannot be claimed again.
	if err := item.MarkProcessing("worker-2"); err == nil {
		t.Error("Expected error claiming an already-processing item")
	}
	if *item.ClaimedBy() != "worker-1" {
		t.Error("Failed double claim must not change the owner")
	}
}

func TestQueueItem_MarkProcessing_RequiresWorkerID(t *testing.T) {
	item := newTestItem(t)
	if err := item.MarkProcessing(""); err == nil {
		t.Error("Expected error claiming with empty worker id")
	}
}

func TestQueueItem_Complete_Idempotent(t *testing.T) {
	item := newTestItem(t)
	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := item.Complete(); err != nil {
		t.Fatalf("Expected no error completing processing item, got: %v", err)
	}
	if item.Status() != valueobject.ItemStatusCompleted {
		t.Errorf("Expected status completed, got %s", item.Status())
	}
	if item.ProcessedAt() == nil {
		t.Error("Expected processed_at to be set")
	}
	firstProcessedAt := *item.ProcessedAt()

	// Completing again is a no-op, not an error.
	if err := item.Complete(); err != nil {
		t.Errorf("Expected second Complete to be a no-op, got error: %v", err)
	}
	if item.Status() != valueobject.ItemStatusCompleted {
		t.Errorf("Expected status to remain completed, got %s", item.Status())
	}
	if !item.ProcessedAt().Equal(firstProcessedAt) {
		t.Error("Expected processed_at to be unchanged by the duplicate completion")
	}
}

func TestQueueItem_Complete_RequiresClaim(t *testing.T) {
	item := newTestItem(t)
	if err := item.Complete(); err == nil {
		t.Error("Expected error completing an unclaimed item")
	}
}

func TestQueueItem_RecordFailure_RequeuesWithBackoff(t *testing.T) {
	item := newTestItem(t)
	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	before := time.Now()
	deadLettered, err := item.RecordFailure(valueobject.ErrorTypeTimeout, "embedding call timed out", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("Expected no error recording failure, got: %v", err)
	}
	if deadLettered {
		t.Fatal("Expected first failure to requeue, not dead-letter")
	}

	if item.Status() != valueobject.ItemStatusPending {
		t.Errorf("Expected status pending after retryable failure, got %s", item.Status())
	}
	if item.RetryCount() != 1 {
		t.Errorf("Expected retry count 1, got %d", item.RetryCount())
	}
	if item.ClaimedBy() != nil {
		t.Error("Expected claim to be released on failure")
	}
	if item.ErrorType() == nil || *item.ErrorType() != valueobject.ErrorTypeTimeout {
		t.Errorf("Expected error type timeout, got %v", item.ErrorType())
	}

	// First retry gates at base*2 = 2s from now.
	if item.ResumeAt() == nil {
		t.Fatal("Expected a backoff resume gate")
	}
	gate := item.ResumeAt().Sub(before)
	if gate < 1500*time.Millisecond || gate > 3*time.Second {
		t.Errorf("Expected ~2s backoff gate, got %s", gate)
	}
	if item.IsClaimEligible(time.Now()) {
		t.Error("Expected item to be ineligible while the backoff gate holds")
	}
	if !item.IsClaimEligible(time.Now().Add(5 * time.Second)) {
		t.Error("Expected item to be eligible after the backoff gate elapses")
	}
}

func TestQueueItem_RecordFailure_ExhaustsRetryBudget(t *testing.T) {
	item := newTestItem(t) // max_retries = 2

	for attempt := 1; attempt <= 2; attempt++ {
		if err := item.MarkProcessing("worker-1"); err != nil {
			t.Fatalf("claim %d: %v", attempt, err)
		}
		deadLettered, err := item.RecordFailure(valueobject.ErrorTypeNetwork, "connection reset", time.Millisecond, time.Second)
		if err != nil {
			t.Fatalf("failure %d: %v", attempt, err)
		}
		if deadLettered {
			t.Fatalf("Expected failure %d to stay within budget", attempt)
		}
	}

	// Third failure exceeds max_retries=2 and dead-letters.
	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("final claim: %v", err)
	}
	deadLettered, err := item.RecordFailure(valueobject.ErrorTypeNetwork, "connection reset", time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("final failure: %v", err)
	}
	if !deadLettered {
		t.Fatal("Expected third failure to dead-letter the item")
	}
	if item.Status() != valueobject.ItemStatusFailed {
		t.Errorf("Expected terminal status failed, got %s", item.Status())
	}
	if item.RetryCount() != 3 {
		t.Errorf("Expected retry count 3, got %d", item.RetryCount())
	}
	if !item.IsTerminal() {
		t.Error("Expected dead-lettered item to be terminal")
	}
	if item.IsClaimEligible(time.Now().Add(time.Hour)) {
		t.Error("Dead-lettered items must never become claimable")
	}
}

func TestQueueItem_FailTwiceThenSucceed(t *testing.T) {
	item := newTestItem(t) // max_retries = 2

	for attempt := 1; attempt <= 2; attempt++ {
		if err := item.MarkProcessing("worker-1"); err != nil {
			t.Fatalf("claim %d: %v", attempt, err)
		}
		if _, err := item.RecordFailure(valueobject.ErrorTypeUnknown, "provider error", time.Millisecond, time.Second); err != nil {
			t.Fatalf("failure %d: %v", attempt, err)
		}
	}

	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if err := item.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if item.Status() != valueobject.ItemStatusCompleted {
		t.Errorf("Expected status completed, got %s", item.Status())
	}
	if item.RetryCount() != 2 {
		t.Errorf("Expected retry count 2 preserved on completion, got %d", item.RetryCount())
	}
}

func TestQueueItem_MarkRateLimited(t *testing.T) {
	item := newTestItem(t)
	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	resumeAt := time.Now().Add(time.Minute)
	deadLettered, err := item.MarkRateLimited(resumeAt, 20)
	if err != nil {
		t.Fatalf("Expected no error deferring item, got: %v", err)
	}
	if deadLettered {
		t.Fatal("Expected deferral, not dead-letter")
	}

	if item.Status() != valueobject.ItemStatusRateLimited {
		t.Errorf("Expected status rate_limited, got %s", item.Status())
	}
	if item.RetryCount() != 0 {
		t.Errorf("Rate limiting must not consume the retry budget, got retry count %d", item.RetryCount())
	}
	if item.RateLimitCount() != 1 {
		t.Errorf("Expected rate limit count 1, got %d", item.RateLimitCount())
	}
	if item.ResumeAt() == nil || !item.ResumeAt().Equal(resumeAt) {
		t.Errorf("Expected resume gate %s, got %v", resumeAt, item.ResumeAt())
	}

	if item.IsClaimEligible(time.Now()) {
		t.Error("Expected item to be ineligible before the resume gate")
	}
	if !item.IsClaimEligible(resumeAt.Add(time.Second)) {
		t.Error("Expected item to be eligible after the resume gate")
	}
}

func TestQueueItem_MarkRateLimited_DeferralBudget(t *testing.T) {
	item := newTestItem(t)

	// Two deferrals fit inside a budget of 2.
	for i := 0; i < 2; i++ {
		if err := item.MarkProcessing("worker-1"); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		deadLettered, err := item.MarkRateLimited(time.Now().Add(time.Millisecond), 2)
		if err != nil {
			t.Fatalf("deferral %d: %v", i, err)
		}
		if deadLettered {
			t.Fatalf("Expected deferral %d to stay within budget", i)
		}
	}

	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("final claim: %v", err)
	}
	deadLettered, err := item.MarkRateLimited(time.Now().Add(time.Minute), 2)
	if err != nil {
		t.Fatalf("final deferral: %v", err)
	}
	if !deadLettered {
		t.Fatal("Expected third deferral to exhaust the budget and dead-letter")
	}
	if item.Status() != valueobject.ItemStatusFailed {
		t.Errorf("Expected terminal status failed, got %s", item.Status())
	}
	if item.RetryCount() != 0 {
		t.Errorf("Deferral-budget dead-letter must not touch retry count, got %d", item.RetryCount())
	}
}

func TestQueueItem_ReleaseClaim(t *testing.T) {
	item := newTestItem(t)
	if err := item.MarkProcessing("worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := item.ReleaseClaim(); err != nil {
		t.Fatalf("Expected no error releasing claim, got: %v", err)
	}

	if item.Status() != valueobject.ItemStatusPending {
		t.Errorf("Expected status pending after release, got %s", item.Status())
	}
	if item.ClaimedBy() != nil || item.ClaimedAt() != nil {
		t.Error("Expected claim fields to be cleared")
	}
	if item.RetryCount() != 0 {
		t.Errorf("Release must not touch retry accounting, got %d", item.RetryCount())
	}
	if !item.IsClaimEligible(time.Now()) {
		t.Error("Released item should be immediately claimable")
	}

	if err := item.ReleaseClaim(); err == nil {
		t.Error("Expected error releasing an item that is not processing")
	}
}

func TestRestoreQueueItem(t *testing.T) {
	id := uuid.New()
	claimedBy := "worker-9"
	now := time.Now()
	claimedAt := now.Add(-time.Minute)
	errorType := valueobject.ErrorTypeTimeout
	message := "deadline exceeded"

	item := RestoreQueueItem(
		id, "line_items", "li-42",
		valueobject.OperationUpdate, valueobject.PriorityHigh, valueobject.ItemStatusProcessing,
		1, 5, 2,
		&message, &errorType,
		json.RawMessage(`{"fields":["merchant"]}`),
		&claimedBy, &claimedAt, nil, nil,
		now.Add(-time.Hour), now,
	)

	if item.ID() != id {
		t.Errorf("Expected id %s, got %s", id, item.ID())
	}
	if item.Priority() != valueobject.PriorityHigh {
		t.Errorf("Expected priority high, got %s", item.Priority())
	}
	if item.RetryCount() != 1 || item.MaxRetries() != 5 || item.RateLimitCount() != 2 {
		t.Error("Expected restored counters to round-trip")
	}
	if item.ClaimedBy() == nil || *item.ClaimedBy() != claimedBy {
		t.Errorf("Expected claimed_by %s, got %v", claimedBy, item.ClaimedBy())
	}
}
