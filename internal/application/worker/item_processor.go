package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/service"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/entity"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/domain/messaging"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"
)

// receiptsSourceType marks items whose source rows carry line items the
// provider embeds in the same call.
const receiptsSourceType = "receipts"

// ItemOutcome summarizes one processed item for worker counters and metrics.
// Status is the item's resulting queue status; Errored and RateLimited
// classify the attempt itself, so a failure that was requeued still reads as
// errored.
type ItemOutcome struct {
	ItemID       uuid.UUID
	SourceType   string
	Status       valueobject.ItemStatus
	ErrorType    *valueobject.ErrorType
	Duration     time.Duration
	TokensUsed   int
	Errored      bool
	RateLimited  bool
	DeadLettered bool
}

// resolution names how the attempt resolved, for metric labels.
func (o ItemOutcome) resolution() string {
	switch {
	case o.RateLimited:
		return valueobject.ItemStatusRateLimited.String()
	case o.Errored:
		return valueobject.ItemStatusFailed.String()
	default:
		return valueobject.ItemStatusCompleted.String()
	}
}

// ItemProcessorConfig carries the per-item processing knobs.
type ItemProcessorConfig struct {
	ItemTimeout          time.Duration
	RetryPolicy          outbound.RetryPolicy
	CostPerMillionTokens float64
}

// ItemProcessor runs one claimed item end to end: the embedding call under
// circuit breaker protection and a per-item deadline, then the outcome
// routing back to the store, the state event, and the outcome journal.
type ItemProcessor struct {
	provider    outbound.EmbeddingProvider
	queue       outbound.QueueRepository
	outcomes    outbound.OutcomeRepository
	publisher   outbound.EventPublisher
	breaker     *service.EmbeddingCircuitBreaker
	coordinator *service.RateLimitCoordinator
	cfg         ItemProcessorConfig
	logger      *slogger.Logger
}

// NewItemProcessor wires an item processor. Zero config values fall back to
// the same defaults the worker applies.
func NewItemProcessor(
	provider outbound.EmbeddingProvider,
	queue outbound.QueueRepository,
	outcomes outbound.OutcomeRepository,
	publisher outbound.EventPublisher,
	breaker *service.EmbeddingCircuitBreaker,
	coordinator *service.RateLimitCoordinator,
	cfg ItemProcessorConfig,
) *ItemProcessor {
	if provider == nil {
		panic("NewItemProcessor: embedding provider is required")
	}
	if queue == nil {
		panic("NewItemProcessor: queue repository is required")
	}
	if outcomes == nil {
		panic("NewItemProcessor: outcome repository is required")
	}
	if publisher == nil {
		panic("NewItemProcessor: event publisher is required")
	}
	if breaker == nil {
		panic("NewItemProcessor: circuit breaker is required")
	}
	if coordinator == nil {
		panic("NewItemProcessor: rate limit coordinator is required")
	}

	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	if cfg.RetryPolicy.BackoffBase <= 0 {
		cfg.RetryPolicy.BackoffBase = config.DefaultBackoffBaseSeconds * time.Second
	}
	if cfg.RetryPolicy.BackoffCap < cfg.RetryPolicy.BackoffBase {
		cfg.RetryPolicy.BackoffCap = config.DefaultBackoffCapMinutes * time.Minute
	}

	return &ItemProcessor{
		provider:    provider,
		queue:       queue,
		outcomes:    outcomes,
		publisher:   publisher,
		breaker:     breaker,
		coordinator: coordinator,
		cfg:         cfg,
		logger:      slogger.WithComponent("item-processor"),
	}
}

// Process runs one claimed item and routes its outcome. The returned summary
// reflects what the store now says about the item; Process itself never
// fails, every error path resolves into an outcome.
func (p *ItemProcessor) Process(ctx context.Context, workerID string, item *entity.QueueItem) ItemOutcome {
	started := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ItemTimeout)
	var result *outbound.EmbeddingResult
	err := p.breaker.Execute(callCtx, func(callCtx context.Context) error {
		generated, genErr := p.provider.GenerateEmbeddings(callCtx, p.requestFor(workerID, item))
		if genErr != nil {
			return genErr
		}
		result = generated
		return nil
	})
	cancel()
	duration := time.Since(started)

	if err == nil {
		return p.completeItem(ctx, workerID, item, result, duration)
	}

	var throttle *domainerrors.RateLimitedError
	if errors.As(err, &throttle) {
		return p.deferItem(ctx, workerID, item, throttle, duration)
	}
	return p.failItem(ctx, workerID, item, err, duration)
}

// requestFor builds the provider payload for one item. Receipt rows carry
// line items that get embedded in the same call.
func (p *ItemProcessor) requestFor(workerID string, item *entity.QueueItem) outbound.EmbeddingRequest {
	return outbound.EmbeddingRequest{
		SourceID:         item.SourceID(),
		ProcessAllFields: true,
		ProcessLineItems: item.SourceType() == receiptsSourceType,
		QueueMode:        outbound.QueueModeDurable,
		WorkerID:         workerID,
		Metadata:         item.Metadata(),
	}
}

func (p *ItemProcessor) completeItem(
	ctx context.Context,
	workerID string,
	item *entity.QueueItem,
	result *outbound.EmbeddingResult,
	duration time.Duration,
) ItemOutcome {
	if err := p.queue.Complete(ctx, item.ID()); err != nil {
		// The claim stays in place; the item is picked back up by a later
		// attempt or the stale sweep rather than silently lost.
		p.logger.ErrorWithError(ctx, err, "failed to mark item completed",
			slogger.Field("item_id", item.ID().String()))
		return ItemOutcome{
			ItemID:     item.ID(),
			SourceType: item.SourceType(),
			Status:     item.Status(),
			Duration:   duration,
			Errored:    true,
		}
	}

	tokens := 0
	if result != nil {
		tokens = result.TotalTokens
	}

	p.publishTransition(ctx, item, valueobject.ItemStatusProcessing, valueobject.ItemStatusCompleted, workerID, nil)
	p.appendOutcome(ctx, workerID, item, valueobject.ItemStatusCompleted, nil, duration, tokens)

	p.logger.Debug(ctx, "item completed", slogger.Fields3(
		"item_id", item.ID().String(),
		"tokens", tokens,
		"duration", duration.String()))

	return ItemOutcome{
		ItemID:     item.ID(),
		SourceType: item.SourceType(),
		Status:     valueobject.ItemStatusCompleted,
		Duration:   duration,
		TokensUsed: tokens,
	}
}

func (p *ItemProcessor) failItem(
	ctx context.Context,
	workerID string,
	item *entity.QueueItem,
	cause error,
	duration time.Duration,
) ItemOutcome {
	errorType := classifyFailure(cause)

	updated, err := p.queue.Fail(ctx, item.ID(), errorType, cause.Error(), p.cfg.RetryPolicy)
	if err != nil {
		p.logger.ErrorWithError(ctx, err, "failed to record item failure",
			slogger.Field("item_id", item.ID().String()))
		return ItemOutcome{
			ItemID:     item.ID(),
			SourceType: item.SourceType(),
			Status:     item.Status(),
			ErrorType:  &errorType,
			Duration:   duration,
			Errored:    true,
		}
	}

	p.publishTransition(ctx, updated, valueobject.ItemStatusProcessing, updated.Status(), workerID, &errorType)
	p.appendOutcome(ctx, workerID, updated, valueobject.ItemStatusFailed, &errorType, duration, 0)

	deadLettered := updated.Status() == valueobject.ItemStatusFailed
	if deadLettered {
		deadLetter := &domainerrors.DeadLetterError{
			ItemID:   updated.ID().String(),
			Attempts: updated.RetryCount(),
			Cause:    cause,
		}
		p.logger.ErrorWithError(ctx, deadLetter, "retry budget exhausted, item dead-lettered",
			slogger.Fields2("item_id", updated.ID().String(), "error_type", errorType.String()))
	} else {
		p.logger.Warn(ctx, "item failed, requeued with backoff", slogger.Fields3(
			"item_id", updated.ID().String(),
			"error_type", errorType.String(),
			"retry_count", updated.RetryCount()))
	}

	return ItemOutcome{
		ItemID:       updated.ID(),
		SourceType:   updated.SourceType(),
		Status:       updated.Status(),
		ErrorType:    &errorType,
		Duration:     duration,
		Errored:      true,
		DeadLettered: deadLettered,
	}
}

func (p *ItemProcessor) deferItem(
	ctx context.Context,
	workerID string,
	item *entity.QueueItem,
	throttle *domainerrors.RateLimitedError,
	duration time.Duration,
) ItemOutcome {
	rateLimited := valueobject.ErrorTypeRateLimited

	updated, err := p.coordinator.ScheduleResume(ctx, item.ID(), workerID, throttle)
	if err != nil {
		p.logger.ErrorWithError(ctx, err, "failed to defer rate-limited item",
			slogger.Field("item_id", item.ID().String()))
		return ItemOutcome{
			ItemID:     item.ID(),
			SourceType: item.SourceType(),
			Status:     item.Status(),
			ErrorType:  &rateLimited,
			Duration:   duration,
			Errored:    true,
		}
	}

	p.publishTransition(ctx, updated, valueobject.ItemStatusProcessing, updated.Status(), workerID, &rateLimited)
	p.appendOutcome(ctx, workerID, updated, valueobject.ItemStatusRateLimited, &rateLimited, duration, 0)

	return ItemOutcome{
		ItemID:       updated.ID(),
		SourceType:   updated.SourceType(),
		Status:       updated.Status(),
		ErrorType:    &rateLimited,
		Duration:     duration,
		RateLimited:  true,
		DeadLettered: updated.Status() == valueobject.ItemStatusFailed,
	}
}

// publishTransition emits one state event. Publish failures are logged and
// swallowed; events are observability, not queue state.
func (p *ItemProcessor) publishTransition(
	ctx context.Context,
	item *entity.QueueItem,
	from, to valueobject.ItemStatus,
	workerID string,
	errorType *valueobject.ErrorType,
) {
	event := messaging.NewItemStateEvent(
		item.ID(), item.SourceType(), item.SourceID(),
		from, to, workerID, item.RetryCount(),
	)
	if errorType != nil {
		event = event.WithErrorType(*errorType)
	}
	if err := p.publisher.PublishItemStateEvent(ctx, event); err != nil {
		p.logger.Warn(ctx, "failed to publish item state event", slogger.Fields3(
			"item_id", item.ID().String(),
			"to_status", to.String(),
			"error", err.Error()))
	}
}

// appendOutcome writes the attempt to the outcome journal. The outcome
// column records how the attempt resolved: a requeued failure is still a
// failed attempt.
func (p *ItemProcessor) appendOutcome(
	ctx context.Context,
	workerID string,
	item *entity.QueueItem,
	outcome valueobject.ItemStatus,
	errorType *valueobject.ErrorType,
	duration time.Duration,
	tokens int,
) {
	event := outbound.OutcomeEvent{
		ID:            uuid.New(),
		ItemID:        item.ID(),
		SourceType:    item.SourceType(),
		WorkerID:      workerID,
		Outcome:       outcome,
		ErrorType:     errorType,
		Duration:      duration,
		TokensUsed:    tokens,
		EstimatedCost: p.estimateCost(tokens),
		OccurredAt:    time.Now(),
	}
	if err := p.outcomes.RecordOutcome(ctx, event); err != nil {
		p.logger.Warn(ctx, "failed to record outcome event",
			slogger.Fields2("item_id", item.ID().String(), "error", err.Error()))
	}
}

// estimateCost converts token usage into spend using the configured
// per-million-token rate.
func (p *ItemProcessor) estimateCost(tokens int) float64 {
	if tokens <= 0 || p.cfg.CostPerMillionTokens <= 0 {
		return 0
	}
	return float64(tokens) / 1_000_000 * p.cfg.CostPerMillionTokens
}

// classifyFailure maps a processing error onto the stored error taxonomy.
func classifyFailure(err error) valueobject.ErrorType {
	var (
		timeout     *domainerrors.TimeoutError
		network     *domainerrors.NetworkError
		circuitOpen *domainerrors.CircuitOpenError
	)
	switch {
	case errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded):
		return valueobject.ErrorTypeTimeout
	case errors.As(err, &network):
		return valueobject.ErrorTypeNetwork
	case errors.As(err, &circuitOpen):
		return valueobject.ErrorTypeCircuitOpen
	default:
		return valueobject.ErrorTypeUnknown
	}
}
