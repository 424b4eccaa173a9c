package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/dto"
	"embedqueue/internal/domain/entity"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/domain/messaging"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"
)

// QueueItemService handles enqueue and queue query operations. Metadata is
// schema-validated here, at the producing boundary, and travels as opaque
// JSON from then on. Both the HTTP API and the NATS ingress consumer drive
// this service so validation happens exactly once regardless of transport.
type QueueItemService struct {
	queue     outbound.QueueRepository
	publisher outbound.EventPublisher
	validate  *validator.Validate
	logger    *slogger.Logger
}

// NewQueueItemService creates a new QueueItemService.
func NewQueueItemService(queue outbound.QueueRepository, publisher outbound.EventPublisher) *QueueItemService {
	if queue == nil {
		panic("queue repository cannot be nil")
	}
	if publisher == nil {
		panic("event publisher cannot be nil")
	}
	return &QueueItemService{
		queue:     queue,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    slogger.WithComponent("queue-service"),
	}
}

// EnqueueItem validates the request, persists a pending item and publishes
// its creation event. Validation failures are rejected synchronously; nothing
// invalid is ever queued.
func (s *QueueItemService) EnqueueItem(ctx context.Context, request dto.EnqueueItemRequest) (*dto.EnqueueItemResponse, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, validationErrorFrom(err)
	}

	if request.Priority == "" {
		request.Priority = dto.DefaultPriority
	}
	operation, err := valueobject.NewOperation(request.Operation)
	if err != nil {
		return nil, domainerrors.NewValidationError("operation", err.Error())
	}
	priority, err := valueobject.NewPriority(request.Priority)
	if err != nil {
		return nil, domainerrors.NewValidationError("priority", err.Error())
	}

	metadata, err := marshalMetadata(request.Metadata)
	if err != nil {
		return nil, domainerrors.NewValidationError("metadata", err.Error())
	}

	item, err := entity.NewQueueItem(
		request.SourceType,
		request.SourceID,
		operation,
		priority,
		metadata,
		request.MaxRetries,
	)
	if err != nil {
		var validationErr *domainerrors.ValidationError
		if errors.As(err, &validationErr) {
			return nil, err
		}
		return nil, common.WrapServiceError(common.OpEnqueueItem, err)
	}

	if err := s.queue.Save(ctx, item); err != nil {
		return nil, common.WrapServiceError(common.OpSaveItem, err)
	}

	s.publishTransition(ctx, item, "", valueobject.ItemStatusPending, "")

	s.logger.Info(ctx, "item enqueued", slogger.Fields{
		"item_id":     item.ID().String(),
		"source_type": item.SourceType(),
		"source_id":   item.SourceID(),
		"priority":    item.Priority().String(),
	})

	return &dto.EnqueueItemResponse{
		ID:       item.ID(),
		Status:   item.Status().String(),
		Priority: item.Priority().String(),
	}, nil
}

// GetItem retrieves a queue item by its unique ID.
func (s *QueueItemService) GetItem(ctx context.Context, id uuid.UUID) (*dto.QueueItemResponse, error) {
	item, err := s.queue.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrItemNotFound) {
			return nil, err
		}
		return nil, common.WrapServiceError(common.OpRetrieveItem, err)
	}
	return common.EntityToQueueItemResponse(item), nil
}

// QueueStatus reports per-status depth counts.
func (s *QueueItemService) QueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error) {
	depth, err := s.queue.QueueDepth(ctx)
	if err != nil {
		return nil, common.WrapServiceError(common.OpQueueDepth, err)
	}
	return common.QueueDepthToStatusResponse(depth), nil
}

// publishTransition emits a state event best-effort: a failed publish is
// logged and never fails the queue operation itself.
func (s *QueueItemService) publishTransition(
	ctx context.Context,
	item *entity.QueueItem,
	from valueobject.ItemStatus,
	to valueobject.ItemStatus,
	workerID string,
) {
	event := messaging.NewItemStateEvent(
		item.ID(),
		item.SourceType(),
		item.SourceID(),
		from,
		to,
		workerID,
		item.RetryCount(),
	)
	if err := s.publisher.PublishItemStateEvent(ctx, event); err != nil {
		s.logger.ErrorWithError(ctx, err, "failed to publish item state event", slogger.Fields{
			"item_id":   item.ID().String(),
			"to_status": to.String(),
		})
	}
}

func marshalMetadata(metadata *dto.ItemMetadata) (json.RawMessage, error) {
	if metadata == nil {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata is not serializable: %w", err)
	}
	return raw, nil
}

// validationErrorFrom maps a validator.ValidationErrors to the domain
// taxonomy, surfacing the first offending field.
func validationErrorFrom(err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return domainerrors.NewValidationError(
			first.Field(),
			fmt.Sprintf("failed on the %q rule", first.Tag()),
		)
	}
	return domainerrors.NewValidationError("", err.Error())
}
