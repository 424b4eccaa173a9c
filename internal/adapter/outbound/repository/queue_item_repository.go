package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"embedqueue/internal/domain/entity"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQL query constants to avoid repetition
const (
	queueItemFields = `
		id, source_type, source_id, operation, priority, status,
		retry_count, max_retries, rate_limit_count, error_message, error_type,
		metadata, claimed_by, claimed_at, resume_at, processed_at,
		created_at, updated_at`
	queueItemTable = "embedqueue.embedding_queue"

	// priorityRank orders items high before medium before low. Priority is
	// stored as text so the ordering must be made explicit.
	priorityRank = `CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`
)

// PostgreSQLQueueItemRepository implements the QueueRepository interface.
type PostgreSQLQueueItemRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

// NewPostgreSQLQueueItemRepository creates a new PostgreSQL queue item repository.
func NewPostgreSQLQueueItemRepository(pool *pgxpool.Pool) *PostgreSQLQueueItemRepository {
	return &PostgreSQLQueueItemRepository{
		pool: pool,
		tm:   NewTransactionManager(pool),
	}
}

// Save persists a new queue item.
func (r *PostgreSQLQueueItemRepository) Save(ctx context.Context, item *entity.QueueItem) error {
	if item == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO embedqueue.embedding_queue (
			id, source_type, source_id, operation, priority, status,
			retry_count, max_retries, rate_limit_count, error_message, error_type,
			metadata, claimed_by, claimed_at, resume_at, processed_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		item.ID(),
		item.SourceType(),
		item.SourceID(),
		item.Operation().String(),
		item.Priority().String(),
		item.Status().String(),
		item.RetryCount(),
		item.MaxRetries(),
		item.RateLimitCount(),
		item.ErrorMessage(),
		errorTypeString(item.ErrorType()),
		[]byte(item.Metadata()),
		item.ClaimedBy(),
		item.ClaimedAt(),
		item.ResumeAt(),
		item.ProcessedAt(),
		item.CreatedAt(),
		item.UpdatedAt(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domainerrors.ErrItemAlreadyExists
		}
		return WrapError(err, "save queue item")
	}

	return nil
}

// FindByID loads a queue item by its ID.
func (r *PostgreSQLQueueItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.QueueItem, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + queueItemFields + ` FROM ` + queueItemTable + ` WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	item, err := r.scanQueueItem(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, domainerrors.ErrItemNotFound
		}
		return nil, WrapError(err, "find queue item by ID")
	}

	return item, nil
}

// claimMaxAttempts bounds the retries taken when a concurrent claimer wins
// the same-source race; losing every attempt just means an empty batch until
// the next poll.
const claimMaxAttempts = 3

// ClaimBatch atomically claims up to batchSize eligible items for the worker.
// The row locks taken with SKIP LOCKED guarantee that concurrent claimers
// never receive overlapping items, even across processes. A source with an
// item already in flight is excluded entirely, and at most one item per
// (source_type, source_id) is claimed per batch, so INSERT/UPDATE events for
// the same row are never embedded concurrently or out of order. The candidate
// filter covers the common case; the partial unique index on processing
// sources catches the race where two claimers pick sibling items of one
// source before either commits.
func (r *PostgreSQLQueueItemRepository) ClaimBatch(
	ctx context.Context,
	workerID string,
	batchSize int,
) ([]*entity.QueueItem, error) {
	if workerID == "" || batchSize <= 0 {
		return nil, ErrInvalidArgument
	}

	query := `
		WITH candidate AS (
			SELECT id,
			       ROW_NUMBER() OVER (
			           PARTITION BY source_type, source_id
			           ORDER BY ` + priorityRank + ` DESC, created_at ASC
			       ) AS source_rank
			FROM ` + queueItemTable + ` eq
			WHERE status IN ('pending', 'rate_limited')
			  AND (resume_at IS NULL OR resume_at <= CURRENT_TIMESTAMP)
			  AND NOT EXISTS (
			      SELECT 1
			      FROM ` + queueItemTable + ` p
			      WHERE p.status = 'processing'
			        AND p.source_type = eq.source_type
			        AND p.source_id = eq.source_id
			  )
		), eligible AS (
			SELECT id
			FROM ` + queueItemTable + `
			WHERE id IN (SELECT id FROM candidate WHERE source_rank = 1)
			ORDER BY ` + priorityRank + ` DESC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE ` + queueItemTable + ` q
			SET status = 'processing',
			    claimed_by = $1,
			    claimed_at = CURRENT_TIMESTAMP,
			    resume_at = NULL,
			    updated_at = CURRENT_TIMESTAMP
			FROM eligible
			WHERE q.id = eligible.id
			RETURNING q.id, q.source_type, q.source_id, q.operation, q.priority, q.status,
			          q.retry_count, q.max_retries, q.rate_limit_count, q.error_message, q.error_type,
			          q.metadata, q.claimed_by, q.claimed_at, q.resume_at, q.processed_at,
			          q.created_at, q.updated_at
		)
		SELECT ` + queueItemFields + `
		FROM claimed
		ORDER BY ` + priorityRank + ` DESC, created_at ASC`

	qi := GetQueryInterface(ctx, r.pool)
	for attempt := 0; attempt < claimMaxAttempts; attempt++ {
		rows, err := qi.Query(ctx, query, workerID, batchSize)
		if err != nil {
			if IsUniqueViolation(err) {
				continue
			}
			return nil, WrapError(err, "claim queue item batch")
		}

		items, err := r.scanQueueItemRows(rows)
		rows.Close()
		if err != nil {
			if IsUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		return items, nil
	}

	// A concurrent claimer took the contended source on every attempt; report
	// an empty batch and let the next poll pick up what remains.
	return []*entity.QueueItem{}, nil
}

// Complete marks an item completed. Completing an already completed item is a
// no-op so duplicate acknowledgements are harmless; the stored processed_at
// keeps its original value.
func (r *PostgreSQLQueueItemRepository) Complete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE embedqueue.embedding_queue
		SET status = 'completed',
		    processed_at = CURRENT_TIMESTAMP,
		    claimed_by = NULL,
		    claimed_at = NULL,
		    resume_at = NULL,
		    error_message = NULL,
		    error_type = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'processing'`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, id)
	if err != nil {
		return WrapError(err, "complete queue item")
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: either the item is gone, already completed, or not
	// in a completable state.
	var status string
	err = qi.QueryRow(ctx, `SELECT status FROM `+queueItemTable+` WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if IsNotFoundError(err) {
			return domainerrors.ErrItemNotFound
		}
		return WrapError(err, "complete queue item")
	}

	if status == valueobject.ItemStatusCompleted.String() {
		return nil
	}
	return fmt.Errorf("complete queue item in status %s: %w", status, domainerrors.ErrItemNotClaimed)
}

// Fail applies a budget-consuming failure using the entity's transition
// rules. The read-modify-write runs in one transaction so concurrent failure
// reports cannot double-count a retry.
func (r *PostgreSQLQueueItemRepository) Fail(
	ctx context.Context,
	id uuid.UUID,
	errorType valueobject.ErrorType,
	errorMessage string,
	policy outbound.RetryPolicy,
) (*entity.QueueItem, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	var failed *entity.QueueItem
	err := r.tm.WithTransactionRetry(ctx, 2, func(txCtx context.Context) error {
		item, err := r.findForUpdate(txCtx, id)
		if err != nil {
			return err
		}

		if _, err := item.RecordFailure(errorType, errorMessage, policy.BackoffBase, policy.BackoffCap); err != nil {
			return err
		}

		if err := r.applyItemState(txCtx, item); err != nil {
			return err
		}
		failed = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	return failed, nil
}

// MarkRateLimited defers an item until now+delay without consuming its retry
// budget, dead-lettering once the deferral budget is exhausted.
func (r *PostgreSQLQueueItemRepository) MarkRateLimited(
	ctx context.Context,
	id uuid.UUID,
	delay time.Duration,
	maxDeferrals int,
) (*entity.QueueItem, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	var deferred *entity.QueueItem
	err := r.tm.WithTransactionRetry(ctx, 2, func(txCtx context.Context) error {
		item, err := r.findForUpdate(txCtx, id)
		if err != nil {
			return err
		}

		if _, err := item.MarkRateLimited(time.Now().Add(delay), maxDeferrals); err != nil {
			return err
		}

		if err := r.applyItemState(txCtx, item); err != nil {
			return err
		}
		deferred = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deferred, nil
}

// ReleaseStaleClaims returns processing items claimed by the given workers to
// pending and clears their claims. Retry accounting is untouched; the item
// simply becomes claimable again.
func (r *PostgreSQLQueueItemRepository) ReleaseStaleClaims(
	ctx context.Context,
	workerIDs []string,
) ([]*entity.QueueItem, error) {
	if len(workerIDs) == 0 {
		return []*entity.QueueItem{}, nil
	}

	query := `
		UPDATE ` + queueItemTable + `
		SET status = 'pending',
		    claimed_by = NULL,
		    claimed_at = NULL,
		    resume_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE status = 'processing' AND claimed_by = ANY($1)
		RETURNING ` + queueItemFields

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, workerIDs)
	if err != nil {
		return nil, WrapError(err, "release stale claims")
	}
	defer rows.Close()

	items, err := r.scanQueueItemRows(rows)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// QueueDepth reports per-status item counts.
func (r *PostgreSQLQueueItemRepository) QueueDepth(ctx context.Context) (outbound.QueueDepth, error) {
	query := `SELECT status, COUNT(*) FROM ` + queueItemTable + ` GROUP BY status`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query)
	if err != nil {
		return outbound.QueueDepth{}, WrapError(err, "queue depth")
	}
	defer rows.Close()

	var depth outbound.QueueDepth
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return outbound.QueueDepth{}, WrapError(err, "scan queue depth row")
		}

		switch status {
		case valueobject.ItemStatusPending.String():
			depth.Pending = count
		case valueobject.ItemStatusProcessing.String():
			depth.Processing = count
		case valueobject.ItemStatusRateLimited.String():
			depth.RateLimited = count
		case valueobject.ItemStatusCompleted.String():
			depth.Completed = count
		case valueobject.ItemStatusFailed.String():
			depth.Failed = count
		}
	}

	if err := rows.Err(); err != nil {
		return outbound.QueueDepth{}, WrapError(err, "iterate queue depth rows")
	}

	return depth, nil
}

// findForUpdate loads an item under a row lock inside the current transaction.
func (r *PostgreSQLQueueItemRepository) findForUpdate(ctx context.Context, id uuid.UUID) (*entity.QueueItem, error) {
	query := `SELECT ` + queueItemFields + ` FROM ` + queueItemTable + ` WHERE id = $1 FOR UPDATE`

	qi := GetQueryInterface(ctx, r.pool)
	item, err := r.scanQueueItem(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, domainerrors.ErrItemNotFound
		}
		return nil, WrapError(err, "lock queue item")
	}

	return item, nil
}

// applyItemState writes every mutable field of the entity back to its row.
func (r *PostgreSQLQueueItemRepository) applyItemState(ctx context.Context, item *entity.QueueItem) error {
	query := `
		UPDATE embedqueue.embedding_queue
		SET status = $2,
		    retry_count = $3,
		    rate_limit_count = $4,
		    error_message = $5,
		    error_type = $6,
		    claimed_by = $7,
		    claimed_at = $8,
		    resume_at = $9,
		    processed_at = $10,
		    updated_at = $11
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		item.ID(),
		item.Status().String(),
		item.RetryCount(),
		item.RateLimitCount(),
		item.ErrorMessage(),
		errorTypeString(item.ErrorType()),
		item.ClaimedBy(),
		item.ClaimedAt(),
		item.ResumeAt(),
		item.ProcessedAt(),
		item.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update queue item")
	}
	if result.RowsAffected() == 0 {
		return domainerrors.ErrItemNotFound
	}

	return nil
}

// scanQueueItem is a helper to scan a row into a QueueItem entity.
func (r *PostgreSQLQueueItemRepository) scanQueueItem(row interface {
	Scan(...interface{}) error
},
) (*entity.QueueItem, error) {
	var id uuid.UUID
	var sourceType, sourceID, operationStr, priorityStr, statusStr string
	var retryCount, maxRetries, rateLimitCount int
	var errorMessage, errorTypeStr, claimedBy *string
	var metadata []byte
	var claimedAt, resumeAt, processedAt *time.Time
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&id, &sourceType, &sourceID, &operationStr, &priorityStr, &statusStr,
		&retryCount, &maxRetries, &rateLimitCount, &errorMessage, &errorTypeStr,
		&metadata, &claimedBy, &claimedAt, &resumeAt, &processedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	operation, err := valueobject.NewOperation(operationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid operation: %w", err)
	}

	priority, err := valueobject.NewPriority(priorityStr)
	if err != nil {
		return nil, fmt.Errorf("invalid priority: %w", err)
	}

	status, err := valueobject.NewItemStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid item status: %w", err)
	}

	var errorType *valueobject.ErrorType
	if errorTypeStr != nil {
		parsed, err := valueobject.NewErrorType(*errorTypeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid error type: %w", err)
		}
		errorType = &parsed
	}

	return entity.RestoreQueueItem(
		id, sourceType, sourceID, operation, priority, status,
		retryCount, maxRetries, rateLimitCount, errorMessage, errorType,
		json.RawMessage(metadata), claimedBy, claimedAt, resumeAt, processedAt,
		createdAt, updatedAt,
	), nil
}

// scanQueueItemRows scans multiple rows into a slice of QueueItem entities.
func (r *PostgreSQLQueueItemRepository) scanQueueItemRows(rows interface {
	Next() bool
	Scan(...interface{}) error
	Close()
	Err() error
},
) ([]*entity.QueueItem, error) {
	var items []*entity.QueueItem

	for rows.Next() {
		item, err := r.scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate queue item rows")
	}

	if items == nil {
		return []*entity.QueueItem{}, nil
	}

	return items, nil
}

// errorTypeString converts an optional ErrorType into a nullable column value.
func errorTypeString(et *valueobject.ErrorType) *string {
	if et == nil {
		return nil
	}
	s := et.String()
	return &s
}
