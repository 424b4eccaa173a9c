package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"embedqueue/internal/domain/entity"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/domain/valueobject"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	workerFields = `
		worker_id, status, last_heartbeat, tasks_processed, total_processing_ms,
		error_count, rate_limit_count, config, started_at, stopped_at`
	workerTable = "embedqueue.embedding_queue_workers"
)

// PostgreSQLWorkerRegistryRepository implements the WorkerRegistry interface.
type PostgreSQLWorkerRegistryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLWorkerRegistryRepository creates a new PostgreSQL worker registry repository.
func NewPostgreSQLWorkerRegistryRepository(pool *pgxpool.Pool) *PostgreSQLWorkerRegistryRepository {
	return &PostgreSQLWorkerRegistryRepository{
		pool: pool,
	}
}

// Register persists a new worker registration. Re-registering an existing
// worker ID resets its record; worker IDs are process-unique so this only
// happens when a process restarts with a pinned ID.
func (r *PostgreSQLWorkerRegistryRepository) Register(ctx context.Context, worker *entity.WorkerRegistration) error {
	if worker == nil {
		return ErrInvalidArgument
	}

	configJSON, err := json.Marshal(worker.Config())
	if err != nil {
		return fmt.Errorf("marshal worker config: %w", err)
	}

	query := `
		INSERT INTO embedqueue.embedding_queue_workers (
			worker_id, status, last_heartbeat, tasks_processed, total_processing_ms,
			error_count, rate_limit_count, config, started_at, stopped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (worker_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			tasks_processed = EXCLUDED.tasks_processed,
			total_processing_ms = EXCLUDED.total_processing_ms,
			error_count = EXCLUDED.error_count,
			rate_limit_count = EXCLUDED.rate_limit_count,
			config = EXCLUDED.config,
			started_at = EXCLUDED.started_at,
			stopped_at = EXCLUDED.stopped_at`

	qi := GetQueryInterface(ctx, r.pool)
	_, err = qi.Exec(ctx, query,
		worker.WorkerID(),
		worker.Status().String(),
		worker.LastHeartbeat(),
		worker.TasksProcessed(),
		worker.TotalProcessingTime().Milliseconds(),
		worker.ErrorCount(),
		worker.RateLimitCount(),
		configJSON,
		worker.StartedAt(),
		worker.StoppedAt(),
	)
	if err != nil {
		return WrapError(err, "register worker")
	}

	return nil
}

// FindByID loads a worker registration.
func (r *PostgreSQLWorkerRegistryRepository) FindByID(
	ctx context.Context,
	workerID string,
) (*entity.WorkerRegistration, error) {
	if workerID == "" {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + workerFields + ` FROM ` + workerTable + ` WHERE worker_id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	worker, err := r.scanWorker(qi.QueryRow(ctx, query, workerID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, domainerrors.ErrWorkerNotFound
		}
		return nil, WrapError(err, "find worker by ID")
	}

	return worker, nil
}

// Update persists lifecycle and counter changes.
func (r *PostgreSQLWorkerRegistryRepository) Update(ctx context.Context, worker *entity.WorkerRegistration) error {
	if worker == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE embedqueue.embedding_queue_workers
		SET status = $2,
		    last_heartbeat = $3,
		    tasks_processed = $4,
		    total_processing_ms = $5,
		    error_count = $6,
		    rate_limit_count = $7,
		    stopped_at = $8
		WHERE worker_id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		worker.WorkerID(),
		worker.Status().String(),
		worker.LastHeartbeat(),
		worker.TasksProcessed(),
		worker.TotalProcessingTime().Milliseconds(),
		worker.ErrorCount(),
		worker.RateLimitCount(),
		worker.StoppedAt(),
	)
	if err != nil {
		return WrapError(err, "update worker")
	}
	if result.RowsAffected() == 0 {
		return domainerrors.ErrWorkerNotFound
	}

	return nil
}

// Heartbeat refreshes last_heartbeat and counters in one write. Kept separate
// from Update so the heartbeat loop cannot accidentally change status.
func (r *PostgreSQLWorkerRegistryRepository) Heartbeat(ctx context.Context, worker *entity.WorkerRegistration) error {
	if worker == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE embedqueue.embedding_queue_workers
		SET last_heartbeat = $2,
		    tasks_processed = $3,
		    total_processing_ms = $4,
		    error_count = $5,
		    rate_limit_count = $6
		WHERE worker_id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		worker.WorkerID(),
		worker.LastHeartbeat(),
		worker.TasksProcessed(),
		worker.TotalProcessingTime().Milliseconds(),
		worker.ErrorCount(),
		worker.RateLimitCount(),
	)
	if err != nil {
		return WrapError(err, "worker heartbeat")
	}
	if result.RowsAffected() == 0 {
		return domainerrors.ErrWorkerNotFound
	}

	return nil
}

// FindStale returns active workers whose heartbeat predates staleBefore.
func (r *PostgreSQLWorkerRegistryRepository) FindStale(
	ctx context.Context,
	staleBefore time.Time,
) ([]*entity.WorkerRegistration, error) {
	query := `
		SELECT ` + workerFields + `
		FROM ` + workerTable + `
		WHERE status IN ('starting', 'running', 'stopping')
		  AND last_heartbeat < $1
		ORDER BY last_heartbeat ASC`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, staleBefore)
	if err != nil {
		return nil, WrapError(err, "find stale workers")
	}
	defer rows.Close()

	var workers []*entity.WorkerRegistration
	for rows.Next() {
		worker, err := r.scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate stale worker rows")
	}

	if workers == nil {
		return []*entity.WorkerRegistration{}, nil
	}

	return workers, nil
}

// MarkStopped records a terminal status for the worker.
func (r *PostgreSQLWorkerRegistryRepository) MarkStopped(ctx context.Context, workerID string) error {
	if workerID == "" {
		return ErrInvalidArgument
	}

	query := `
		UPDATE embedqueue.embedding_queue_workers
		SET status = 'stopped', stopped_at = CURRENT_TIMESTAMP
		WHERE worker_id = $1 AND status != 'stopped'`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, workerID)
	if err != nil {
		return WrapError(err, "mark worker stopped")
	}
	if result.RowsAffected() == 0 {
		// Either already stopped (fine) or missing entirely.
		var exists bool
		checkErr := qi.QueryRow(
			ctx, `SELECT EXISTS(SELECT 1 FROM `+workerTable+` WHERE worker_id = $1)`, workerID,
		).Scan(&exists)
		if checkErr != nil {
			return WrapError(checkErr, "mark worker stopped")
		}
		if !exists {
			return domainerrors.ErrWorkerNotFound
		}
	}

	return nil
}

// scanWorker is a helper to scan a row into a WorkerRegistration entity.
func (r *PostgreSQLWorkerRegistryRepository) scanWorker(row interface {
	Scan(...interface{}) error
},
) (*entity.WorkerRegistration, error) {
	var workerID, statusStr string
	var lastHeartbeat, startedAt time.Time
	var stoppedAt *time.Time
	var tasksProcessed, totalProcessingMs, errorCount, rateLimitCount int64
	var configJSON []byte

	err := row.Scan(
		&workerID, &statusStr, &lastHeartbeat, &tasksProcessed, &totalProcessingMs,
		&errorCount, &rateLimitCount, &configJSON, &startedAt, &stoppedAt,
	)
	if err != nil {
		return nil, err
	}

	status, err := valueobject.NewWorkerStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid worker status: %w", err)
	}

	var config entity.WorkerConfigSnapshot
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &config); err != nil {
			return nil, fmt.Errorf("unmarshal worker config: %w", err)
		}
	}

	return entity.RestoreWorkerRegistration(
		workerID, status, lastHeartbeat, tasksProcessed,
		time.Duration(totalProcessingMs)*time.Millisecond,
		errorCount, rateLimitCount, config, startedAt, stoppedAt,
	), nil
}
