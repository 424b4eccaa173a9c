package service

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/inbound"
	"embedqueue/internal/port/outbound"
)

// Task manager errors.
var (
	ErrTaskQueueFull     = errors.New("task queue is full")
	ErrTaskManagerClosed = errors.New("task manager is shut down")
)

// TaskExecutor performs one in-process embedding task. The task manager owns
// scheduling only; what a task does is injected.
type TaskExecutor func(ctx context.Context, request outbound.EmbeddingRequest) error

// queuedTask is one waiting task. The submission sequence breaks priority
// ties so equal-priority tasks dispatch in arrival order.
type queuedTask struct {
	id       uuid.UUID
	priority valueobject.Priority
	seq      uint64
	request  outbound.EmbeddingRequest
	addedAt  time.Time
}

// taskHeap orders tasks by priority rank descending, then submission
// sequence ascending.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority.Rank() != h[j].priority.Rank() {
		return h[i].priority.Rank() > h[j].priority.Rank()
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*queuedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

// InProcessTaskManager is the non-durable mirror of the queue's priority
// vocabulary for callers that want best-effort, immediate embedding work
// without a round trip through the store. Tasks wait in a priority heap and
// dispatch under a weighted-semaphore concurrency bound; nothing here
// survives a process restart.
type InProcessTaskManager struct {
	execute       TaskExecutor
	maxConcurrent int64
	queueCapacity int
	sem           *semaphore.Weighted
	logger        *slogger.Logger

	mu     sync.Mutex
	tasks  taskHeap
	paused bool
	closed bool
	seq    uint64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	taskCtx        context.Context
	taskCancel     context.CancelFunc
	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
}

// NewInProcessTaskManager creates a task manager and starts its dispatch
// loop. Callers must Shutdown it to release the loop.
func NewInProcessTaskManager(cfg config.TaskManagerConfig, execute TaskExecutor) *InProcessTaskManager {
	if execute == nil {
		panic("task executor cannot be nil")
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}

	taskCtx, taskCancel := context.WithCancel(context.Background())
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())

	m := &InProcessTaskManager{
		execute:        execute,
		maxConcurrent:  int64(cfg.MaxConcurrent),
		queueCapacity:  cfg.QueueCapacity,
		sem:            semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:         slogger.WithComponent("task-manager"),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		taskCtx:        taskCtx,
		taskCancel:     taskCancel,
		dispatchCtx:    dispatchCtx,
		dispatchCancel: dispatchCancel,
	}
	go m.run()
	return m
}

// AddTask enqueues a task for dispatch. Adding while paused succeeds; the
// task waits in the heap until processing resumes.
func (m *InProcessTaskManager) AddTask(priority valueobject.Priority, request outbound.EmbeddingRequest) (uuid.UUID, error) {
	if _, err := valueobject.NewPriority(priority.String()); err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return uuid.Nil, ErrTaskManagerClosed
	}
	if m.queueCapacity > 0 && len(m.tasks) >= m.queueCapacity {
		m.mu.Unlock()
		return uuid.Nil, ErrTaskQueueFull
	}
	m.seq++
	task := &queuedTask{
		id:       uuid.New(),
		priority: priority,
		seq:      m.seq,
		request:  request,
		addedAt:  time.Now(),
	}
	heap.Push(&m.tasks, task)
	m.mu.Unlock()

	m.kick()
	return task.id, nil
}

// Pause stops dispatching queued tasks. In-flight tasks run to completion.
func (m *InProcessTaskManager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	m.logger.InfoNoCtx("task processing paused", nil)
}

// Resume restarts dispatch for queued tasks.
func (m *InProcessTaskManager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.logger.InfoNoCtx("task processing resumed", nil)
	m.kick()
}

// ClearAllTasks drops every queued task and returns how many were dropped.
// In-flight tasks are not interrupted.
func (m *InProcessTaskManager) ClearAllTasks() int {
	m.mu.Lock()
	dropped := len(m.tasks)
	m.tasks = m.tasks[:0]
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.InfoNoCtx("cleared queued tasks", slogger.Field("dropped", dropped))
	}
	return dropped
}

// QueueStatus reports queue depth, paused state and per-priority counts.
func (m *InProcessTaskManager) QueueStatus() inbound.TaskQueueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[string]int{
		valueobject.PriorityHigh.String():   0,
		valueobject.PriorityMedium.String(): 0,
		valueobject.PriorityLow.String():    0,
	}
	for _, task := range m.tasks {
		counts[task.priority.String()]++
	}

	return inbound.TaskQueueStatus{
		TotalTasks:     len(m.tasks),
		IsProcessing:   !m.paused && !m.closed,
		PriorityCounts: counts,
	}
}

// Shutdown stops the dispatch loop, waits for in-flight tasks up to the
// context deadline, then cancels any stragglers.
func (m *InProcessTaskManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	m.dispatchCancel()
	<-m.done

	// Draining the full semaphore weight waits for every in-flight task.
	if err := m.sem.Acquire(ctx, m.maxConcurrent); err != nil {
		m.taskCancel()
		return err
	}
	m.sem.Release(m.maxConcurrent)
	m.taskCancel()
	return nil
}

// run is the dispatch loop: it sleeps until kicked, then launches as many
// queued tasks as the semaphore allows.
func (m *InProcessTaskManager) run() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		case <-m.wake:
		}
		m.dispatchReady()
	}
}

func (m *InProcessTaskManager) dispatchReady() {
	for m.hasDispatchable() {
		if err := m.sem.Acquire(m.dispatchCtx, 1); err != nil {
			return
		}
		task := m.popDispatchable()
		if task == nil {
			// Paused or cleared while we waited for capacity.
			m.sem.Release(1)
			return
		}
		go m.runTask(task)
	}
}

func (m *InProcessTaskManager) hasDispatchable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.paused && !m.closed && len(m.tasks) > 0
}

func (m *InProcessTaskManager) popDispatchable() *queuedTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused || m.closed || len(m.tasks) == 0 {
		return nil
	}
	return heap.Pop(&m.tasks).(*queuedTask)
}

func (m *InProcessTaskManager) runTask(task *queuedTask) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorNoCtx("task panicked", slogger.Fields2(
				"task_id", task.id.String(),
				"panic", r,
			))
		}
		m.sem.Release(1)
		m.kick()
	}()

	start := time.Now()
	err := m.execute(m.taskCtx, task.request)
	duration := time.Since(start)

	if err != nil {
		m.logger.ErrorWithErrorNoCtx(err, "task failed", slogger.Fields3(
			"task_id", task.id.String(),
			"priority", task.priority.String(),
			"duration", duration.String(),
		))
		return
	}
	m.logger.DebugNoCtx("task completed", slogger.Fields3(
		"task_id", task.id.String(),
		"priority", task.priority.String(),
		"duration", duration.String(),
	))
}

// kick nudges the dispatch loop; a pending kick already covers us.
func (m *InProcessTaskManager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
