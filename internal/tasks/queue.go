package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/observability"
)

var (
	// ErrQueueFull is returned when the backlog is at capacity
	ErrQueueFull = errors.New("task queue is full")
	// ErrQueueClosed is returned after Stop
	ErrQueueClosed = errors.New("task queue is closed")
	// ErrQueueStopped is recorded on tasks that never started before Stop
	ErrQueueStopped = errors.New("queue stopped")
)

// Status is a task's position in its lifecycle
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Func is the work a task performs. Its result is kept for polling.
type Func func(ctx context.Context) (any, error)

// Task is a snapshot of one queued unit of work
type Task struct {
	ID         string    `json:"task_id"`
	Status     Status    `json:"status"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

func (t *Task) done() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

type queued struct {
	id      string
	fn      Func
	release func()
}

// Queue runs tasks one at a time in submission order
type Queue struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	pending chan queued
	closed  bool
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger
}

// NewQueue creates a queue holding at most capacity waiting tasks
func NewQueue(capacity int, logger zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		tasks:   make(map[string]*Task),
		pending: make(chan queued, capacity),
		now:     time.Now,
		logger:  logger.With().Str("component", "task_queue").Logger(),
	}
}

// Enqueue registers fn and returns its id without waiting for it to run
func (q *Queue) Enqueue(fn Func) (string, error) {
	return q.EnqueueWithRelease(fn, nil)
}

// EnqueueWithRelease is Enqueue with a hook that frees resources held for the
// task. release runs exactly once: after fn returns, or when Stop discards the
// task before it started. It does not run when enqueueing fails.
func (q *Queue) EnqueueWithRelease(fn Func, release func()) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	id := uuid.New().String()
	select {
	case q.pending <- queued{id: id, fn: fn, release: release}:
	default:
		observability.RecordTask("rejected")
		return "", ErrQueueFull
	}
	q.tasks[id] = &Task{ID: id, Status: StatusPending, CreatedAt: q.now()}
	observability.SetQueueDepth(len(q.pending))
	return id, nil
}

// Get returns a snapshot of the task
func (q *Queue) Get(id string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Depth returns the number of tasks waiting to start
func (q *Queue) Depth() int {
	return len(q.pending)
}

// Start launches the single worker
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go q.work(ctx)
}

// Stop rejects new tasks, waits for the running one to finish and fails
// every task still waiting with ErrQueueStopped, releasing its resources.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	for {
		select {
		case item := <-q.pending:
			q.discard(item)
		default:
			observability.SetQueueDepth(0)
			return
		}
	}
}

// Prune forgets finished tasks older than maxAge and returns how many
func (q *Queue) Prune(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-maxAge)
	removed := 0
	for id, t := range q.tasks {
		if t.done() && t.FinishedAt.Before(cutoff) {
			delete(q.tasks, id)
			removed++
		}
	}
	observability.RecordSweep("tasks", removed)
	return removed
}

func (q *Queue) work(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.pending:
			observability.SetQueueDepth(len(q.pending))
			if ctx.Err() != nil {
				q.discard(item)
				continue
			}
			q.run(ctx, item)
		}
	}
}

func (q *Queue) run(ctx context.Context, item queued) {
	if item.release != nil {
		defer item.release()
	}
	q.setStatus(item.id, func(t *Task) {
		t.Status = StatusRunning
		t.StartedAt = q.now()
	})

	result, err := q.call(ctx, item.fn)

	q.setStatus(item.id, func(t *Task) {
		t.FinishedAt = q.now()
		if err != nil {
			t.Status = StatusFailed
			t.Error = err.Error()
			return
		}
		t.Status = StatusCompleted
		t.Result = result
	})

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		q.logger.Error().Err(err).Str("task_id", item.id).Msg("Task failed")
	}
	observability.RecordTask(string(status))
}

// discard fails a task that never started
func (q *Queue) discard(item queued) {
	if item.release != nil {
		item.release()
	}
	q.setStatus(item.id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = ErrQueueStopped.Error()
		t.FinishedAt = q.now()
	})
	observability.RecordTask(string(StatusFailed))
	q.logger.Warn().Str("task_id", item.id).Msg("Discarded waiting task on stop")
}

func (q *Queue) call(ctx context.Context, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (q *Queue) setStatus(id string, fn func(t *Task)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.tasks[id]; ok {
		fn(t)
	}
}
