package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	var runs atomic.Int32
	s.Every("tick", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start(context.Background())
	waitFor(t, func() bool { return runs.Load() >= 3 })
	s.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("job kept running after Stop")
	}
}

func TestSchedulerRunNow(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	var runs atomic.Int32
	s.Every("sweep", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Every("broken", time.Hour, func(ctx context.Context) error {
		return errors.New("disk full")
	})
	s.Every("panics", time.Hour, func(ctx context.Context) error {
		panic("boom")
	})

	if err := s.RunNow(context.Background(), "sweep"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
	if err := s.RunNow(context.Background(), "broken"); err == nil {
		t.Error("expected job error")
	}
	if err := s.RunNow(context.Background(), "panics"); err == nil {
		t.Error("expected panic to surface as error")
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	s.Stop()
}

func TestQueueRunsInOrder(t *testing.T) {
	q := NewQueue(10, zerolog.Nop())

	var mu sync.Mutex
	var order []int
	var ids []string
	for i := 0; i < 5; i++ {
		i := i
		id, err := q.Enqueue(func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i * 10, nil
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	if task, _ := q.Get(ids[0]); task.Status != StatusPending {
		t.Errorf("status before Start = %s, want pending", task.Status)
	}

	q.Start(context.Background())
	defer q.Stop()

	waitFor(t, func() bool {
		task, _ := q.Get(ids[4])
		return task.Status == StatusCompleted
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
	task, _ := q.Get(ids[2])
	if task.Result != 20 || task.StartedAt.IsZero() || task.FinishedAt.IsZero() {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestQueueSingleWorker(t *testing.T) {
	q := NewQueue(10, zerolog.Nop())
	q.Start(context.Background())
	defer q.Stop()

	var running, maxRunning atomic.Int32
	var last string
	for i := 0; i < 4; i++ {
		last, _ = q.Enqueue(func(ctx context.Context) (any, error) {
			n := running.Add(1)
			if n > maxRunning.Load() {
				maxRunning.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
	}

	waitFor(t, func() bool {
		task, _ := q.Get(last)
		return task.Status == StatusCompleted
	})
	if maxRunning.Load() != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxRunning.Load())
	}
}

func TestQueueFailures(t *testing.T) {
	q := NewQueue(10, zerolog.Nop())
	q.Start(context.Background())
	defer q.Stop()

	failed, _ := q.Enqueue(func(ctx context.Context) (any, error) {
		return nil, errors.New("transcription failed")
	})
	panicked, _ := q.Enqueue(func(ctx context.Context) (any, error) {
		panic("nil map")
	})
	after, _ := q.Enqueue(func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	waitFor(t, func() bool {
		task, _ := q.Get(after)
		return task.Status == StatusCompleted
	})
	if task, _ := q.Get(failed); task.Status != StatusFailed || task.Error != "transcription failed" {
		t.Errorf("unexpected failed task %+v", task)
	}
	if task, _ := q.Get(panicked); task.Status != StatusFailed {
		t.Errorf("unexpected panicked task %+v", task)
	}
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(2, zerolog.Nop())
	noop := func(ctx context.Context) (any, error) { return nil, nil }

	q.Enqueue(noop)
	q.Enqueue(noop)
	if _, err := q.Enqueue(noop); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	if q.Depth() != 2 {
		t.Errorf("Depth = %d, want 2", q.Depth())
	}
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(2, zerolog.Nop())
	q.Start(context.Background())
	q.Stop()

	if _, err := q.Enqueue(func(ctx context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("err = %v, want ErrQueueClosed", err)
	}
}

func TestQueueStopReleasesWaitingTasks(t *testing.T) {
	q := NewQueue(4, zerolog.Nop())
	q.Start(context.Background())

	started := make(chan struct{})
	var blockedReleased atomic.Int32
	blocked, _ := q.EnqueueWithRelease(func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, func() { blockedReleased.Add(1) })
	<-started

	var ran, released atomic.Int32
	waiting, err := q.EnqueueWithRelease(func(ctx context.Context) (any, error) {
		ran.Add(1)
		return nil, nil
	}, func() { released.Add(1) })
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	q.Stop()

	if ran.Load() != 0 {
		t.Error("waiting task ran after Stop")
	}
	if released.Load() != 1 {
		t.Errorf("waiting task released %d times, want 1", released.Load())
	}
	if blockedReleased.Load() != 1 {
		t.Errorf("running task released %d times, want 1", blockedReleased.Load())
	}
	if task, _ := q.Get(waiting); task.Status != StatusFailed || task.Error != ErrQueueStopped.Error() {
		t.Errorf("unexpected waiting task %+v", task)
	}
	if task, _ := q.Get(blocked); task.Status != StatusFailed {
		t.Errorf("unexpected blocked task %+v", task)
	}
	if q.Depth() != 0 {
		t.Errorf("Depth = %d after Stop, want 0", q.Depth())
	}
}

func TestQueueStopWithoutStartReleases(t *testing.T) {
	q := NewQueue(2, zerolog.Nop())
	var released atomic.Int32
	q.EnqueueWithRelease(func(ctx context.Context) (any, error) { return nil, nil }, func() { released.Add(1) })

	q.Stop()

	if released.Load() != 1 {
		t.Errorf("released %d times, want 1", released.Load())
	}
}

func TestQueueReleaseAfterRun(t *testing.T) {
	q := NewQueue(2, zerolog.Nop())
	q.Start(context.Background())
	defer q.Stop()

	var released atomic.Int32
	id, _ := q.EnqueueWithRelease(func(ctx context.Context) (any, error) {
		if released.Load() != 0 {
			return nil, errors.New("released before run finished")
		}
		return "ok", nil
	}, func() { released.Add(1) })

	waitFor(t, func() bool { return released.Load() == 1 })
	if task, _ := q.Get(id); task.Status != StatusCompleted {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestQueueGetUnknown(t *testing.T) {
	q := NewQueue(1, zerolog.Nop())
	if _, ok := q.Get("nope"); ok {
		t.Error("expected unknown task")
	}
}

func TestQueuePrune(t *testing.T) {
	q := NewQueue(10, zerolog.Nop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	q.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	q.Start(context.Background())
	defer q.Stop()

	id, _ := q.Enqueue(func(ctx context.Context) (any, error) { return nil, nil })
	waitFor(t, func() bool {
		task, _ := q.Get(id)
		return task.Status == StatusCompleted
	})

	if removed := q.Prune(time.Hour); removed != 0 {
		t.Errorf("removed = %d before expiry", removed)
	}
	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	if removed := q.Prune(time.Hour); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := q.Get(id); ok {
		t.Error("pruned task still visible")
	}
}
