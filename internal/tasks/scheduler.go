package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownJob is returned by RunNow for names never registered with Every
var ErrUnknownJob = errors.New("unknown job")

// Job is one unit of periodic maintenance
type Job func(ctx context.Context) error

type scheduledJob struct {
	name     string
	interval time.Duration
	run      Job
}

// Scheduler runs registered jobs on fixed intervals until stopped
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*scheduledJob
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewScheduler creates an idle scheduler
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With().Str("component", "scheduler").Logger()}
}

// Every registers job to run each interval once the scheduler is started.
// The first run happens one interval after Start.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &scheduledJob{name: name, interval: interval, run: job})
}

// Start launches one ticker goroutine per job. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		if j.interval <= 0 {
			s.logger.Warn().Str("job", j.name).Msg("Job has no interval, not scheduling")
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop cancels every loop and waits for in-flight runs to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunNow runs the named job once on the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var job *scheduledJob
	for _, j := range s.jobs {
		if j.name == name {
			job = j
			break
		}
	}
	s.mu.Unlock()

	if job == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runOnce(ctx, job)
}

func (s *Scheduler) loop(ctx context.Context, j *scheduledJob) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *scheduledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
			s.logger.Error().Str("job", j.name).Interface("panic", r).Msg("Scheduled job panicked")
		}
	}()

	start := time.Now()
	if err = j.run(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", j.name).Msg("Scheduled job failed")
		return err
	}
	s.logger.Debug().Str("job", j.name).Dur("duration", time.Since(start)).Msg("Scheduled job finished")
	return nil
}
