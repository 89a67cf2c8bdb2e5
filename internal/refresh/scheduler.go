package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Job is a unit of refresh work, typically fetching one query.
type Job struct {
	// Name identifies the job in outcomes and logs.
	Name string

	// Run performs the work. A returned error is reported in the outcome.
	Run func(ctx context.Context) error
}

// Outcome holds the result of running a single [Job].
type Outcome struct {
	// Name is the job name.
	Name string

	// Err is the error returned by the job, or a panic turned into an error.
	Err error

	// Duration is how long the job ran.
	Duration time.Duration

	// At is when the job finished.
	At time.Time
}

// Scheduler runs a fixed set of jobs through a bounded worker pool: once
// immediately on start, then every interval.
//
// Outcomes are emitted on [Scheduler.Outcomes], which is closed when the
// scheduler stops. All lifecycle methods are safe for concurrent use.
type Scheduler struct {
	jobs           []Job
	interval       time.Duration
	maxConcurrency int
	clock          clockwork.Clock
	outcomes       chan Outcome
	logger         *slog.Logger
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a [Scheduler].
//
// Parameters:
//   - jobs: Jobs to run on every round
//   - interval: Time between rounds; zero runs a single round
//   - maxConcurrency: Maximum number of jobs running at once
//   - clock: Clock driving the interval ticker
//   - logger: Logger for panic recovery
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop].
func NewScheduler(jobs []Job, interval time.Duration, maxConcurrency int, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Scheduler{
		jobs:           jobs,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		clock:          clock,
		outcomes:       make(chan Outcome, len(jobs)),
		logger:         logger,
	}
}

// Outcomes returns a receive-only channel that emits one [Outcome] per job
// run. Consumers should read until it is closed.
func (s *Scheduler) Outcomes() <-chan Outcome {
	return s.outcomes
}

// Start begins the refresh loop in a background goroutine.
//
// Start is non-blocking and idempotent. If Stop was called before Start,
// Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.outcomes) })

		s.runRound(runCtx)
		if s.interval <= 0 {
			return
		}

		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.Chan():
				s.runRound(runCtx)
			}
		}
	}()
}

// Stop halts the scheduler and waits for running jobs to return.
//
// Stop is idempotent. Calling Stop before Start is a safe no-op that closes
// the outcomes channel.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.closeOnce.Do(func() { close(s.outcomes) })
}

// runRound runs every job once, at most maxConcurrency at a time.
func (s *Scheduler) runRound(ctx context.Context) {
	if len(s.jobs) == 0 {
		return
	}
	jobs := make(chan Job, len(s.jobs))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcome := s.runJob(ctx, job)
				select {
				case s.outcomes <- outcome:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, job := range s.jobs {
		select {
		case jobs <- job:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// runJob runs one job with panic recovery. A panic is logged with a
// correlation ID and reported as an error carrying the same ID.
func (s *Scheduler) runJob(ctx context.Context, job Job) (outcome Outcome) {
	start := s.clock.Now()
	outcome.Name = job.Name

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("refresh job panic",
				"correlation_id", correlationID,
				"job", job.Name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			outcome.Err = fmt.Errorf("refresh job panic (correlation_id: %s)", correlationID)
		}
		outcome.At = s.clock.Now()
		outcome.Duration = outcome.At.Sub(start)
	}()

	outcome.Err = job.Run(ctx)
	return outcome
}
