// Package scheduler implements a lightweight in-process job scheduler for the
// worker binary. Jobs run on their own schedules; a failed run is logged and
// the job stays scheduled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/encorelab/SCORE/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrSchedulerStopped is returned when operations are attempted on a stopped scheduler.
	ErrSchedulerStopped = errors.New("scheduler is stopped")

	// ErrJobNotFound is returned when a job is not registered.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyExists is returned when registering a duplicate job name.
	ErrJobAlreadyExists = errors.New("job already exists")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of scheduled work.
type Job interface {
	// Name returns the unique job name.
	Name() string

	// Run executes the job.
	Run(ctx context.Context) error

	// Description returns a human-readable description.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the next run time strictly after t.
	Next(t time.Time) time.Time

	// String returns a human-readable schedule description.
	String() string
}

// JobResult records one execution of a job.
type JobResult struct {
	JobName    string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Err        error
}

// Success reports whether the execution succeeded.
func (r JobResult) Success() bool {
	return r.Err == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// entry is a registered job with its schedule and next fire time.
type entry struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
}

// Config contains scheduler configuration.
type Config struct {
	// TickInterval is how often the scheduler checks for due jobs.
	TickInterval time.Duration

	// ResultHistorySize bounds the kept execution history per scheduler.
	ResultHistorySize int

	// JobTimeout bounds a single job execution. Zero means no timeout.
	JobTimeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:      time.Second,
		ResultHistorySize: 100,
		JobTimeout:        5 * time.Minute,
	}
}

// Scheduler runs registered jobs on their schedules.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	results []JobResult
	config  Config
	log     *logger.Logger
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a new scheduler.
func New(config Config) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.ResultHistorySize <= 0 {
		config.ResultHistorySize = 100
	}
	if config.Logger == nil {
		config.Logger = logger.Default()
	}

	return &Scheduler{
		entries: make(map[string]*entry),
		config:  config,
		log:     config.Logger.With(logger.Component("scheduler")),
	}
}

// Register adds a job with its schedule. The first run fires one schedule
// interval from now, not immediately.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil || schedule == nil {
		return errors.New("scheduler: job and schedule are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.Name())
	}

	s.entries[job.Name()] = &entry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now()),
	}

	s.log.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("schedule", schedule.String()),
	)

	return nil
}

// Start runs the scheduling loop until the context is cancelled or Stop is
// called. Blocks; run it on its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", logger.Int("jobs", s.jobCount()))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping: context cancelled")
			return
		case <-s.stopCh:
			s.log.Info("scheduler stopping")
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

// Stop signals the scheduling loop to exit and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return s.execute(ctx, e.job).Err
}

// Results returns a copy of the recent execution history, newest last.
func (s *Scheduler) Results() []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobResult, len(s.results))
	copy(out, s.results)
	return out
}

// JobNames returns the registered job names.
func (s *Scheduler) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// runDue executes every job whose next fire time has passed.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.nextRun.After(now) {
			due = append(due, e)
			e.nextRun = e.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.execute(ctx, e.job)
	}
}

// execute runs one job, records the result, and logs the outcome.
func (s *Scheduler) execute(ctx context.Context, job Job) JobResult {
	runCtx := ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	started := time.Now()
	err := job.Run(runCtx)
	finished := time.Now()

	result := JobResult{
		JobName:    job.Name(),
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Err:        err,
	}

	s.mu.Lock()
	s.results = append(s.results, result)
	if len(s.results) > s.config.ResultHistorySize {
		s.results = s.results[len(s.results)-s.config.ResultHistorySize:]
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed",
			logger.String("job", job.Name()),
			logger.Duration("duration", result.Duration),
			logger.Err(err),
		)
	} else {
		s.log.Info("job completed",
			logger.String("job", job.Name()),
			logger.Duration("duration", result.Duration),
		)
	}

	return result
}
