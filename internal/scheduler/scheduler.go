package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TickFunc is the body of one job execution.
type TickFunc func(ctx context.Context, fired time.Time) error

// JobState describes where a job is in its run cycle.
type JobState string

const (
	StateIdle      JobState = "idle"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

var (
	// ErrJobBusy is returned when a manual trigger finds the previous run
	// still in flight.
	ErrJobBusy = errors.New("scheduler: job already running")
	// ErrUnknownJob is returned for trigger/status lookups of unregistered IDs.
	ErrUnknownJob = errors.New("scheduler: unknown job")
)

// DailyTime is a fixed UTC wall-clock trigger.
type DailyTime struct {
	Hour   int
	Minute int
}

// Job describes one periodic task. Exactly one of Interval or DailyAtUTC
// must be set.
type Job struct {
	ID         string
	Name       string
	Interval   time.Duration
	DailyAtUTC *DailyTime
	Run        TickFunc
}

// Options tune scheduler behaviour.
type Options struct {
	StartupDelay time.Duration
}

// Scheduler owns a set of periodic jobs, guaranteeing at most one concurrent
// execution per job and coalescing ticks that fire late.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	jobs    []*jobEntry
	byID    map[string]*jobEntry
	running bool
	wg      sync.WaitGroup
}

type jobEntry struct {
	job Job

	// runMu enforces max-one-concurrent-run-of-this-job; a tick or manual
	// trigger that cannot take it is skipped, never queued.
	runMu sync.Mutex

	mu      sync.Mutex
	state   JobState
	nextRun time.Time
	lastRun time.Time
	lastErr error
}

// New constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		byID:   map[string]*jobEntry{},
	}
}

// Register adds a job. Must be called before Run.
func (s *Scheduler) Register(job Job) error {
	if job.ID == "" {
		return errors.New("scheduler: job id required")
	}
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %q has no run function", job.ID)
	}
	if (job.Interval <= 0) == (job.DailyAtUTC == nil) {
		return fmt.Errorf("scheduler: job %q needs exactly one of interval or daily trigger", job.ID)
	}
	if job.DailyAtUTC != nil {
		d := job.DailyAtUTC
		if d.Hour < 0 || d.Hour > 23 || d.Minute < 0 || d.Minute > 59 {
			return fmt.Errorf("scheduler: job %q daily trigger out of range", job.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler: cannot register %q while running", job.ID)
	}
	if _, exists := s.byID[job.ID]; exists {
		return fmt.Errorf("scheduler: duplicate job id %q", job.ID)
	}

	entry := &jobEntry{job: job, state: StateIdle}
	s.jobs = append(s.jobs, entry)
	s.byID[job.ID] = entry
	return nil
}

// Run blocks, driving all registered jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	if len(s.jobs) == 0 {
		s.mu.Unlock()
		return errors.New("scheduler: no jobs registered")
	}
	s.running = true
	jobs := s.jobs
	s.mu.Unlock()

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setRunning(false)
			return ctx.Err()
		case <-timer.C:
		}
	}

	for _, entry := range jobs {
		s.wg.Add(1)
		go func(e *jobEntry) {
			defer s.wg.Done()
			s.loop(ctx, e)
		}(entry)
	}

	<-ctx.Done()
	s.wg.Wait()
	s.setRunning(false)
	return ctx.Err()
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context, e *jobEntry) {
	for {
		// Computing the next fire from the current time after each run is
		// what coalesces late ticks: a run that overlaps its own next slot
		// simply schedules the one after.
		next := e.next(time.Now().UTC())
		e.mu.Lock()
		e.nextRun = next
		e.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runJob(ctx, e, next)
	}
}

func (e *jobEntry) next(now time.Time) time.Time {
	if e.job.Interval > 0 {
		next := now.Truncate(e.job.Interval)
		if !next.After(now) {
			next = next.Add(e.job.Interval)
		}
		return next
	}

	d := e.job.DailyAtUTC
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) runJob(ctx context.Context, e *jobEntry, fired time.Time) error {
	if !e.runMu.TryLock() {
		s.logger.Warn().Str("job_id", e.job.ID).Msg("previous run still in flight, skipping tick")
		return ErrJobBusy
	}
	defer e.runMu.Unlock()

	runID := uuid.NewString()
	logger := s.logger.With().Str("job_id", e.job.ID).Str("run_id", runID).Logger()

	e.mu.Lock()
	e.state = StateRunning
	e.lastRun = fired
	e.mu.Unlock()

	logger.Debug().Time("fired", fired).Msg("job started")
	err := e.job.Run(ctx, fired)

	e.mu.Lock()
	e.lastErr = err
	if err != nil {
		e.state = StateFailed
	} else {
		e.state = StateSucceeded
	}
	e.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Msg("job run failed")
		return err
	}
	logger.Debug().Msg("job run succeeded")
	return nil
}

// TriggerNow runs a job immediately through the same execution path as its
// scheduled ticks. Returns ErrJobBusy when a run is already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context, jobID string) error {
	s.mu.Lock()
	entry, ok := s.byID[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, jobID)
	}
	return s.runJob(ctx, entry, time.Now().UTC())
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	ID          string
	Name        string
	State       JobState
	NextRunTime time.Time
	LastRunTime time.Time
	LastError   error
}

// Status is a point-in-time view of the whole scheduler.
type Status struct {
	Running bool
	Jobs    []JobStatus
}

// Status reports run state and next-fire times per job.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running, Jobs: make([]JobStatus, 0, len(s.jobs))}
	for _, e := range s.jobs {
		e.mu.Lock()
		status.Jobs = append(status.Jobs, JobStatus{
			ID:          e.job.ID,
			Name:        e.job.Name,
			State:       e.state,
			NextRunTime: e.nextRun,
			LastRunTime: e.lastRun,
			LastError:   e.lastErr,
		})
		e.mu.Unlock()
	}
	return status
}
