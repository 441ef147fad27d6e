// Package scheduler runs one-shot jobs at a future time, keyed by a
// deterministic job id. Jobs live in memory only.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"k8s.io/utils/clock"
)

// ErrSchedulerInternal wraps a fault raised by a job callback.
var ErrSchedulerInternal = errors.New("scheduler internal error")

// Func is the callback a job delivers its payload to.
type Func func(ctx context.Context, payload string) error

// Job is a pending one-shot job.
type Job struct {
	ID      string    `json:"job_id"`
	RunAt   time.Time `json:"run_at"`
	Payload string    `json:"payload"`
}

type entry struct {
	job   Job
	fn    Func
	seq   uint64
	index int
}

// Scheduler holds pending jobs and fires them from a single timer loop.
type Scheduler struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*entry
	queue   jobQueue
	seq     uint64
	wake    chan struct{}
	running bool

	inflight sync.WaitGroup

	failures metric.Int64Counter
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock. Tests pass a fake clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New creates a scheduler. Call Run to start firing jobs.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock.RealClock{},
		logger: logger,
		jobs:   make(map[string]*entry),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initMetrics()
	return s
}

func (s *Scheduler) initMetrics() {
	meter := otel.Meter("sandplane/scheduler")

	failures, err := meter.Int64Counter("sandplane.scheduler.job_failures",
		metric.WithDescription("Job callbacks that returned an error or panicked"),
	)
	if err != nil {
		s.logger.Warn("failed to register job failure counter", "error", err)
	}
	s.failures = failures

	_, err = meter.Int64ObservableGauge("sandplane.scheduler.pending_jobs",
		metric.WithDescription("Jobs waiting for their run time"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(s.Len()))
			return nil
		}),
	)
	if err != nil {
		s.logger.Warn("failed to register pending jobs gauge", "error", err)
	}
}

// Schedule installs a job that calls fn(payload) at runAt. A pending job
// with the same id is replaced.
func (s *Scheduler) Schedule(jobID string, runAt time.Time, fn Func, payload string) {
	s.mu.Lock()
	s.seq++
	if e, ok := s.jobs[jobID]; ok {
		e.job.RunAt = runAt
		e.job.Payload = payload
		e.fn = fn
		e.seq = s.seq
		heap.Fix(&s.queue, e.index)
		s.logger.Info("rescheduled job", "job_id", jobID, "run_at", runAt)
	} else {
		e := &entry{
			job: Job{ID: jobID, RunAt: runAt, Payload: payload},
			fn:  fn,
			seq: s.seq,
		}
		s.jobs[jobID] = e
		heap.Push(&s.queue, e)
		s.logger.Info("scheduled job", "job_id", jobID, "run_at", runAt)
	}
	s.mu.Unlock()
	s.notify()
}

// Cancel removes a pending job. It reports whether a job was removed.
// A callback that has already started is not affected.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	e, ok := s.jobs[jobID]
	if ok {
		heap.Remove(&s.queue, e.index)
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()

	if ok {
		s.logger.Info("cancelled job", "job_id", jobID)
		s.notify()
	}
	return ok
}

// Get returns the pending job with the given id.
func (s *Scheduler) Get(jobID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// ListPending returns pending jobs ordered by run time.
func (s *Scheduler) ListPending() []Job {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		jobs = append(jobs, e.job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].RunAt.Equal(jobs[j].RunAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
	return jobs
}

// Len returns the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run fires due jobs until ctx is cancelled. Callbacks receive a context
// that outlives ctx so shutdown does not abort an in-flight teardown;
// use Wait to block until they finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	jobCtx := context.WithoutCancel(ctx)
	s.logger.Info("scheduler started")

	for {
		var timer clock.Timer
		var fire <-chan time.Time

		s.mu.Lock()
		s.dispatchDue(jobCtx)
		if len(s.queue) > 0 {
			runAt := s.queue[0].job.RunAt
			timer = s.clock.NewTimer(runAt.Sub(s.clock.Now()))
			fire = timer.C()
			// The clock may have moved between reading it and arming the timer.
			if !s.clock.Now().Before(runAt) {
				timer.Stop()
				s.mu.Unlock()
				continue
			}
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("scheduler stopped", "pending", s.Len())
			return nil
		case <-s.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// dispatchDue starts every job whose run time has passed. Caller holds s.mu.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.clock.Now()
	for len(s.queue) > 0 && !s.queue[0].job.RunAt.After(now) {
		e := heap.Pop(&s.queue).(*entry)
		delete(s.jobs, e.job.ID)

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.execute(ctx, e)
		}()
	}
}

func (s *Scheduler) execute(ctx context.Context, e *entry) {
	start := s.clock.Now()
	err := safeCall(ctx, e)
	if err != nil {
		if s.failures != nil {
			s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("job_id", e.job.ID)))
		}
		s.logger.Error("job failed", "job_id", e.job.ID, "payload", e.job.Payload, "error", err)
		return
	}
	s.logger.Info("job completed", "job_id", e.job.ID, "duration", s.clock.Since(start))
}

func safeCall(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: job %s panicked: %v\n%s", ErrSchedulerInternal, e.job.ID, r, debug.Stack())
		}
	}()
	return e.fn(ctx, e.job.Payload)
}

// Wait blocks until every started callback has returned.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}
