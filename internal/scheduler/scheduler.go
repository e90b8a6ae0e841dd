// Package scheduler owns the in-memory view of pending reminder jobs and
// fires each one when its trigger time is reached.
//
// The job store is the source of truth. The scheduler rebuilds its heap from
// it on start, fires overdue jobs before accepting new ones, and removes a
// job from the store once its handler has run, whatever the outcome.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/triggers"
)

// DefaultMaxSleep caps the wait between two looks at the queue.
const DefaultMaxSleep = time.Minute

type Store interface {
	InsertJob(ctx context.Context, at time.Time, kind domain.JobKind, payload json.RawMessage) (int64, error)
	RemoveJob(ctx context.Context, id int64) error
	ListPendingJobs(ctx context.Context) ([]domain.Job, error)
}

// Handler runs a fired job. A returned error is logged and counted; the job
// is not retried.
type Handler func(ctx context.Context, job domain.Job) error

type Config struct {
	// Location is the reference zone of naive trigger times.
	Location *time.Location
	MaxSleep time.Duration
}

type Scheduler struct {
	config   Config
	store    Store
	handlers map[domain.JobKind]Handler
	metrics  metrics.Sink
	logger   *zap.SugaredLogger
	clock    func() time.Time

	mu      sync.Mutex
	pending *pendingSet
	wake    chan struct{}

	recoverMu sync.Mutex
	recovered bool
	loaded    chan struct{} // closed once the store is loaded into the heap
	ready     chan struct{} // closed once overdue jobs have fired
}

func New(config Config, store Store, logger *zap.SugaredLogger) *Scheduler {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.MaxSleep <= 0 {
		config.MaxSleep = DefaultMaxSleep
	}
	return &Scheduler{
		config:   config,
		store:    store,
		handlers: make(map[domain.JobKind]Handler),
		metrics:  metrics.NewNoopSink(),
		logger:   logger,
		clock:    time.Now,
		pending:  newPendingSet(),
		wake:     make(chan struct{}, 1),
		loaded:   make(chan struct{}),
		ready:    make(chan struct{}),
	}
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink metrics.Sink) *Scheduler {
	s.metrics = sink
	return s
}

// Handle registers the handler for a job kind. It must be called before
// Recover or Run.
func (s *Scheduler) Handle(kind domain.JobKind, h Handler) *Scheduler {
	s.handlers[kind] = h
	return s
}

// Now returns the current naive time in the reference zone.
func (s *Scheduler) Now() time.Time {
	return triggers.Naive(s.clock(), s.config.Location)
}

// Pending returns the number of jobs waiting in memory.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len()
}

// Schedule persists a job and queues it. It blocks until recovery has
// finished so a new job can never overtake an overdue one.
func (s *Scheduler) Schedule(ctx context.Context, at time.Time, kind domain.JobKind, payload json.RawMessage) (int64, error) {
	if err := waitGate(ctx, s.ready); err != nil {
		return 0, errors.Wrap(err, "scheduler not ready")
	}

	at = triggers.Strip(at)
	id, err := s.store.InsertJob(ctx, at, kind, payload)
	if err != nil {
		return 0, errors.Wrapf(err, "schedule %s at %s", kind, at.Format(triggers.NaiveLayout))
	}

	s.mu.Lock()
	s.pending.add(domain.Job{ID: id, TriggerTime: at, Kind: kind, Payload: payload})
	n := s.pending.len()
	s.mu.Unlock()

	s.metrics.JobScheduled(string(kind))
	s.metrics.PendingJobs(n)
	s.notify()

	s.logger.Debugw("scheduler: job scheduled", "job_id", id, "kind", kind,
		"state", domain.JobStatePending, "trigger_time", at.Format(triggers.NaiveLayout))
	return id, nil
}

// Cancel drops a pending job from memory and from the store. Unknown ids
// are a no-op. If the store refuses the removal the job is queued again.
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	if err := waitGate(ctx, s.loaded); err != nil {
		return errors.Wrap(err, "scheduler not loaded")
	}

	s.mu.Lock()
	job, found := s.pending.remove(id)
	s.mu.Unlock()

	if err := s.store.RemoveJob(ctx, id); err != nil {
		if found {
			s.mu.Lock()
			s.pending.add(job)
			s.mu.Unlock()
			s.notify()
		}
		return errors.Wrapf(err, "cancel job %d", id)
	}

	if found {
		s.metrics.JobCancelled()
		s.metrics.PendingJobs(s.Pending())
		s.notify()
		s.logger.Debugw("scheduler: job cancelled", "job_id", id, "kind", job.Kind, "state", domain.JobStateCancelled)
	}
	return nil
}

// Recover loads every stored job and fires the overdue ones. It runs once;
// after a failure it may be called again.
func (s *Scheduler) Recover(ctx context.Context) error {
	s.recoverMu.Lock()
	defer s.recoverMu.Unlock()
	if s.recovered {
		return nil
	}

	jobs, err := s.store.ListPendingJobs(ctx)
	if err != nil {
		return errors.Wrap(err, "load pending jobs")
	}

	s.mu.Lock()
	for _, job := range jobs {
		job.TriggerTime = triggers.Strip(job.TriggerTime)
		s.pending.add(job)
	}
	s.mu.Unlock()
	close(s.loaded)

	fired := s.fireDue(ctx)
	close(s.ready)
	s.recovered = true

	s.logger.Infow("scheduler: recovered", "loaded", len(jobs), "fired_overdue", fired, "pending", s.Pending())
	return nil
}

// Run recovers, then fires jobs as they come due until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Recover(ctx); err != nil {
		return err
	}

	s.logger.Infow("scheduler: started", "timezone", s.config.Location.String(), "max_sleep", s.config.MaxSleep)

	for {
		s.fireDue(ctx)

		timer := time.NewTimer(s.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler: stopped")
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	next, ok := s.pending.peek()
	s.mu.Unlock()

	if !ok {
		return s.config.MaxSleep
	}
	wait := next.TriggerTime.Sub(s.Now())
	if wait < 0 {
		return 0
	}
	if wait > s.config.MaxSleep {
		return s.config.MaxSleep
	}
	return wait
}

// fireDue fires every job with trigger_time <= now in (trigger_time, id)
// order and returns how many fired.
func (s *Scheduler) fireDue(ctx context.Context) int {
	fired := 0
	for ctx.Err() == nil {
		now := s.Now()

		s.mu.Lock()
		next, ok := s.pending.peek()
		if !ok || next.TriggerTime.After(now) {
			s.mu.Unlock()
			break
		}
		job := s.pending.pop()
		n := s.pending.len()
		s.mu.Unlock()

		s.metrics.PendingJobs(n)
		s.fire(ctx, job, now)
		fired++
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, job domain.Job, now time.Time) {
	var err error
	if h, ok := s.handlers[job.Kind]; ok {
		err = h(ctx, job)
		if err != nil {
			s.logger.Errorw("scheduler: job handler failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		}
	} else {
		err = errors.Newf("no handler for kind %q", job.Kind)
		s.logger.Warnw("scheduler: unknown job kind, dropping", "job_id", job.ID, "kind", job.Kind)
	}
	s.metrics.JobFired(string(job.Kind), now.Sub(job.TriggerTime), err)

	if rmErr := s.store.RemoveJob(ctx, job.ID); rmErr != nil {
		s.logger.Errorw("scheduler: failed to remove fired job", "job_id", job.ID, "error", rmErr)
		return
	}
	s.logger.Infow("scheduler: job fired", "job_id", job.ID, "kind", job.Kind,
		"state", domain.JobStateFired, "trigger_time", job.TriggerTime.Format(triggers.NaiveLayout))
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func waitGate(ctx context.Context, gate <-chan struct{}) error {
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
