// Package housekeeping periodically removes interviews that ended long ago.
//
// Reminder jobs fire and disappear on their own, but interview rows stay
// until the candidate is removed. The sweeper deletes rows whose end is
// older than the retention window, cancelling any jobs they still own.
package housekeeping

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/cron"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/triggers"
)

// Store fetches interviews that ended before a naive cutoff.
type Store interface {
	ListInterviewsEndedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Interview, error)
}

// Purger cancels an interview's jobs and deletes it.
type Purger interface {
	PurgeInterview(ctx context.Context, iv domain.Interview) error
}

// Config holds sweeper configuration.
type Config struct {
	// Schedule decides when sweeps run.
	Schedule cron.Schedule

	// Retention is how long an interview is kept after its end.
	// Default: 30 days.
	Retention time.Duration

	// BatchSize is the maximum number of interviews removed per sweep.
	// Default: 100.
	BatchSize int

	// Location is the reference zone of stored naive times.
	Location *time.Location
}

type Sweeper struct {
	config  Config
	store   Store
	purger  Purger
	metrics metrics.Sink
	logger  *zap.SugaredLogger
	clock   func() time.Time
}

func New(config Config, store Store, purger Purger, logger *zap.SugaredLogger) *Sweeper {
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Sweeper{
		config:  config,
		store:   store,
		purger:  purger,
		metrics: metrics.NewNoopSink(),
		logger:  logger,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the sweeper.
func (s *Sweeper) WithMetrics(sink metrics.Sink) *Sweeper {
	s.metrics = sink
	return s
}

// Run sweeps at every scheduled time until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Infow("housekeeping: started", "retention", s.config.Retention, "batch", s.config.BatchSize)

	for {
		now := s.clock()
		next := s.config.Schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("housekeeping: stopped")
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cycle and returns how many interviews were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := triggers.Naive(s.clock().Add(-s.config.Retention), s.config.Location)

	expired, err := s.store.ListInterviewsEndedBefore(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		// Retried at the next scheduled time.
		s.logger.Errorw("housekeeping: failed to list expired interviews", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	removed, failed := 0, 0
	for _, iv := range expired {
		if ctx.Err() != nil {
			s.logger.Warnw("housekeeping: sweep interrupted", "processed", removed+failed, "total", len(expired))
			break
		}
		if err := s.purger.PurgeInterview(ctx, iv); err != nil {
			s.logger.Errorw("housekeeping: failed to purge interview",
				"interview_id", iv.ID, "candidate_id", iv.CandidateID, "error", err)
			failed++
			continue
		}
		removed++
	}

	s.metrics.InterviewsPurged(removed)
	s.logger.Infow("housekeeping: sweep complete", "removed", removed, "failed", failed)
	return removed
}

