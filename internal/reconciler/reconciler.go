// Package reconciler turns Huntflow status events into candidate and
// interview records and their reminder jobs, and runs those jobs when the
// scheduler fires them.
package reconciler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/triggers"
)

// Store is the candidate and interview record store.
type Store interface {
	UpsertCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error)
	GetCandidate(ctx context.Context, id int64) (domain.Candidate, error)
	UpdateCandidateEmployment(ctx context.Context, id int64, day time.Time, removalJobID *int64) error
	DeleteCandidate(ctx context.Context, id int64) error

	GetInterview(ctx context.Context, candidateID int64, typ string) (domain.Interview, error)
	ListInterviewsByCandidate(ctx context.Context, candidateID int64) ([]domain.Interview, error)
	InsertInterview(ctx context.Context, iv domain.Interview) (domain.Interview, error)
	SetInterviewJobs(ctx context.Context, id int64, jobIDs []int64) error
	DeleteInterview(ctx context.Context, id int64) error
}

type Scheduler interface {
	Schedule(ctx context.Context, at time.Time, kind domain.JobKind, payload json.RawMessage) (int64, error)
	Cancel(ctx context.Context, id int64) error
	Now() time.Time
}

type Notifier interface {
	Notify(ctx context.Context, msg domain.Message) error
	NotifyNow(ctx context.Context, msg domain.Message) error
}

type Applicant struct {
	ID        int64
	FirstName string
	LastName  string
}

// CalendarEvent carries the raw interview timestamps of the webhook.
type CalendarEvent struct {
	Start string
	End   string
}

type Vacancy struct {
	ID       *int64
	Position string
}

// StatusEvent is a classified STATUS webhook whose applicant fields are present.
type StatusEvent struct {
	Type           string
	Applicant      Applicant
	Calendar       *CalendarEvent
	EmploymentDate string
	Vacancy        *Vacancy
}

type Reconciler struct {
	store     Store
	scheduler Scheduler
	notifier  Notifier
	logger    *zap.SugaredLogger
}

func New(store Store, scheduler Scheduler, notifier Notifier, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
	}
}

// HandleStatus applies a STATUS event. An event with a calendar_event
// (re)schedules an interview, one with an employment_date schedules the
// candidate removal. Anything else is incomplete.
func (r *Reconciler) HandleStatus(ctx context.Context, ev StatusEvent) error {
	switch {
	case ev.Calendar != nil:
		return r.handleInterview(ctx, ev)
	case ev.EmploymentDate != "":
		return r.handleEmployment(ctx, ev)
	default:
		return errors.Wrap(domain.ErrIncompleteRequest, "neither calendar_event nor employment_date")
	}
}

func (r *Reconciler) handleInterview(ctx context.Context, ev StatusEvent) error {
	// Parse before any write.
	start, err := triggers.ParseEventTime(ev.Calendar.Start)
	if err != nil {
		return errors.Wrapf(domain.ErrIncompleteRequest, "calendar_event.start: %v", err)
	}
	end, err := triggers.ParseEventTime(ev.Calendar.End)
	if err != nil {
		return errors.Wrapf(domain.ErrIncompleteRequest, "calendar_event.end: %v", err)
	}

	if _, err := r.upsertCandidate(ctx, ev.Applicant); err != nil {
		return err
	}

	msg := interviewMessage(ev)
	notice := domain.MessageTypeInterview

	existing, err := r.store.GetInterview(ctx, ev.Applicant.ID, ev.Type)
	switch {
	case err == nil:
		if err := r.PurgeInterview(ctx, existing); err != nil {
			return errors.Wrap(err, "replace interview")
		}
		notice = domain.MessageTypeRescheduledInterview
	case !errors.Is(err, domain.ErrNotFound):
		return errors.Wrap(err, "look up interview")
	}

	iv, err := r.store.InsertInterview(ctx, domain.Interview{
		CandidateID: ev.Applicant.ID,
		Type:        ev.Type,
		Start:       start,
		End:         end,
		Created:     r.scheduler.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "insert interview")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode reminder payload")
	}

	jobIDs := make([]int64, 0, 3)
	for _, at := range triggers.Interview(start).All() {
		id, err := r.scheduler.Schedule(ctx, at, domain.JobKindNotifyInterview, payload)
		if err != nil {
			r.saveJobIDs(ctx, iv.ID, jobIDs)
			return errors.Wrap(err, "schedule interview reminder")
		}
		jobIDs = append(jobIDs, id)
	}
	if err := r.store.SetInterviewJobs(ctx, iv.ID, jobIDs); err != nil {
		return errors.Wrap(err, "save interview jobs")
	}

	r.logger.Infow("reconciler: interview scheduled",
		"candidate_id", ev.Applicant.ID,
		"interview_id", iv.ID,
		"type", ev.Type,
		"start", start.Format(triggers.NaiveLayout),
		"job_ids", jobIDs,
		"rescheduled", notice == domain.MessageTypeRescheduledInterview,
	)

	msg.Type = notice
	return r.notifier.NotifyNow(ctx, msg)
}

// saveJobIDs keeps a partial job list so the jobs stay cancellable with the
// interview.
func (r *Reconciler) saveJobIDs(ctx context.Context, interviewID int64, jobIDs []int64) {
	if len(jobIDs) == 0 {
		return
	}
	if err := r.store.SetInterviewJobs(ctx, interviewID, jobIDs); err != nil {
		r.logger.Errorw("reconciler: failed to save partial job list",
			"interview_id", interviewID, "job_ids", jobIDs, "error", err)
	}
}

func (r *Reconciler) handleEmployment(ctx context.Context, ev StatusEvent) error {
	day, err := triggers.ParseEmploymentDate(ev.EmploymentDate)
	if err != nil {
		return errors.Wrapf(domain.ErrIncompleteRequest, "employment_date: %v", err)
	}

	candidate, err := r.upsertCandidate(ctx, ev.Applicant)
	if err != nil {
		return err
	}

	if candidate.RemovalJobID != nil {
		if err := r.scheduler.Cancel(ctx, *candidate.RemovalJobID); err != nil {
			return errors.Wrap(err, "cancel previous removal")
		}
	}

	payload, err := json.Marshal(domain.RemovalPayload{CandidateID: candidate.ID})
	if err != nil {
		return errors.Wrap(err, "encode removal payload")
	}
	at := triggers.Employment(day)
	jobID, err := r.scheduler.Schedule(ctx, at, domain.JobKindRemoveCandidate, payload)
	if err != nil {
		return errors.Wrap(err, "schedule candidate removal")
	}

	if err := r.store.UpdateCandidateEmployment(ctx, candidate.ID, day, &jobID); err != nil {
		return errors.Wrap(err, "update first working day")
	}

	r.logger.Infow("reconciler: first working day set",
		"candidate_id", candidate.ID,
		"first_working_day", triggers.FormatDate(day),
		"removal_job_id", jobID,
		"removal_at", at.Format(triggers.NaiveLayout),
	)

	return r.notifier.NotifyNow(ctx, domain.Message{
		Type:           domain.MessageTypeFirstWorkingDay,
		FirstName:      ev.Applicant.FirstName,
		LastName:       ev.Applicant.LastName,
		EmploymentDate: triggers.FormatDate(day),
	})
}

func (r *Reconciler) upsertCandidate(ctx context.Context, a Applicant) (domain.Candidate, error) {
	c, err := r.store.UpsertCandidate(ctx, domain.Candidate{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	})
	if err != nil {
		return domain.Candidate{}, errors.Wrap(err, "upsert candidate")
	}
	return c, nil
}

func interviewMessage(ev StatusEvent) domain.Message {
	msg := domain.Message{
		Type:      domain.MessageTypeInterview,
		FirstName: ev.Applicant.FirstName,
		LastName:  ev.Applicant.LastName,
		Start:     ev.Calendar.Start,
	}
	if ev.Vacancy != nil {
		msg.VacancyID = ev.Vacancy.ID
		msg.VacancyPosition = ev.Vacancy.Position
	}
	return msg
}

// PurgeInterview cancels every job of the interview, then deletes it.
func (r *Reconciler) PurgeInterview(ctx context.Context, iv domain.Interview) error {
	for _, id := range iv.JobIDs {
		if err := r.scheduler.Cancel(ctx, id); err != nil {
			return errors.Wrapf(err, "cancel job %d of interview %d", id, iv.ID)
		}
	}
	if err := r.store.DeleteInterview(ctx, iv.ID); err != nil {
		return errors.Wrapf(err, "delete interview %d", iv.ID)
	}
	r.logger.Infow("reconciler: interview removed",
		"candidate_id", iv.CandidateID, "interview_id", iv.ID, "cancelled_jobs", len(iv.JobIDs))
	return nil
}

// DeleteUpcomingInterviews purges the candidate's interviews that have not
// started yet and returns how many were removed.
func (r *Reconciler) DeleteUpcomingInterviews(ctx context.Context, candidateID int64) (int, error) {
	ivs, err := r.store.ListInterviewsByCandidate(ctx, candidateID)
	if err != nil {
		return 0, errors.Wrap(err, "list interviews")
	}

	now := r.scheduler.Now()
	removed := 0
	for _, iv := range ivs {
		if !iv.Start.After(now) {
			continue
		}
		if err := r.PurgeInterview(ctx, iv); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// FireInterviewReminder is the notify_interview job handler.
func (r *Reconciler) FireInterviewReminder(ctx context.Context, job domain.Job) error {
	var msg domain.Message
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		return errors.Wrapf(err, "decode payload of job %d", job.ID)
	}
	return r.notifier.Notify(ctx, msg)
}

// FireCandidateRemoval is the remove_candidate job handler. It cancels the
// jobs of the candidate's interviews and deletes the candidate with them.
// A candidate that no longer exists is not an error.
func (r *Reconciler) FireCandidateRemoval(ctx context.Context, job domain.Job) error {
	var p domain.RemovalPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return errors.Wrapf(err, "decode payload of job %d", job.ID)
	}

	candidate, err := r.store.GetCandidate(ctx, p.CandidateID)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Infow("reconciler: candidate already gone", "candidate_id", p.CandidateID, "job_id", job.ID)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "get candidate")
	}

	ivs, err := r.store.ListInterviewsByCandidate(ctx, candidate.ID)
	if err != nil {
		return errors.Wrap(err, "list interviews")
	}
	for _, iv := range ivs {
		for _, id := range iv.JobIDs {
			if err := r.scheduler.Cancel(ctx, id); err != nil {
				return errors.Wrapf(err, "cancel job %d", id)
			}
		}
	}
	if candidate.RemovalJobID != nil && *candidate.RemovalJobID != job.ID {
		if err := r.scheduler.Cancel(ctx, *candidate.RemovalJobID); err != nil {
			return errors.Wrapf(err, "cancel job %d", *candidate.RemovalJobID)
		}
	}

	if err := r.store.DeleteCandidate(ctx, candidate.ID); err != nil {
		return errors.Wrap(err, "delete candidate")
	}

	r.logger.Infow("reconciler: candidate removed",
		"candidate_id", candidate.ID, "interviews", len(ivs), "job_id", job.ID)
	return nil
}
