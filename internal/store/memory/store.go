// Package memory is an in-process implementation of the job and record
// stores used as a test double by the scheduler, reconciler and API tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
)

var errUnavailable = errors.Mark(errors.New("memory store: unavailable"), domain.ErrStoreUnavailable)

type interviewKey struct {
	candidateID int64
	typ         string
}

// Store keeps jobs, candidates and interviews in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	nextJobID       int64
	nextInterviewID int64

	jobs       map[int64]domain.Job
	candidates map[int64]domain.Candidate
	interviews map[int64]domain.Interview
	byKey      map[interviewKey]int64

	unavailable bool
	clock       func() time.Time
}

func New() *Store {
	return &Store{
		jobs:       make(map[int64]domain.Job),
		candidates: make(map[int64]domain.Candidate),
		interviews: make(map[int64]domain.Interview),
		byKey:      make(map[interviewKey]int64),
		clock:      time.Now,
	}
}

// SetUnavailable makes every subsequent call fail with domain.ErrStoreUnavailable.
func (s *Store) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Mark(err, domain.ErrStoreUnavailable)
	}
	if s.unavailable {
		return errUnavailable
	}
	return nil
}

// Jobs

func (s *Store) InsertJob(ctx context.Context, at time.Time, kind domain.JobKind, payload json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	s.nextJobID++
	job := domain.Job{
		ID:          s.nextJobID,
		TriggerTime: at,
		Kind:        kind,
		Payload:     append(json.RawMessage(nil), payload...),
		CreatedAt:   s.clock(),
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return domain.Job{}, err
	}

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, errors.Wrapf(domain.ErrJobNotFound, "job %d", id)
	}
	return job, nil
}

// RemoveJob deletes a job. Removing an unknown id is not an error.
func (s *Store) RemoveJob(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	delete(s.jobs, id)
	return nil
}

// ListPendingJobs returns all jobs ordered by (trigger_time, id).
func (s *Store) ListPendingJobs(ctx context.Context) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].TriggerTime.Equal(jobs[b].TriggerTime) {
			return jobs[a].TriggerTime.Before(jobs[b].TriggerTime)
		}
		return jobs[a].ID < jobs[b].ID
	})
	return jobs, nil
}

// Candidates

// UpsertCandidate creates the candidate if absent. Existing names are kept.
func (s *Store) UpsertCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return domain.Candidate{}, err
	}

	if existing, ok := s.candidates[c.ID]; ok {
		return existing, nil
	}
	stored := domain.Candidate{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName}
	s.candidates[c.ID] = stored
	return stored, nil
}

func (s *Store) GetCandidate(ctx context.Context, id int64) (domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return domain.Candidate{}, err
	}

	c, ok := s.candidates[id]
	if !ok {
		return domain.Candidate{}, errors.Wrapf(domain.ErrNotFound, "candidate %d", id)
	}
	return c, nil
}

// FindCandidateByName returns the lowest-id candidate with the given names.
func (s *Store) FindCandidateByName(ctx context.Context, firstName, lastName string) (domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return domain.Candidate{}, err
	}

	var (
		found domain.Candidate
		ok    bool
	)
	for _, c := range s.candidates {
		if c.FirstName != firstName || c.LastName != lastName {
			continue
		}
		if !ok || c.ID < found.ID {
			found, ok = c, true
		}
	}
	if !ok {
		return domain.Candidate{}, errors.Wrapf(domain.ErrNotFound, "candidate %s %s", firstName, lastName)
	}
	return found, nil
}

func (s *Store) UpdateCandidateEmployment(ctx context.Context, id int64, day time.Time, removalJobID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	c, ok := s.candidates[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "candidate %d", id)
	}
	d := day
	c.FirstWorkingDay = &d
	if removalJobID != nil {
		jobID := *removalJobID
		c.RemovalJobID = &jobID
	} else {
		c.RemovalJobID = nil
	}
	s.candidates[id] = c
	return nil
}

// DeleteCandidate removes the candidate and its interviews.
func (s *Store) DeleteCandidate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	for ivID, iv := range s.interviews {
		if iv.CandidateID == id {
			s.deleteInterviewLocked(ivID)
		}
	}
	delete(s.candidates, id)
	return nil
}

func (s *Store) ListCandidatesWithFWD(ctx context.Context) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []domain.Candidate
	for _, c := range s.candidates {
		if c.FirstWorkingDay != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// Interviews

func (s *Store) GetInterview(ctx context.Context, candidateID int64, typ string) (domain.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return domain.Interview{}, err
	}

	id, ok := s.byKey[interviewKey{candidateID, typ}]
	if !ok {
		return domain.Interview{}, errors.Wrapf(domain.ErrNotFound, "interview candidate=%d type=%s", candidateID, typ)
	}
	return cloneInterview(s.interviews[id]), nil
}

func (s *Store) ListInterviewsByCandidate(ctx context.Context, candidateID int64) ([]domain.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []domain.Interview
	for _, iv := range s.interviews {
		if iv.CandidateID == candidateID {
			out = append(out, cloneInterview(iv))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// InsertInterview stores a new interview. A second interview for the same
// (candidate, type) fails with domain.ErrConflict.
func (s *Store) InsertInterview(ctx context.Context, iv domain.Interview) (domain.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return domain.Interview{}, err
	}

	if _, ok := s.candidates[iv.CandidateID]; !ok {
		return domain.Interview{}, errors.Wrapf(domain.ErrNotFound, "candidate %d", iv.CandidateID)
	}
	key := interviewKey{iv.CandidateID, iv.Type}
	if _, ok := s.byKey[key]; ok {
		return domain.Interview{}, errors.Wrapf(domain.ErrConflict, "interview candidate=%d type=%s", iv.CandidateID, iv.Type)
	}

	s.nextInterviewID++
	iv.ID = s.nextInterviewID
	iv = cloneInterview(iv)
	s.interviews[iv.ID] = iv
	s.byKey[key] = iv.ID
	return cloneInterview(iv), nil
}

func (s *Store) SetInterviewJobs(ctx context.Context, id int64, jobIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	iv, ok := s.interviews[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "interview %d", id)
	}
	iv.JobIDs = append([]int64(nil), jobIDs...)
	s.interviews[id] = iv
	return nil
}

func (s *Store) DeleteInterview(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	s.deleteInterviewLocked(id)
	return nil
}

func (s *Store) deleteInterviewLocked(id int64) {
	iv, ok := s.interviews[id]
	if !ok {
		return
	}
	delete(s.byKey, interviewKey{iv.CandidateID, iv.Type})
	delete(s.interviews, id)
}

// ListUpcomingInterviews returns interviews starting after the given naive
// time, ordered by start.
func (s *Store) ListUpcomingInterviews(ctx context.Context, after time.Time) ([]domain.UpcomingInterview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []domain.UpcomingInterview
	for _, iv := range s.interviews {
		if !iv.Start.After(after) {
			continue
		}
		out = append(out, domain.UpcomingInterview{
			Candidate: s.candidates[iv.CandidateID],
			Interview: cloneInterview(iv),
		})
	}
	sort.Slice(out, func(a, b int) bool {
		ia, ib := out[a].Interview, out[b].Interview
		if !ia.Start.Equal(ib.Start) {
			return ia.Start.Before(ib.Start)
		}
		return ia.ID < ib.ID
	})
	return out, nil
}

// ListInterviewsEndedBefore returns up to limit interviews whose end is
// before the given naive time, oldest first.
func (s *Store) ListInterviewsEndedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []domain.Interview
	for _, iv := range s.interviews {
		if iv.End.Before(before) {
			out = append(out, cloneInterview(iv))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].End.Equal(out[b].End) {
			return out[a].End.Before(out[b].End)
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneInterview(iv domain.Interview) domain.Interview {
	iv.JobIDs = append([]int64(nil), iv.JobIDs...)
	return iv
}
