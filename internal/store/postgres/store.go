package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/triggers"
)

// Store implements the durable job store and the candidate/interview record
// store using PostgreSQL. All timestamps are naive: written with the UTC
// location as a container and normalized with triggers.Strip when read.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// New creates a new PostgreSQL store with the given database connection.
// A positive timeout bounds every single statement.
func New(db *sql.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Reminder jobs

// InsertJob persists a job and returns its id. Ids grow with insertion order.
func (s *Store) InsertJob(ctx context.Context, at time.Time, kind domain.JobKind, payload json.RawMessage) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, queryInsertJob, triggers.Strip(at), string(kind), string(payload)).Scan(&id)
	if err != nil {
		return 0, classify(err, "insert reminder job")
	}
	return id, nil
}

// GetJob returns domain.ErrJobNotFound for an unknown id.
func (s *Store) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	job, err := scanJob(s.db.QueryRowContext(ctx, queryGetJob, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, errors.Wrapf(domain.ErrJobNotFound, "job %d", id)
	}
	if err != nil {
		return domain.Job{}, classify(err, "get reminder job")
	}
	return job, nil
}

// RemoveJob deletes a job. Removing an unknown id is not an error.
func (s *Store) RemoveJob(ctx context.Context, id int64) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryRemoveJob, id)
	return classify(err, "remove reminder job")
}

// ListPendingJobs returns every stored job ordered by (trigger_time, id).
func (s *Store) ListPendingJobs(ctx context.Context) ([]domain.Job, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListPendingJobs)
	if err != nil {
		return nil, classify(err, "list reminder jobs")
	}
	defer rows.Close()

	var result []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, classify(err, "scan reminder job")
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list reminder jobs")
	}
	return result, nil
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job     domain.Job
		kind    string
		payload []byte
	)
	if err := row.Scan(&job.ID, &job.TriggerTime, &kind, &payload, &job.CreatedAt); err != nil {
		return domain.Job{}, err
	}
	job.Kind = domain.JobKind(kind)
	job.Payload = json.RawMessage(payload)
	job.TriggerTime = triggers.Strip(job.TriggerTime)
	return job, nil
}

// Candidates

// UpsertCandidate creates the candidate if absent and returns the stored row.
// Names of an existing candidate are never overwritten.
func (s *Store) UpsertCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, queryInsertCandidate, c.ID, c.FirstName, c.LastName); err != nil {
		return domain.Candidate{}, classify(err, "insert candidate")
	}

	stored, err := scanCandidate(s.db.QueryRowContext(ctx, queryGetCandidate, c.ID))
	if err != nil {
		return domain.Candidate{}, classify(err, "get candidate")
	}
	return stored, nil
}

func (s *Store) GetCandidate(ctx context.Context, id int64) (domain.Candidate, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	c, err := scanCandidate(s.db.QueryRowContext(ctx, queryGetCandidate, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Candidate{}, errors.Wrapf(domain.ErrNotFound, "candidate %d", id)
	}
	if err != nil {
		return domain.Candidate{}, classify(err, "get candidate")
	}
	return c, nil
}

func (s *Store) FindCandidateByName(ctx context.Context, firstName, lastName string) (domain.Candidate, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	c, err := scanCandidate(s.db.QueryRowContext(ctx, queryFindCandidateByName, firstName, lastName))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Candidate{}, errors.Wrapf(domain.ErrNotFound, "candidate %s %s", firstName, lastName)
	}
	if err != nil {
		return domain.Candidate{}, classify(err, "find candidate")
	}
	return c, nil
}

// UpdateCandidateEmployment sets the first working day and the pending
// removal job of a candidate.
func (s *Store) UpdateCandidateEmployment(ctx context.Context, id int64, day time.Time, removalJobID *int64) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	jobID := sql.NullInt64{}
	if removalJobID != nil {
		jobID = sql.NullInt64{Int64: *removalJobID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, queryUpdateCandidateEmployment, id, triggers.Strip(day), jobID)
	if err != nil {
		return classify(err, "update candidate employment")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(err, "update candidate employment")
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "candidate %d", id)
	}
	return nil
}

// DeleteCandidate removes the candidate. Interviews go with it (ON DELETE CASCADE).
func (s *Store) DeleteCandidate(ctx context.Context, id int64) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryDeleteCandidate, id)
	return classify(err, "delete candidate")
}

func (s *Store) ListCandidatesWithFWD(ctx context.Context) ([]domain.Candidate, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListCandidatesWithFWD)
	if err != nil {
		return nil, classify(err, "list candidates")
	}
	defer rows.Close()

	var result []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, classify(err, "scan candidate")
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list candidates")
	}
	return result, nil
}

func scanCandidate(row rowScanner) (domain.Candidate, error) {
	var (
		c     domain.Candidate
		fwd   sql.NullTime
		jobID sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &fwd, &jobID); err != nil {
		return domain.Candidate{}, err
	}
	applyCandidateNulls(&c, fwd, jobID)
	return c, nil
}

func applyCandidateNulls(c *domain.Candidate, fwd sql.NullTime, jobID sql.NullInt64) {
	if fwd.Valid {
		day := triggers.Strip(fwd.Time)
		c.FirstWorkingDay = &day
	}
	if jobID.Valid {
		id := jobID.Int64
		c.RemovalJobID = &id
	}
}

// Interviews

func (s *Store) GetInterview(ctx context.Context, candidateID int64, typ string) (domain.Interview, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	iv, err := scanInterview(s.db.QueryRowContext(ctx, queryGetInterview, candidateID, typ))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Interview{}, errors.Wrapf(domain.ErrNotFound, "interview candidate=%d type=%s", candidateID, typ)
	}
	if err != nil {
		return domain.Interview{}, classify(err, "get interview")
	}
	return iv, nil
}

func (s *Store) ListInterviewsByCandidate(ctx context.Context, candidateID int64) ([]domain.Interview, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListInterviewsByCandidate, candidateID)
	if err != nil {
		return nil, classify(err, "list interviews")
	}
	defer rows.Close()

	return collectInterviews(rows)
}

// InsertInterview stores a new interview and returns it with its id. A
// duplicate (candidate, type) fails with domain.ErrConflict.
func (s *Store) InsertInterview(ctx context.Context, iv domain.Interview) (domain.Interview, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	jobIDs, err := encodeJobIDs(iv.JobIDs)
	if err != nil {
		return domain.Interview{}, err
	}

	err = s.db.QueryRowContext(ctx, queryInsertInterview,
		iv.CandidateID,
		iv.Type,
		triggers.Strip(iv.Start),
		triggers.Strip(iv.End),
		triggers.Strip(iv.Created),
		jobIDs,
	).Scan(&iv.ID)
	if err != nil {
		return domain.Interview{}, classify(err, "insert interview")
	}
	return iv, nil
}

// SetInterviewJobs replaces the job id list of an interview.
func (s *Store) SetInterviewJobs(ctx context.Context, id int64, jobIDs []int64) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	encoded, err := encodeJobIDs(jobIDs)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, querySetInterviewJobs, id, encoded)
	if err != nil {
		return classify(err, "set interview jobs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(err, "set interview jobs")
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "interview %d", id)
	}
	return nil
}

func (s *Store) DeleteInterview(ctx context.Context, id int64) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryDeleteInterview, id)
	return classify(err, "delete interview")
}

// ListUpcomingInterviews returns interviews starting after the given naive
// time, joined with their candidates.
func (s *Store) ListUpcomingInterviews(ctx context.Context, after time.Time) ([]domain.UpcomingInterview, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListUpcomingInterviews, triggers.Strip(after))
	if err != nil {
		return nil, classify(err, "list upcoming interviews")
	}
	defer rows.Close()

	var result []domain.UpcomingInterview
	for rows.Next() {
		var (
			u      domain.UpcomingInterview
			fwd    sql.NullTime
			jobID  sql.NullInt64
			jobIDs []byte
		)
		c, iv := &u.Candidate, &u.Interview
		err := rows.Scan(
			&c.ID, &c.FirstName, &c.LastName, &fwd, &jobID,
			&iv.ID, &iv.CandidateID, &iv.Type, &iv.Start, &iv.End, &iv.Created, &jobIDs,
		)
		if err != nil {
			return nil, classify(err, "scan upcoming interview")
		}
		applyCandidateNulls(c, fwd, jobID)
		if err := finishInterview(iv, jobIDs); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list upcoming interviews")
	}
	return result, nil
}

// ListInterviewsEndedBefore returns up to limit interviews whose end is
// before the given naive time, oldest first.
func (s *Store) ListInterviewsEndedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Interview, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListInterviewsEndedBefore, triggers.Strip(before), limit)
	if err != nil {
		return nil, classify(err, "list ended interviews")
	}
	defer rows.Close()

	return collectInterviews(rows)
}

func collectInterviews(rows *sql.Rows) ([]domain.Interview, error) {
	var result []domain.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, classify(err, "scan interview")
		}
		result = append(result, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list interviews")
	}
	return result, nil
}

func scanInterview(row rowScanner) (domain.Interview, error) {
	var (
		iv     domain.Interview
		jobIDs []byte
	)
	if err := row.Scan(&iv.ID, &iv.CandidateID, &iv.Type, &iv.Start, &iv.End, &iv.Created, &jobIDs); err != nil {
		return domain.Interview{}, err
	}
	if err := finishInterview(&iv, jobIDs); err != nil {
		return domain.Interview{}, err
	}
	return iv, nil
}

func finishInterview(iv *domain.Interview, jobIDs []byte) error {
	iv.Start = triggers.Strip(iv.Start)
	iv.End = triggers.Strip(iv.End)
	iv.Created = triggers.Strip(iv.Created)
	if len(jobIDs) == 0 {
		return nil
	}
	if err := json.Unmarshal(jobIDs, &iv.JobIDs); err != nil {
		return errors.Wrapf(err, "decode job_ids of interview %d", iv.ID)
	}
	return nil
}

func encodeJobIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", errors.Wrap(err, "encode job_ids")
	}
	return string(b), nil
}
