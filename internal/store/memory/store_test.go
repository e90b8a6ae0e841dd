package memory

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/testutil"
)

func at(h int) time.Time {
	return time.Date(1989, 12, 16, h, 0, 0, 0, time.UTC)
}

func TestJobs_InsertListOrder(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()

	id1, err := s.InsertJob(ctx, at(23), domain.JobKindNotifyInterview, json.RawMessage(`{}`))
	require.NoError(t, err)
	id2, err := s.InsertJob(ctx, at(7), domain.JobKindNotifyInterview, json.RawMessage(`{}`))
	require.NoError(t, err)
	id3, err := s.InsertJob(ctx, at(7), domain.JobKindRemoveCandidate, json.RawMessage(`{"candidate_id":1}`))
	require.NoError(t, err)

	assert.Less(t, id1, id2)
	assert.Less(t, id2, id3)

	jobs, err := s.ListPendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []int64{id2, id3, id1}, []int64{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}

func TestJobs_GetRemove(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()

	id, err := s.InsertJob(ctx, at(7), domain.JobKindNotifyInterview, json.RawMessage(`{"type":"interview"}`))
	require.NoError(t, err)

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobKindNotifyInterview, job.Kind)
	assert.JSONEq(t, `{"type":"interview"}`, string(job.Payload))

	require.NoError(t, s.RemoveJob(ctx, id))
	require.NoError(t, s.RemoveJob(ctx, id), "remove is idempotent")

	_, err = s.GetJob(ctx, id)
	assert.True(t, errors.Is(err, domain.ErrJobNotFound))
}

func TestUnavailable(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()
	s.SetUnavailable(true)

	_, err := s.InsertJob(ctx, at(7), domain.JobKindNotifyInterview, nil)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	_, err = s.UpsertCandidate(ctx, domain.Candidate{ID: 1})
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	s.SetUnavailable(false)
	_, err = s.ListPendingJobs(ctx)
	assert.NoError(t, err)
}

func TestUpsertCandidate_KeepsNames(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()

	c, err := s.UpsertCandidate(ctx, domain.Candidate{ID: 1, FirstName: "Matt", LastName: "Groening"})
	require.NoError(t, err)
	assert.Equal(t, "Matt", c.FirstName)

	c, err = s.UpsertCandidate(ctx, domain.Candidate{ID: 1, FirstName: "Bart", LastName: "Simpson"})
	require.NoError(t, err)
	assert.Equal(t, "Matt", c.FirstName)
	assert.Equal(t, "Groening", c.LastName)
}

func TestInterview_UniquePerCandidateType(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()
	_, err := s.UpsertCandidate(ctx, domain.Candidate{ID: 1, FirstName: "Matt", LastName: "Groening"})
	require.NoError(t, err)

	iv, err := s.InsertInterview(ctx, domain.Interview{CandidateID: 1, Type: "STATUS", Start: at(23), End: at(23).Add(time.Hour)})
	require.NoError(t, err)
	assert.NotZero(t, iv.ID)

	_, err = s.InsertInterview(ctx, domain.Interview{CandidateID: 1, Type: "STATUS"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	require.NoError(t, s.SetInterviewJobs(ctx, iv.ID, []int64{4, 5, 6}))
	got, err := s.GetInterview(ctx, 1, "STATUS")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 6}, got.JobIDs)

	require.NoError(t, s.DeleteInterview(ctx, iv.ID))
	_, err = s.GetInterview(ctx, 1, "STATUS")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = s.InsertInterview(ctx, domain.Interview{CandidateID: 1, Type: "STATUS"})
	assert.NoError(t, err, "insert after delete is allowed")
}

func TestDeleteCandidate_CascadesInterviews(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()
	_, err := s.UpsertCandidate(ctx, domain.Candidate{ID: 1, FirstName: "Matt", LastName: "Groening"})
	require.NoError(t, err)
	_, err = s.InsertInterview(ctx, domain.Interview{CandidateID: 1, Type: "STATUS"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCandidate(ctx, 1))

	_, err = s.GetCandidate(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	ivs, err := s.ListInterviewsByCandidate(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ivs)
}

func TestEmploymentAndListings(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()
	for _, c := range []domain.Candidate{
		{ID: 2, FirstName: "Homer", LastName: "Simpson"},
		{ID: 1, FirstName: "Matt", LastName: "Groening"},
	} {
		_, err := s.UpsertCandidate(ctx, c)
		require.NoError(t, err)
	}

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	jobID := int64(9)
	require.NoError(t, s.UpdateCandidateEmployment(ctx, 2, day, &jobID))

	fwd, err := s.ListCandidatesWithFWD(ctx)
	require.NoError(t, err)
	require.Len(t, fwd, 1)
	assert.Equal(t, int64(2), fwd[0].ID)
	require.NotNil(t, fwd[0].RemovalJobID)
	assert.Equal(t, int64(9), *fwd[0].RemovalJobID)

	c, err := s.FindCandidateByName(ctx, "Homer", "Simpson")
	require.NoError(t, err)
	assert.True(t, c.FirstWorkingDay.Equal(day))

	_, err = s.FindCandidateByName(ctx, "Marge", "Simpson")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.UpdateCandidateEmployment(ctx, 42, day, nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestInterviewTimeQueries(t *testing.T) {
	ctx := testutil.TestContext(t)
	s := New()
	_, err := s.UpsertCandidate(ctx, domain.Candidate{ID: 1, FirstName: "Matt", LastName: "Groening"})
	require.NoError(t, err)

	past, err := s.InsertInterview(ctx, domain.Interview{CandidateID: 1, Type: "A", Start: at(1), End: at(2)})
	require.NoError(t, err)
	future, err := s.InsertInterview(ctx, domain.Interview{CandidateID: 1, Type: "B", Start: at(20), End: at(21)})
	require.NoError(t, err)

	upcoming, err := s.ListUpcomingInterviews(ctx, at(10))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, future.ID, upcoming[0].Interview.ID)
	assert.Equal(t, "Matt", upcoming[0].Candidate.FirstName)

	ended, err := s.ListInterviewsEndedBefore(ctx, at(10), 10)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, past.ID, ended[0].ID)

	ended, err = s.ListInterviewsEndedBefore(ctx, at(23), 1)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, past.ID, ended[0].ID)
}
