package reconciler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/scheduler"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/store/memory"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/testutil"
)

var _ Scheduler = (*scheduler.Scheduler)(nil)

// storeScheduler schedules straight into the job store without firing.
type storeScheduler struct {
	store *memory.Store
	now   time.Time
}

func (s *storeScheduler) Schedule(ctx context.Context, at time.Time, kind domain.JobKind, payload json.RawMessage) (int64, error) {
	return s.store.InsertJob(ctx, at, kind, payload)
}

func (s *storeScheduler) Cancel(ctx context.Context, id int64) error {
	return s.store.RemoveJob(ctx, id)
}

func (s *storeScheduler) Now() time.Time { return s.now }

type fakeNotifier struct {
	mu        sync.Mutex
	scheduled []domain.Message
	immediate []domain.Message
	err       error
}

func (n *fakeNotifier) Notify(ctx context.Context, msg domain.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, msg)
	return n.err
}

func (n *fakeNotifier) NotifyNow(ctx context.Context, msg domain.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.immediate = append(n.immediate, msg)
	return n.err
}

type fixture struct {
	store    *memory.Store
	notifier *fakeNotifier
	rec      *Reconciler
}

func newFixture() *fixture {
	store := memory.New()
	notifier := &fakeNotifier{}
	sched := &storeScheduler{store: store, now: time.Date(1989, 12, 1, 12, 0, 0, 0, time.UTC)}
	return &fixture{
		store:    store,
		notifier: notifier,
		rec:      New(store, sched, notifier, zap.NewNop().Sugar()),
	}
}

func interviewEvent(start, end string) StatusEvent {
	return StatusEvent{
		Type:      "STATUS",
		Applicant: Applicant{ID: 1, FirstName: "Matt", LastName: "Groening"},
		Calendar:  &CalendarEvent{Start: start, End: end},
	}
}

func (f *fixture) triggerTimes(t *testing.T) []time.Time {
	t.Helper()
	jobs, err := f.store.ListPendingJobs(context.Background())
	require.NoError(t, err)
	var out []time.Time
	for _, j := range jobs {
		out = append(out, j.TriggerTime)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Before(out[b]) })
	return out
}

func TestHandleStatus_Interview(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)

	err := f.rec.HandleStatus(ctx, interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00"))
	require.NoError(t, err)

	c, err := f.store.GetCandidate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Matt", c.FirstName)

	iv, err := f.store.GetInterview(ctx, 1, "STATUS")
	require.NoError(t, err)
	assert.Equal(t, time.Date(1989, 12, 17, 0, 0, 0, 0, time.UTC), iv.Start)
	assert.Equal(t, time.Date(1989, 12, 17, 1, 0, 0, 0, time.UTC), iv.End)
	assert.Len(t, iv.JobIDs, 3)

	assert.Equal(t, []time.Time{
		time.Date(1989, 12, 16, 18, 0, 0, 0, time.UTC),
		time.Date(1989, 12, 16, 23, 0, 0, 0, time.UTC),
		time.Date(1989, 12, 17, 7, 0, 0, 0, time.UTC),
	}, f.triggerTimes(t))

	jobs, err := f.store.ListPendingJobs(ctx)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.Equal(t, domain.JobKindNotifyInterview, j.Kind)
		assert.JSONEq(t, `{"type":"interview","first_name":"Matt","last_name":"Groening","start":"1989-12-17T00:00:00+03:00"}`, string(j.Payload))
	}

	require.Len(t, f.notifier.immediate, 1)
	assert.Equal(t, domain.MessageTypeInterview, f.notifier.immediate[0].Type)
}

func TestHandleStatus_RescheduleReplacesJobSet(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)

	require.NoError(t, f.rec.HandleStatus(ctx, interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00")))
	first, err := f.store.GetInterview(ctx, 1, "STATUS")
	require.NoError(t, err)

	require.NoError(t, f.rec.HandleStatus(ctx, interviewEvent("1989-12-20T15:00:00+03:00", "1989-12-20T16:00:00+03:00")))

	for _, id := range first.JobIDs {
		_, err := f.store.GetJob(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrJobNotFound), "old job %d must be cancelled", id)
	}

	ivs, err := f.store.ListInterviewsByCandidate(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ivs, 1)
	assert.Len(t, ivs[0].JobIDs, 3)
	assert.Len(t, f.triggerTimes(t), 3)

	require.Len(t, f.notifier.immediate, 2)
	assert.Equal(t, domain.MessageTypeRescheduledInterview, f.notifier.immediate[1].Type)

	job, err := f.store.GetJob(ctx, ivs[0].JobIDs[0])
	require.NoError(t, err)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(job.Payload, &msg))
	assert.Equal(t, domain.MessageTypeInterview, msg.Type, "scheduled copies keep the interview type")
}

func TestHandleStatus_VacancyCarried(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)
	vacancyID := int64(42)

	ev := interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00")
	ev.Vacancy = &Vacancy{ID: &vacancyID, Position: "Cartoonist"}
	require.NoError(t, f.rec.HandleStatus(ctx, ev))

	require.Len(t, f.notifier.immediate, 1)
	got := f.notifier.immediate[0]
	require.NotNil(t, got.VacancyID)
	assert.Equal(t, int64(42), *got.VacancyID)
	assert.Equal(t, "Cartoonist", got.VacancyPosition)
}

func TestHandleStatus_IncompleteLeavesStoresUnchanged(t *testing.T) {
	tests := []struct {
		name string
		ev   StatusEvent
	}{
		{"no calendar and no employment date", StatusEvent{Type: "STATUS", Applicant: Applicant{ID: 1, FirstName: "Matt", LastName: "Groening"}}},
		{"unparseable start", interviewEvent("yesterday", "1989-12-17T01:00:00+03:00")},
		{"empty end", interviewEvent("1989-12-17T00:00:00+03:00", "")},
		{"bad employment date", StatusEvent{Type: "STATUS", Applicant: Applicant{ID: 1}, EmploymentDate: "10.06.2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := testutil.TestContext(t)

			err := f.rec.HandleStatus(ctx, tt.ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrIncompleteRequest))

			_, err = f.store.GetCandidate(ctx, 1)
			assert.True(t, errors.Is(err, domain.ErrNotFound))
			assert.Empty(t, f.triggerTimes(t))
			assert.Empty(t, f.notifier.immediate)
		})
	}
}

func TestHandleStatus_KeepsExistingNames(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)
	require.NoError(t, f.rec.HandleStatus(ctx, interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00")))

	ev := interviewEvent("1989-12-18T00:00:00+03:00", "1989-12-18T01:00:00+03:00")
	ev.Applicant.FirstName = "Bart"
	require.NoError(t, f.rec.HandleStatus(ctx, ev))

	c, err := f.store.GetCandidate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Matt", c.FirstName)
}

func TestHandleStatus_StoreUnavailable(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)
	f.store.SetUnavailable(true)

	err := f.rec.HandleStatus(ctx, interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Empty(t, f.notifier.immediate)
}

func TestHandleStatus_NotifyFailureSurfaces(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)
	f.notifier.err = errors.Mark(errors.New("redis down"), domain.ErrNotifyFailure)

	err := f.rec.HandleStatus(ctx, interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotifyFailure))
	assert.Len(t, f.triggerTimes(t), 3, "reminders stay scheduled")
}

func TestHandleStatus_Employment(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)

	ev := StatusEvent{
		Type:           "STATUS",
		Applicant:      Applicant{ID: 1, FirstName: "Matt", LastName: "Groening"},
		EmploymentDate: "2024-06-10",
	}
	require.NoError(t, f.rec.HandleStatus(ctx, ev))

	c, err := f.store.GetCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c.FirstWorkingDay)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), *c.FirstWorkingDay)
	require.NotNil(t, c.RemovalJobID)

	job, err := f.store.GetJob(ctx, *c.RemovalJobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobKindRemoveCandidate, job.Kind)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), job.TriggerTime)
	assert.JSONEq(t, `{"candidate_id":1}`, string(job.Payload))

	require.Len(t, f.notifier.immediate, 1)
	assert.Equal(t, domain.Message{
		Type:           domain.MessageTypeFirstWorkingDay,
		FirstName:      "Matt",
		LastName:       "Groening",
		EmploymentDate: "2024-06-10",
	}, f.notifier.immediate[0])

	// A corrected date replaces the pending removal.
	first := *c.RemovalJobID
	ev.EmploymentDate = "2024-06-17"
	require.NoError(t, f.rec.HandleStatus(ctx, ev))

	_, err = f.store.GetJob(ctx, first)
	assert.True(t, errors.Is(err, domain.ErrJobNotFound))
	assert.Equal(t, []time.Time{time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC)}, f.triggerTimes(t))
}

func TestFireCandidateRemoval(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)
	require.NoError(t, f.rec.HandleStatus(ctx, interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00")))
	require.NoError(t, f.rec.HandleStatus(ctx, StatusEvent{
		Type:           "STATUS",
		Applicant:      Applicant{ID: 1, FirstName: "Matt", LastName: "Groening"},
		EmploymentDate: "1989-12-18",
	}))

	c, err := f.store.GetCandidate(ctx, 1)
	require.NoError(t, err)
	removal, err := f.store.GetJob(ctx, *c.RemovalJobID)
	require.NoError(t, err)

	require.NoError(t, f.rec.FireCandidateRemoval(ctx, removal))

	_, err = f.store.GetCandidate(ctx, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	ivs, err := f.store.ListInterviewsByCandidate(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ivs)
	assert.Equal(t, []time.Time{removal.TriggerTime}, f.triggerTimes(t),
		"interview reminders are cancelled, the firing job is left to the scheduler")

	assert.NoError(t, f.rec.FireCandidateRemoval(ctx, removal), "missing candidate is a no-op")
}

func TestFireInterviewReminder(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)

	job := domain.Job{
		ID:      7,
		Kind:    domain.JobKindNotifyInterview,
		Payload: json.RawMessage(`{"type":"interview","first_name":"Matt","last_name":"Groening","start":"1989-12-17T00:00:00+03:00"}`),
	}
	require.NoError(t, f.rec.FireInterviewReminder(ctx, job))

	require.Len(t, f.notifier.scheduled, 1)
	assert.Equal(t, "1989-12-17T00:00:00+03:00", f.notifier.scheduled[0].Start)

	job.Payload = json.RawMessage(`not json`)
	assert.Error(t, f.rec.FireInterviewReminder(ctx, job))
}

func TestDeleteUpcomingInterviews(t *testing.T) {
	f := newFixture()
	ctx := testutil.TestContext(t)

	past := interviewEvent("1989-11-01T10:00:00+03:00", "1989-11-01T11:00:00+03:00")
	past.Type = "PAST"
	require.NoError(t, f.rec.HandleStatus(ctx, past))
	require.NoError(t, f.rec.HandleStatus(ctx, interviewEvent("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00")))

	removed, err := f.rec.DeleteUpcomingInterviews(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ivs, err := f.store.ListInterviewsByCandidate(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ivs, 1)
	assert.Equal(t, "PAST", ivs[0].Type)
	assert.Len(t, f.triggerTimes(t), 3, "only the past interview's jobs remain")

	removed, err = f.rec.DeleteUpcomingInterviews(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
