package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/notifier"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/reconciler"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/scheduler"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/store/memory"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/testutil"
)

const testToken = "manage-secret"

type recordingPublisher struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) all() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Message(nil), p.messages...)
}

// stack wires the real scheduler, reconciler and notifier over the memory
// store. The scheduler is recovered but not run, so nothing fires.
type stack struct {
	store   *memory.Store
	sched   *scheduler.Scheduler
	pub     *recordingPublisher
	handler *Handler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zap.NewNop().Sugar()

	store := memory.New()
	sched := scheduler.New(scheduler.Config{Location: time.UTC}, store, logger)
	pub := &recordingPublisher{}
	rec := reconciler.New(store, sched, notifier.New(pub, "", logger), logger)
	sched.
		Handle(domain.JobKindNotifyInterview, rec.FireInterviewReminder).
		Handle(domain.JobKindRemoveCandidate, rec.FireCandidateRemoval)
	require.NoError(t, sched.Recover(testutil.TestContext(t)))

	h := NewHandler(rec, store, sched, logger).WithManageToken(testToken)
	return &stack{store: store, sched: sched, pub: pub, handler: h}
}

func (s *stack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if strings.HasPrefix(path, "/manage") {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func interviewBody(start, end string) string {
	return `{"event":{"type":"STATUS",
		"applicant":{"id":1,"first_name":"Matt","last_name":"Groening"},
		"calendar_event":{"start":"` + start + `","end":"` + end + `"}}}`
}

func employmentBody(date string) string {
	return `{"event":{"type":"STATUS",
		"applicant":{"id":1,"first_name":"Matt","last_name":"Groening"},
		"employment_date":"` + date + `"}}`
}

func naive(layout string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", layout, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func triggerTimes(t *testing.T, store *memory.Store) []time.Time {
	t.Helper()
	jobs, err := store.ListPendingJobs(testutil.TestContext(t))
	require.NoError(t, err)
	out := make([]time.Time, len(jobs))
	for i, j := range jobs {
		out[i] = j.TriggerTime
	}
	return out
}

func TestEndToEnd_InterviewScheduled(t *testing.T) {
	s := newStack(t)
	ctx := testutil.TestContext(t)

	resp := s.do(t, http.MethodPost, "/hf", interviewBody("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Empty(t, resp.Body.String())

	c, err := s.store.GetCandidate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Matt", c.FirstName)
	assert.Equal(t, "Groening", c.LastName)

	iv, err := s.store.GetInterview(ctx, 1, "STATUS")
	require.NoError(t, err)
	assert.Equal(t, naive("1989-12-17T00:00:00"), iv.Start, "offset stripped")
	assert.Equal(t, naive("1989-12-17T01:00:00"), iv.End)
	assert.Len(t, iv.JobIDs, 3)

	assert.Equal(t, []time.Time{
		naive("1989-12-16T18:00:00"),
		naive("1989-12-16T23:00:00"),
		naive("1989-12-17T07:00:00"),
	}, triggerTimes(t, s.store))
	assert.Equal(t, 3, s.sched.Pending())

	msgs := s.pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageTypeInterview, msgs[0].Type)
	assert.Equal(t, "1989-12-17T00:00:00+03:00", msgs[0].Start)
}

func TestEndToEnd_IncompleteRequestChangesNothing(t *testing.T) {
	s := newStack(t)
	ctx := testutil.TestContext(t)

	body := `{"event":{"type":"STATUS",
		"applicant":{"id":1,"first_name":"Matt","last_name":"Groening"},
		"calendar_event":{"start":"1989-12-17T00:00:00+03:00"}}}`
	resp := s.do(t, http.MethodPost, "/hf", body)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Incomplete request", decodeError(t, resp))

	assert.Empty(t, triggerTimes(t, s.store))
	_, err := s.store.GetCandidate(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, s.pub.all())
}

func TestEndToEnd_UnparseableStartChangesNothing(t *testing.T) {
	s := newStack(t)
	ctx := testutil.TestContext(t)

	resp := s.do(t, http.MethodPost, "/hf", interviewBody("tomorrow", "1989-12-17T01:00:00+03:00"))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, triggerTimes(t, s.store))
	_, err := s.store.GetCandidate(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEndToEnd_Reschedule(t *testing.T) {
	s := newStack(t)
	ctx := testutil.TestContext(t)

	resp := s.do(t, http.MethodPost, "/hf", interviewBody("1989-12-17T00:00:00+03:00", "1989-12-17T01:00:00+03:00"))
	require.Equal(t, http.StatusOK, resp.Code)
	first, err := s.store.GetInterview(ctx, 1, "STATUS")
	require.NoError(t, err)

	resp = s.do(t, http.MethodPost, "/hf", interviewBody("1989-12-20T15:00:00+03:00", "1989-12-20T16:00:00+03:00"))
	require.Equal(t, http.StatusOK, resp.Code)

	second, err := s.store.GetInterview(ctx, 1, "STATUS")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	for _, id := range first.JobIDs {
		_, err := s.store.GetJob(ctx, id)
		assert.ErrorIs(t, err, domain.ErrJobNotFound, "job %d of the replaced interview", id)
	}

	assert.Equal(t, []time.Time{
		naive("1989-12-19T18:00:00"),
		naive("1989-12-20T07:00:00"),
		naive("1989-12-20T14:00:00"),
	}, triggerTimes(t, s.store))
	assert.Equal(t, 3, s.sched.Pending())

	msgs := s.pub.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageTypeRescheduledInterview, msgs[1].Type)
}

func TestEndToEnd_EmploymentDate(t *testing.T) {
	s := newStack(t)
	ctx := testutil.TestContext(t)

	resp := s.do(t, http.MethodPost, "/hf", employmentBody("2024-06-10"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	assert.Equal(t, []time.Time{naive("2024-06-11T00:00:00")}, triggerTimes(t, s.store))

	c, err := s.store.GetCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c.FirstWorkingDay)
	assert.Equal(t, "2024-06-10", c.FirstWorkingDay.Format("2006-01-02"))

	msgs := s.pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageTypeFirstWorkingDay, msgs[0].Type)
	assert.Equal(t, "2024-06-10", msgs[0].EmploymentDate)

	// A corrected date replaces the pending removal.
	resp = s.do(t, http.MethodPost, "/hf", employmentBody("2024-06-17"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []time.Time{naive("2024-06-18T00:00:00")}, triggerTimes(t, s.store))
}
