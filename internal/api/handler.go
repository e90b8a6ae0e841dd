// Package api serves the Huntflow webhook, the manage endpoints and health.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/metrics"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/reconciler"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Reconciler applies classified events and manage deletions.
type Reconciler interface {
	HandleStatus(ctx context.Context, ev reconciler.StatusEvent) error
	DeleteUpcomingInterviews(ctx context.Context, candidateID int64) (int, error)
}

// Store is the read side used by the manage endpoints.
type Store interface {
	FindCandidateByName(ctx context.Context, firstName, lastName string) (domain.Candidate, error)
	ListUpcomingInterviews(ctx context.Context, after time.Time) ([]domain.UpcomingInterview, error)
	ListCandidatesWithFWD(ctx context.Context) ([]domain.Candidate, error)
}

// Clock reports the scheduler's naive now and its queue size.
type Clock interface {
	Now() time.Time
	Pending() int
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type eventHandler func(ctx context.Context, ev WebhookEvent) error

type Handler struct {
	reconciler Reconciler
	store      Store
	clock      Clock
	db         HealthChecker
	token      string
	events     map[domain.EventType]eventHandler
	metrics    metrics.Sink
	logger     *zap.SugaredLogger
	mux        *http.ServeMux
}

func NewHandler(rec Reconciler, store Store, clock Clock, logger *zap.SugaredLogger) *Handler {
	h := &Handler{
		reconciler: rec,
		store:      store,
		clock:      clock,
		metrics:    metrics.NewNoopSink(),
		logger:     logger,
	}
	h.events = map[domain.EventType]eventHandler{
		domain.EventTypeAdd:     h.handleAdd,
		domain.EventTypeRemoved: h.handleRemoved,
		domain.EventTypeStatus:  h.handleStatus,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /hf", h.webhook)
	for _, p := range []string{"/manage/list", "/manage/list/"} {
		mux.HandleFunc("GET "+p, h.requireToken(h.listCandidates))
	}
	for _, p := range []string{"/manage/delete", "/manage/delete/"} {
		mux.HandleFunc("POST "+p, h.requireToken(h.deleteInterview))
	}
	for _, p := range []string{"/manage/fwd_list", "/manage/fwd_list/"} {
		mux.HandleFunc("GET "+p, h.requireToken(h.listFirstWorkingDays))
	}
	for _, p := range []string{"/manage/fwd", "/manage/fwd/"} {
		mux.HandleFunc("GET "+p, h.requireToken(h.firstWorkingDay))
	}
	h.mux = mux
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithManageToken guards the manage endpoints. An empty token leaves them open.
func (h *Handler) WithManageToken(token string) *Handler {
	h.token = token
	return h
}

// WithMetrics attaches a metrics sink to the handler.
func (h *Handler) WithMetrics(sink metrics.Sink) *Handler {
	h.metrics = sink
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-ID")
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)
	h.mux.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (h *Handler) log(r *http.Request) *zap.SugaredLogger {
	return h.logger.With("request_id", RequestID(r.Context()))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components["database"] = "unhealthy: " + err.Error()
		} else {
			resp.Components["database"] = "healthy"
		}
	}

	if h.clock != nil {
		pending := h.clock.Pending()
		resp.PendingJobs = &pending
		resp.Components["scheduler"] = "running"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeDetail(w http.ResponseWriter, status int, detail, code string) {
	writeJSON(w, status, DetailResponse{Detail: detail, Code: code})
}
