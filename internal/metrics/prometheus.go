package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	logger *zap.SugaredLogger

	// Scheduler metrics
	jobsScheduledTotal *prometheus.CounterVec
	jobsCancelledTotal prometheus.Counter
	jobsFiredTotal     *prometheus.CounterVec
	fireErrorsTotal    *prometheus.CounterVec
	fireLag            prometheus.Histogram
	pendingJobs        prometheus.Gauge

	// Notifier metrics
	notificationsTotal *prometheus.CounterVec

	// Webhook metrics
	webhooksTotal *prometheus.CounterVec

	// Channel bus metrics
	bufferSize      prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Housekeeping metrics
	interviewsPurgedTotal prometheus.Counter

	// Leader election metrics
	isLeader prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// Metrics that fail to register keep working but are not exported.
func NewPrometheusSink(reg prometheus.Registerer, logger *zap.SugaredLogger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}
	s.initSchedulerMetrics(reg)
	s.initNotifierMetrics(reg)
	s.initBusMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.jobsScheduledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huntflow_scheduler_jobs_scheduled_total",
		Help: "Total number of reminder jobs registered.",
	}, []string{"kind"})
	s.jobsCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huntflow_scheduler_jobs_cancelled_total",
		Help: "Total number of pending reminder jobs cancelled before firing.",
	})
	s.jobsFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huntflow_scheduler_jobs_fired_total",
		Help: "Total number of reminder jobs fired.",
	}, []string{"kind"})
	s.fireErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huntflow_scheduler_fire_errors_total",
		Help: "Total number of fired jobs whose handler failed (not retried).",
	}, []string{"kind"})
	s.fireLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "huntflow_scheduler_fire_lag_seconds",
		Help:    "Delay between a job's trigger time and its firing in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 3600, 86400},
	})
	s.pendingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "huntflow_scheduler_pending_jobs",
		Help: "Number of jobs waiting for their trigger time.",
	})

	s.register(reg, s.jobsScheduledTotal, "huntflow_scheduler_jobs_scheduled_total")
	s.register(reg, s.jobsCancelledTotal, "huntflow_scheduler_jobs_cancelled_total")
	s.register(reg, s.jobsFiredTotal, "huntflow_scheduler_jobs_fired_total")
	s.register(reg, s.fireErrorsTotal, "huntflow_scheduler_fire_errors_total")
	s.register(reg, s.fireLag, "huntflow_scheduler_fire_lag_seconds")
	s.register(reg, s.pendingJobs, "huntflow_scheduler_pending_jobs")
}

func (s *PrometheusSink) initNotifierMetrics(reg prometheus.Registerer) {
	s.notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huntflow_notifier_messages_total",
		Help: "Total number of publish attempts by mode and outcome.",
	}, []string{"mode", "outcome"})
	s.webhooksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huntflow_webhooks_total",
		Help: "Total number of Huntflow webhooks handled by event type and outcome.",
	}, []string{"event_type", "outcome"})
	s.interviewsPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huntflow_housekeeping_interviews_purged_total",
		Help: "Total number of expired interviews removed by housekeeping.",
	})

	s.register(reg, s.notificationsTotal, "huntflow_notifier_messages_total")
	s.register(reg, s.webhooksTotal, "huntflow_webhooks_total")
	s.register(reg, s.interviewsPurgedTotal, "huntflow_housekeeping_interviews_purged_total")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "huntflow_bus_buffer_size",
		Help: "Current number of messages in the in-process bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huntflow_bus_emit_errors_total",
		Help: "Total number of publish errors on the in-process bus (buffer full).",
	})

	s.register(reg, s.bufferSize, "huntflow_bus_buffer_size")
	s.register(reg, s.emitErrorsTotal, "huntflow_bus_emit_errors_total")

	s.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "huntflow_leader_is_leader",
		Help: "1 while this instance holds the scheduler advisory lock.",
	})
	s.register(reg, s.isLeader, "huntflow_leader_is_leader")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil && s.logger != nil {
		s.logger.Warnw("metrics: failed to register collector", "name", name, "error", err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) JobScheduled(kind string) {
	s.jobsScheduledTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) JobCancelled() {
	s.jobsCancelledTotal.Inc()
}

func (s *PrometheusSink) JobFired(kind string, lag time.Duration, err error) {
	s.jobsFiredTotal.WithLabelValues(kind).Inc()
	if lag < 0 {
		lag = 0
	}
	s.fireLag.Observe(lag.Seconds())
	if err != nil {
		s.fireErrorsTotal.WithLabelValues(kind).Inc()
	}
}

func (s *PrometheusSink) PendingJobs(n int) {
	s.pendingJobs.Set(float64(n))
}

// Notifier and webhook metrics implementation

func (s *PrometheusSink) NotifyOutcome(mode, outcome string) {
	s.notificationsTotal.WithLabelValues(mode, outcome).Inc()
}

func (s *PrometheusSink) WebhookHandled(eventType, outcome string) {
	s.webhooksTotal.WithLabelValues(eventType, outcome).Inc()
}

// Channel bus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

func (s *PrometheusSink) InterviewsPurged(n int) {
	s.interviewsPurgedTotal.Add(float64(n))
}

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.isLeader.Set(1)
		return
	}
	s.isLeader.Set(0)
}
