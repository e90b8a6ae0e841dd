package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobScheduled(kind string)                           {}
func (n *NoopSink) JobCancelled()                                      {}
func (n *NoopSink) JobFired(kind string, lag time.Duration, err error) {}
func (n *NoopSink) PendingJobs(count int)                              {}
func (n *NoopSink) NotifyOutcome(mode, outcome string)                 {}
func (n *NoopSink) WebhookHandled(eventType, outcome string)           {}
func (n *NoopSink) BufferSizeUpdate(size int)                          {}
func (n *NoopSink) EmitError()                                         {}
func (n *NoopSink) InterviewsPurged(count int)                         {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                  {}
