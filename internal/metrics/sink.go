package metrics

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Scheduler metrics
	JobScheduled(kind string)
	JobCancelled()
	JobFired(kind string, lag time.Duration, err error)
	PendingJobs(n int)

	// Notifier metrics
	NotifyOutcome(mode, outcome string)

	// Webhook metrics
	WebhookHandled(eventType, outcome string)

	// Channel bus metrics
	BufferSizeUpdate(size int)
	EmitError()

	// Housekeeping metrics
	InterviewsPurged(n int)

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
}

// Notify modes.
const (
	ModeScheduled = "scheduled"
	ModeImmediate = "immediate"
)

// Outcome constants shared by notifier and webhook metrics.
const (
	OutcomeSuccess          = "success"
	OutcomeRejected         = "rejected"
	OutcomeStoreUnavailable = "store_unavailable"
	OutcomeNotifyFailure    = "notify_failure"
	OutcomeCircuitOpen      = "circuit_open"
	OutcomeOtherError       = "other_error"
)

// ClassifyError maps an error to a bounded outcome label.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrMalformedRequest),
		errors.Is(err, domain.ErrUndefinedType),
		errors.Is(err, domain.ErrUnknownType),
		errors.Is(err, domain.ErrIncompleteRequest):
		return OutcomeRejected
	case errors.Is(err, domain.ErrStoreUnavailable):
		return OutcomeStoreUnavailable
	case errors.Is(err, domain.ErrNotifyFailure):
		return OutcomeNotifyFailure
	default:
		return OutcomeOtherError
	}
}
