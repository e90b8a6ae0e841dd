package domain

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobKindNotifyInterview JobKind = "notify_interview"
	JobKindRemoveCandidate JobKind = "remove_candidate"
)

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateFired     JobState = "fired"
	JobStateCancelled JobState = "cancelled"
)

// Job is a durable reminder registered against a trigger time.
// TriggerTime is naive: wall clock of the reference zone, stored in time.UTC.
type Job struct {
	ID          int64
	TriggerTime time.Time
	Kind        JobKind
	Payload     json.RawMessage

	CreatedAt time.Time
}

// RemovalPayload is the payload of a remove_candidate job.
type RemovalPayload struct {
	CandidateID int64 `json:"candidate_id"`
}
