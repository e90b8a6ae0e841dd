package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/reconciler"
)

// Rejection texts returned to the webhook caller.
const (
	msgMalformed  = "Could not decode request body. There must be valid JSON"
	msgUndefined  = "Undefined type"
	msgUnknown    = "Unknown type"
	msgIncomplete = "Incomplete request"
)

// decodeWebhook parses and classifies a webhook body. Nothing is written
// before it succeeds.
func decodeWebhook(body io.Reader) (domain.EventType, WebhookEvent, error) {
	var req WebhookRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", WebhookEvent{}, errors.Mark(errors.Wrap(err, "decode webhook"), domain.ErrMalformedRequest)
	}
	if req.Event == nil || req.Event.Type == nil {
		return "", WebhookEvent{}, errors.Wrap(domain.ErrUndefinedType, "event.type is missing")
	}
	typ, ok := domain.ParseEventType(*req.Event.Type)
	if !ok {
		return "", WebhookEvent{}, errors.Wrapf(domain.ErrUnknownType, "event.type %q", *req.Event.Type)
	}
	return typ, *req.Event, nil
}

// statusEvent checks the fields a STATUS event needs. calendar_event wins
// over employment_date when both are present.
func statusEvent(ev WebhookEvent) (reconciler.StatusEvent, error) {
	a := ev.Applicant
	if a == nil || a.ID == nil || a.FirstName == nil || a.LastName == nil {
		return reconciler.StatusEvent{}, errors.Wrap(domain.ErrIncompleteRequest, "applicant id, first_name and last_name are required")
	}

	out := reconciler.StatusEvent{
		Type: *ev.Type,
		Applicant: reconciler.Applicant{
			ID:        *a.ID,
			FirstName: *a.FirstName,
			LastName:  *a.LastName,
		},
	}
	if ev.Vacancy != nil {
		out.Vacancy = &reconciler.Vacancy{ID: ev.Vacancy.ID, Position: ev.Vacancy.Position}
	}

	switch {
	case ev.CalendarEvent != nil:
		c := ev.CalendarEvent
		if c.Start == nil || c.End == nil {
			return reconciler.StatusEvent{}, errors.Wrap(domain.ErrIncompleteRequest, "calendar_event start and end are required")
		}
		out.Calendar = &reconciler.CalendarEvent{Start: *c.Start, End: *c.End}
	case ev.EmploymentDate != nil && *ev.EmploymentDate != "":
		out.EmploymentDate = *ev.EmploymentDate
	default:
		return reconciler.StatusEvent{}, errors.Wrap(domain.ErrIncompleteRequest, "neither calendar_event nor employment_date")
	}
	return out, nil
}

// rejection maps a webhook error to its HTTP status and message.
func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMalformedRequest):
		return http.StatusBadRequest, msgMalformed
	case errors.Is(err, domain.ErrUndefinedType):
		return http.StatusBadRequest, msgUndefined
	case errors.Is(err, domain.ErrUnknownType):
		return http.StatusBadRequest, msgUnknown
	case errors.Is(err, domain.ErrIncompleteRequest):
		return http.StatusBadRequest, msgIncomplete
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusInternalServerError, "Store unavailable"
	case errors.Is(err, domain.ErrNotifyFailure):
		return http.StatusInternalServerError, "Notification failed"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
