// Package triggers computes reminder trigger times from interview and
// employment timestamps.
//
// All times produced here are naive: the wall clock of the event as it was
// written, held in time.UTC. The UTC location is only a container; no zone
// conversion happens after the offset is dropped. Every component that
// compares trigger times (scheduler, stores, tests) works in this form.
package triggers

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// eventTimeLayout is %Y-%m-%dT%H:%M:%S%z with the offset written without a colon.
	eventTimeLayout = "2006-01-02T15:04:05-0700"
	dateLayout      = "2006-01-02"

	// NaiveLayout formats naive timestamps for storage keys, logs and responses.
	NaiveLayout = "2006-01-02T15:04:05"
)

const (
	morningHour = 7
	eveningHour = 18
)

// InterviewReminders are the three reminders of an interview.
type InterviewReminders struct {
	Advance time.Time // an hour before the start
	Morning time.Time // 07:00 of the interview day
	Evening time.Time // 18:00 of the day before
}

// All returns the reminders in a fixed order: advance, morning, evening.
func (r InterviewReminders) All() []time.Time {
	return []time.Time{r.Advance, r.Morning, r.Evening}
}

// ParseEventTime parses an ISO-8601 timestamp with a numeric offset
// ("1989-12-17T00:00:00+03:00") and returns its naive wall clock.
func ParseEventTime(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	t, err := time.Parse(eventTimeLayout, stripOffsetColon(raw))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse event time %q", s)
	}
	return Strip(t), nil
}

// stripOffsetColon rewrites a trailing "+HH:MM" or "Z" offset as "+HHMM".
func stripOffsetColon(s string) string {
	if strings.HasSuffix(s, "Z") {
		return strings.TrimSuffix(s, "Z") + "+0000"
	}
	n := len(s)
	if n < 6 {
		return s
	}
	if sign := s[n-6]; (sign == '+' || sign == '-') && s[n-3] == ':' {
		return s[:n-3] + s[n-2:]
	}
	return s
}

// ParseEmploymentDate parses a first working day. A bare date is expected;
// a full event timestamp is accepted and reduced to its date.
func ParseEmploymentDate(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if d, err := time.Parse(dateLayout, raw); err == nil {
		return d, nil
	}
	t, err := ParseEventTime(raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse employment date %q", s)
	}
	return startOfDay(t), nil
}

// Strip drops the zone of t and keeps its wall clock.
func Strip(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Naive converts an instant to the naive wall clock of the reference zone.
func Naive(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return Strip(t.In(loc))
}

// Interview returns the reminders of an interview starting at the naive time start.
func Interview(start time.Time) InterviewReminders {
	return InterviewReminders{
		Advance: start.Add(-time.Hour),
		Morning: atHour(start, morningHour),
		Evening: atHour(start.AddDate(0, 0, -1), eveningHour),
	}
}

// Employment returns the trigger of the candidate removal: midnight after day.
func Employment(day time.Time) time.Time {
	return startOfDay(day).AddDate(0, 0, 1)
}

// FormatDate formats a naive date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
}

func startOfDay(t time.Time) time.Time {
	return atHour(t, 0)
}
