package domain

// EventType is the Huntflow webhook event.type value.
type EventType string

const (
	EventTypeAdd     EventType = "ADD"
	EventTypeRemoved EventType = "REMOVED"
	EventTypeStatus  EventType = "STATUS"
)

// ParseEventType maps a raw event.type to a known EventType.
func ParseEventType(s string) (EventType, bool) {
	switch t := EventType(s); t {
	case EventTypeAdd, EventTypeRemoved, EventTypeStatus:
		return t, true
	default:
		return "", false
	}
}
