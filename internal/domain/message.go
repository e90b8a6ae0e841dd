package domain

type MessageType string

const (
	MessageTypeInterview            MessageType = "interview"
	MessageTypeRescheduledInterview MessageType = "rescheduled-interview"
	MessageTypeFirstWorkingDay      MessageType = "fwd"
)

// Message is published on the notification channel.
type Message struct {
	Type      MessageType `json:"type"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`

	Start          string `json:"start,omitempty"`
	EmploymentDate string `json:"employment_date,omitempty"`

	VacancyID       *int64 `json:"vacancy_id,omitempty"`
	VacancyPosition string `json:"vacancy_position,omitempty"`
}
