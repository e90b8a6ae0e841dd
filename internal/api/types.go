package api

// Webhook bodies decode into pointer fields so that an absent field can be
// told apart from an empty one.

type WebhookRequest struct {
	Event *WebhookEvent `json:"event"`
}

type WebhookEvent struct {
	Type           *string               `json:"type"`
	Applicant      *ApplicantPayload     `json:"applicant"`
	CalendarEvent  *CalendarEventPayload `json:"calendar_event"`
	EmploymentDate *string               `json:"employment_date"`
	Vacancy        *VacancyPayload       `json:"vacancy"`
}

type ApplicantPayload struct {
	ID        *int64  `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type CalendarEventPayload struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type VacancyPayload struct {
	ID       *int64 `json:"id"`
	Position string `json:"position"`
}

// ErrorResponse is the body of a rejected webhook.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DetailResponse is the body of a rejected manage request.
type DetailResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

type CandidateName struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type ListUsersResponse struct {
	Users   []CandidateName `json:"users"`
	Total   int             `json:"total"`
	Success bool            `json:"success"`
}

type DeleteInterviewRequest struct {
	Candidate *CandidateName `json:"candidate"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type FirstWorkingDay struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FWD       string `json:"fwd"`
}

type FirstWorkingDayResponse struct {
	Candidate FirstWorkingDay `json:"candidate"`
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status      string            `json:"status"`
	Components  map[string]string `json:"components,omitempty"`
	PendingJobs *int              `json:"pending_jobs,omitempty"`
}
