package domain

import "time"

// Candidate is a vacancy applicant keyed by the external applicant id.
type Candidate struct {
	ID        int64
	FirstName string
	LastName  string

	FirstWorkingDay *time.Time
	RemovalJobID    *int64 // pending remove_candidate job, if any
}

// Interview is the single active interview of a candidate for a given type.
// Start, End and Created are naive timestamps.
type Interview struct {
	ID          int64
	CandidateID int64
	Type        string

	Start   time.Time
	End     time.Time
	Created time.Time

	JobIDs []int64
}

// UpcomingInterview joins an interview with its candidate for listings.
type UpcomingInterview struct {
	Candidate Candidate
	Interview Interview
}
