package postgres

// Reminder jobs

const queryInsertJob = `
INSERT INTO reminder_jobs (trigger_time, kind, payload)
VALUES ($1, $2, $3)
RETURNING id
`

const queryGetJob = `
SELECT id, trigger_time, kind, payload, created_at
FROM reminder_jobs
WHERE id = $1
`

const queryRemoveJob = `
DELETE FROM reminder_jobs WHERE id = $1
`

const queryListPendingJobs = `
SELECT id, trigger_time, kind, payload, created_at
FROM reminder_jobs
ORDER BY trigger_time, id
`

// Candidates

const candidateColumns = `id, first_name, last_name, first_working_day, removal_job_id`

const queryInsertCandidate = `
INSERT INTO candidates (id, first_name, last_name)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING
`

const queryGetCandidate = `
SELECT ` + candidateColumns + `
FROM candidates
WHERE id = $1
`

const queryFindCandidateByName = `
SELECT ` + candidateColumns + `
FROM candidates
WHERE first_name = $1 AND last_name = $2
ORDER BY id
LIMIT 1
`

const queryUpdateCandidateEmployment = `
UPDATE candidates
SET first_working_day = $2, removal_job_id = $3
WHERE id = $1
`

const queryDeleteCandidate = `
DELETE FROM candidates WHERE id = $1
`

const queryListCandidatesWithFWD = `
SELECT ` + candidateColumns + `
FROM candidates
WHERE first_working_day IS NOT NULL
ORDER BY id
`

// Interviews

const interviewColumns = `id, candidate_id, type, start_at, end_at, created_at, job_ids`

const queryGetInterview = `
SELECT ` + interviewColumns + `
FROM interviews
WHERE candidate_id = $1 AND type = $2
`

const queryListInterviewsByCandidate = `
SELECT ` + interviewColumns + `
FROM interviews
WHERE candidate_id = $1
ORDER BY id
`

const queryInsertInterview = `
INSERT INTO interviews (candidate_id, type, start_at, end_at, created_at, job_ids)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`

const querySetInterviewJobs = `
UPDATE interviews SET job_ids = $2 WHERE id = $1
`

const queryDeleteInterview = `
DELETE FROM interviews WHERE id = $1
`

const queryListUpcomingInterviews = `
SELECT
    c.id, c.first_name, c.last_name, c.first_working_day, c.removal_job_id,
    i.id, i.candidate_id, i.type, i.start_at, i.end_at, i.created_at, i.job_ids
FROM interviews i
JOIN candidates c ON c.id = i.candidate_id
WHERE i.start_at > $1
ORDER BY i.start_at, i.id
`

const queryListInterviewsEndedBefore = `
SELECT ` + interviewColumns + `
FROM interviews
WHERE end_at < $1
ORDER BY end_at, id
LIMIT $2
`
