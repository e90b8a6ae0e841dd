package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
	"github.com/wis-software/hubot-huntflow-reloaded/internal/triggers"
)

const (
	codeNoCandidate    = "no_candidate"
	codeNoInterview    = "no_interview"
	codeNoFWD          = "no_fwd"
	codeInvalidRequest = "invalid_request"

	detailNoToken      = "Token is not provided"
	detailInvalidToken = "Token is invalid"
	detailNoCandidate  = "Candidate with the given credentials was not found"
	detailNoInterview  = "Candidate does not have non-expired interviews"
	detailNoFWD        = "First working day of specified candidate was not found"
)

// requireToken accepts the token as a bearer header or as the access query
// parameter.
func (h *Handler) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next(w, r)
			return
		}

		token := r.URL.Query().Get("access")
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if token == "" {
			writeDetail(w, http.StatusUnauthorized, detailNoToken, "")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			writeDetail(w, http.StatusUnauthorized, detailInvalidToken, "")
			return
		}
		next(w, r)
	}
}

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	upcoming, err := h.store.ListUpcomingInterviews(r.Context(), h.clock.Now())
	if err != nil {
		h.log(r).Errorw("api: list upcoming interviews", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to list candidates", "")
		return
	}

	seen := make(map[int64]bool, len(upcoming))
	users := make([]CandidateName, 0, len(upcoming))
	for _, u := range upcoming {
		if seen[u.Candidate.ID] {
			continue
		}
		seen[u.Candidate.ID] = true
		users = append(users, CandidateName{FirstName: u.Candidate.FirstName, LastName: u.Candidate.LastName})
	}
	writeJSON(w, http.StatusOK, ListUsersResponse{Users: users, Total: len(users), Success: true})
}

func (h *Handler) deleteInterview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req DeleteInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, msgMalformed, codeInvalidRequest)
		return
	}
	if req.Candidate == nil {
		writeDetail(w, http.StatusBadRequest, "Candidate is not specified", codeInvalidRequest)
		return
	}

	candidate, ok := h.findCandidate(w, r, req.Candidate.FirstName, req.Candidate.LastName)
	if !ok {
		return
	}

	removed, err := h.reconciler.DeleteUpcomingInterviews(r.Context(), candidate.ID)
	if err != nil {
		h.log(r).Errorw("api: delete interviews", "candidate_id", candidate.ID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to delete interviews", "")
		return
	}
	if removed == 0 {
		writeDetail(w, http.StatusBadRequest, detailNoInterview, codeNoInterview)
		return
	}

	h.log(r).Infow("api: interviews deleted", "candidate_id", candidate.ID, "count", removed)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) listFirstWorkingDays(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.store.ListCandidatesWithFWD(r.Context())
	if err != nil {
		h.log(r).Errorw("api: list first working days", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to list candidates", "")
		return
	}

	users := make([]CandidateName, 0, len(candidates))
	for _, c := range candidates {
		users = append(users, CandidateName{FirstName: c.FirstName, LastName: c.LastName})
	}
	writeJSON(w, http.StatusOK, ListUsersResponse{Users: users, Total: len(users), Success: true})
}

func (h *Handler) firstWorkingDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	candidate, ok := h.findCandidate(w, r, q.Get("first_name"), q.Get("last_name"))
	if !ok {
		return
	}
	if candidate.FirstWorkingDay == nil {
		writeDetail(w, http.StatusBadRequest, detailNoFWD, codeNoFWD)
		return
	}

	writeJSON(w, http.StatusOK, FirstWorkingDayResponse{Candidate: FirstWorkingDay{
		FirstName: candidate.FirstName,
		LastName:  candidate.LastName,
		FWD:       triggers.FormatDate(*candidate.FirstWorkingDay),
	}})
}

// findCandidate writes the error response itself and reports whether the
// caller should continue.
func (h *Handler) findCandidate(w http.ResponseWriter, r *http.Request, firstName, lastName string) (domain.Candidate, bool) {
	if firstName == "" || lastName == "" {
		writeDetail(w, http.StatusBadRequest, detailNoCandidate, codeNoCandidate)
		return domain.Candidate{}, false
	}

	c, err := h.store.FindCandidateByName(r.Context(), firstName, lastName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeDetail(w, http.StatusBadRequest, detailNoCandidate, codeNoCandidate)
		return domain.Candidate{}, false
	case err != nil:
		h.log(r).Errorw("api: find candidate", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to look up candidate", "")
		return domain.Candidate{}, false
	}
	return c, true
}
