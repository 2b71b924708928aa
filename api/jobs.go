package api

import (
	"net/http"

	imodels "github.com/garnizeh/candidates/internal/models"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/pkg/repository"
)

const defaultDeadLettersLimit = 50

// JobsHandler exposes the background queue read-only.
type JobsHandler struct {
	jobs repository.JobRepo
	errs errorWriter
}

func NewJobsHandler(jobs repository.JobRepo, sink observability.Sink) *JobsHandler {
	return &JobsHandler{jobs: jobs, errs: newErrorWriter(sink)}
}

type deadLettersResponse struct {
	Limit int                     `json:"limit"`
	Items []imodels.DeadLetterJob `json:"items"`
}

// ListDeadLetters returns the most recent jobs that exhausted their attempts,
// newest first.
func (h *JobsHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	var verr ValidationError
	limit := queryInt(r.URL.Query().Get("limit"), defaultDeadLettersLimit, 1, maxPageLimit, "limit", &verr)
	if len(verr.Fields) > 0 {
		h.errs.writeError(w, r, &verr)
		return
	}

	items, err := h.jobs.ListDeadLetters(r.Context(), limit)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []imodels.DeadLetterJob{}
	}

	writeJSON(w, deadLettersResponse{Limit: limit, Items: items}, http.StatusOK)
}
