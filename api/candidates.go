package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/candidates/internal/jobs"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/pkg/models"
	"github.com/garnizeh/candidates/pkg/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	defaultLogsLimit = 50
)

type CandidatesHandler struct {
	candidates repository.CandidateRepo
	logs       repository.CandidateLogRepo
	queue      jobs.Enqueuer
	sink       observability.Sink
	errs       errorWriter
}

func NewCandidatesHandler(candidates repository.CandidateRepo, logs repository.CandidateLogRepo, queue jobs.Enqueuer, sink observability.Sink) *CandidatesHandler {
	ew := newErrorWriter(sink)
	return &CandidatesHandler{candidates: candidates, logs: logs, queue: queue, sink: ew.sink, errs: ew}
}

type candidateRequest struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Phone           *string `json:"phone"`
	PositionApplied string  `json:"position_applied"`
}

func (c candidateRequest) validate() error {
	return checkEmail("email", c.Email)
}

func (c candidateRequest) model() *models.Candidate {
	return &models.Candidate{
		Name:            c.Name,
		Email:           c.Email,
		Phone:           c.Phone,
		PositionApplied: c.PositionApplied,
	}
}

type candidateListResponse struct {
	Status          string             `json:"status"`
	TotalCandidates int64              `json:"total_candidates"`
	Page            int                `json:"page"`
	Limit           int                `json:"limit"`
	Candidates      []models.Candidate `json:"candidates"`
}

type candidateLogsResponse struct {
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Items  []models.CandidateLog `json:"items"`
}

// CreateCandidate stores the candidate and schedules its audit log entry.
// The audit write happens out of band; failing to schedule it does not fail
// the request.
func (h *CandidatesHandler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := decodeJSON(r, candidateSchema, &req); err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	created, err := h.candidates.CreateCandidate(ctx, req.model())
	if err != nil {
		h.errs.writeError(w, r, conflictAsCandidateExists(err))
		return
	}
	logger.InfoContext(ctx, "candidate created",
		slog.Int64("candidate_id", created.ID),
		slog.String("subject", subject(r)))

	if _, err := jobs.EnqueueCandidateLog(ctx, h.queue, created.Email); err != nil {
		logger.ErrorContext(ctx, "enqueue candidate log",
			slog.Any("err", err),
			slog.Int64("candidate_id", created.ID))
		h.sink.CaptureException(ctx, err, map[string]string{
			"component": "candidate_log",
			"path":      r.URL.Path,
		})
	}

	writeJSON(w, created, http.StatusOK)
}

func (h *CandidatesHandler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	c, err := h.candidates.GetCandidate(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = &APIError{Status: http.StatusNotFound, Detail: "Candidate Not Found", Err: err}
		}
		h.errs.writeError(w, r, err)
		return
	}

	writeJSON(w, c, http.StatusOK)
}

// UpdateCandidate replaces every mutable field of the candidate.
func (h *CandidatesHandler) UpdateCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	var req candidateRequest
	if err := decodeJSON(r, candidateSchema, &req); err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	updated, err := h.candidates.UpdateCandidate(r.Context(), id, req.model())
	if err != nil {
		h.errs.writeError(w, r, candidateNotFound(conflictAsCandidateExists(err)))
		return
	}
	logger.InfoContext(r.Context(), "candidate updated",
		slog.Int64("candidate_id", id),
		slog.String("subject", subject(r)))

	writeJSON(w, updated, http.StatusOK)
}

func (h *CandidatesHandler) DeleteCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	if err := h.candidates.DeleteCandidate(r.Context(), id); err != nil {
		h.errs.writeError(w, r, candidateNotFound(err))
		return
	}
	logger.InfoContext(r.Context(), "candidate deleted",
		slog.Int64("candidate_id", id),
		slog.String("subject", subject(r)))

	writeJSON(w, messageResponse{Message: "Candidate deleted successfully"}, http.StatusOK)
}

// ListCandidates serves one page of candidates, optionally filtered by a
// case-insensitive search across name, email, phone and position.
func (h *CandidatesHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var verr ValidationError
	page := queryInt(q.Get("page"), 1, 1, 0, "page", &verr)
	limit := queryInt(q.Get("limit"), defaultPageLimit, 1, maxPageLimit, "limit", &verr)
	if len(verr.Fields) == 0 && page-1 > math.MaxInt/limit {
		verr.Fields = append(verr.Fields, FieldError{Field: "page", Message: "value is too large"})
	}
	if len(verr.Fields) > 0 {
		h.errs.writeError(w, r, &verr)
		return
	}

	res, err := h.candidates.ListCandidates(r.Context(), models.CandidateFilter{
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	writeJSON(w, candidateListResponse{
		Status:          "success",
		TotalCandidates: res.Total,
		Page:            page,
		Limit:           limit,
		Candidates:      res.Candidates,
	}, http.StatusOK)
}

// ListCandidateLogs pages through the audit log, newest last.
func (h *CandidatesHandler) ListCandidateLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var verr ValidationError
	limit := queryInt(q.Get("limit"), defaultLogsLimit, 1, maxPageLimit, "limit", &verr)
	offset := queryInt(q.Get("offset"), 0, 0, 0, "offset", &verr)
	if len(verr.Fields) > 0 {
		h.errs.writeError(w, r, &verr)
		return
	}

	ctx := r.Context()
	email := q.Get("email")
	items, err := h.logs.ListCandidateLogs(ctx, email, limit, offset)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}
	total, err := h.logs.CountCandidateLogs(ctx, email)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.CandidateLog{}
	}

	writeJSON(w, candidateLogsResponse{Total: total, Limit: limit, Offset: offset, Items: items}, http.StatusOK)
}

// subject is the authenticated caller, empty on open routes.
func subject(r *http.Request) string {
	s, _ := SubjectFromContext(r.Context())
	return s
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalidField("id", "value is not a valid integer")
	}
	return id, nil
}

// queryInt parses an optional integer query value bounded by [lo, hi]. hi of
// zero means unbounded. Problems are appended to verr.
func queryInt(raw string, def, lo, hi int, field string, verr *ValidationError) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		verr.Fields = append(verr.Fields, FieldError{Field: field, Message: "value is not a valid integer"})
	case n < lo:
		verr.Fields = append(verr.Fields, FieldError{Field: field, Message: "value must be >= " + strconv.Itoa(lo)})
	case hi > 0 && n > hi:
		verr.Fields = append(verr.Fields, FieldError{Field: field, Message: "value must be <= " + strconv.Itoa(hi)})
	default:
		return n
	}
	return def
}

func candidateNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &APIError{Status: http.StatusNotFound, Detail: "Candidate not found", Err: err}
	}
	return err
}

func conflictAsCandidateExists(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return &APIError{Status: http.StatusConflict, Detail: "Candidate with this email already exists", Err: err}
	}
	return err
}
