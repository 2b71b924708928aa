package api

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/garnizeh/candidates/pkg/models"
)

var reportHeader = []string{"ID", "Name", "Email", "Phone", "Position Applied"}

// GenerateReport writes every candidate as CSV. Rows are loaded up front and
// flushed to the client one at a time.
func (h *CandidatesHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidates, err := h.candidates.ListAllCandidates(ctx)
	if err != nil {
		h.errs.writeError(w, r, &APIError{Status: http.StatusInternalServerError, Detail: "Failed to generate report", Err: err})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=candidates_report.csv")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	cw := csv.NewWriter(w)
	writeRow := func(record []string) bool {
		if err := cw.Write(record); err != nil {
			logger.ErrorContext(ctx, "write report row", slog.Any("err", err))
			return false
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			logger.ErrorContext(ctx, "flush report row", slog.Any("err", err))
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	if !writeRow(reportHeader) {
		return
	}
	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		if !writeRow(reportRow(c)) {
			return
		}
	}
}

func reportRow(c models.Candidate) []string {
	phone := ""
	if c.Phone != nil {
		phone = *c.Phone
	}
	return []string{strconv.FormatInt(c.ID, 10), c.Name, c.Email, phone, c.PositionApplied}
}
