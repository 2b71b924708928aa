package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/garnizeh/candidates/internal/auth"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/pkg/repository"
)

const detailInternal = "An unexpected error occurred."

// APIError carries an explicit status and client-facing detail. Err, when
// set, is the underlying cause and is only logged and reported.
type APIError struct {
	Status int
	Detail string
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Detail, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Detail)
}

func (e *APIError) Unwrap() error { return e.Err }

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Detail string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	if len(parts) == 0 {
		return e.detail()
	}
	return e.detail() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) detail() string {
	if e.Detail == "" {
		return "Validation error"
	}
	return e.Detail
}

func invalidField(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

type errorBody struct {
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

// errorWriter is the single place where errors become HTTP responses.
type errorWriter struct {
	sink observability.Sink
}

func newErrorWriter(sink observability.Sink) errorWriter {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return errorWriter{sink: sink}
}

func (ew errorWriter) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := translate(err)

	ctx := r.Context()
	attrs := []any{
		slog.Int("status", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("err", err),
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", attrs...)
	} else {
		logger.DebugContext(ctx, "request rejected", attrs...)
	}

	if status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity || status >= http.StatusInternalServerError {
		ew.sink.CaptureException(ctx, err, map[string]string{
			"status": strconv.Itoa(status),
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, body, status)
}

func translate(err error) (int, errorBody) {
	var (
		apiErr *APIError
		valErr *ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, errorBody{Detail: valErr.detail(), Errors: valErr.Fields}
	case errors.As(err, &apiErr):
		return apiErr.Status, errorBody{Detail: apiErr.Detail}
	case errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusUnprocessableEntity, errorBody{
			Detail: "Validation error",
			Errors: []FieldError{{Field: "password", Message: err.Error()}},
		}
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Detail: "Invalid token"}
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, errorBody{Detail: "Not found"}
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, errorBody{Detail: "Resource already exists"}
	default:
		return http.StatusInternalServerError, errorBody{Detail: detailInternal}
	}
}
