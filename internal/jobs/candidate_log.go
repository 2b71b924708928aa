package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/garnizeh/candidates/internal/models"
	pmodels "github.com/garnizeh/candidates/pkg/models"
	"github.com/garnizeh/candidates/pkg/repository"
)

// TypeCandidateLog records an audit row for a newly created candidate.
const TypeCandidateLog = "candidate.log_creation"

type CandidateLogPayload struct {
	Email string `json:"email"`
}

// EnqueueCandidateLog schedules the audit row for email. The task is never
// retried: a failure lands in the dead letter table.
func EnqueueCandidateLog(ctx context.Context, q Enqueuer, email string) (int64, error) {
	return q.Enqueue(ctx, TypeCandidateLog, CandidateLogPayload{Email: email}, EnqueueOptions{MaxAttempts: 1})
}

// CandidateLogHandler writes one CandidateLog per job in its own transaction.
func CandidateLogHandler(repo repository.CandidateLogRepo, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, j *models.BackgroundJob) error {
		var p CandidateLogPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if strings.TrimSpace(p.Email) == "" {
			return fmt.Errorf("%w: empty email", ErrInvalidPayload)
		}

		id, err := repo.CreateCandidateLog(ctx, &pmodels.CandidateLog{
			CandidateEmail: p.Email,
			Action:         pmodels.ActionCreated,
		})
		if err != nil {
			return fmt.Errorf("create candidate log: %w", err)
		}

		logger.InfoContext(ctx, "candidate creation logged",
			slog.Int64("log_id", id),
			slog.String("email", p.Email))
		return nil
	}
}

// Handlers returns the handler set every worker process registers.
func Handlers(logs repository.CandidateLogRepo, logger *slog.Logger) map[string]Handler {
	return map[string]Handler{
		TypeCandidateLog: CandidateLogHandler(logs, logger),
	}
}
