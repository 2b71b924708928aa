package repository

import (
	"context"
	"errors"

	imodels "github.com/garnizeh/candidates/internal/models"
	"github.com/garnizeh/candidates/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type CandidateRepo interface {
	CreateCandidate(ctx context.Context, c *models.Candidate) (*models.Candidate, error)
	GetCandidate(ctx context.Context, id int64) (*models.Candidate, error)
	ListCandidates(ctx context.Context, f models.CandidateFilter) (*models.CandidatePage, error)
	ListAllCandidates(ctx context.Context) ([]models.Candidate, error)
	UpdateCandidate(ctx context.Context, id int64, c *models.Candidate) (*models.Candidate, error)
	DeleteCandidate(ctx context.Context, id int64) error
}

type CandidateLogRepo interface {
	CreateCandidateLog(ctx context.Context, l *models.CandidateLog) (int64, error)
	ListCandidateLogs(ctx context.Context, email string, limit, offset int) ([]models.CandidateLog, error)
	CountCandidateLogs(ctx context.Context, email string) (int64, error)
}

// JobRepo is the durable queue backing the background workers.
type JobRepo interface {
	Enqueue(ctx context.Context, j *imodels.BackgroundJob) (int64, error)
	FetchNext(ctx context.Context) (*imodels.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *imodels.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *imodels.BackgroundJob) error
	RequeueStale(ctx context.Context, olderThanUnix int64) (int64, error)
	ListDeadLetters(ctx context.Context, limit int) ([]imodels.DeadLetterJob, error)
}
