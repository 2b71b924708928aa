package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/candidates/internal/metrics"
	"github.com/garnizeh/candidates/internal/models"
	"github.com/garnizeh/candidates/pkg/repository"
)

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *models.BackgroundJob) error

var (
	// ErrNoHandler is recorded on jobs whose type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job type")
	// ErrInvalidPayload is returned by handlers that cannot decode their payload.
	ErrInvalidPayload = errors.New("invalid job payload")
)

// DefaultPriority is used when EnqueueOptions.Priority is zero. Lower runs first.
const DefaultPriority = 100

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	// 2^attempt seconds, capped
	if attempt > 16 {
		return 5 * time.Minute
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}

// EnqueueOptions tune a single enqueue. Zero values pick the defaults.
type EnqueueOptions struct {
	Priority    int
	MaxAttempts int
	Delay       time.Duration
}

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, opts EnqueueOptions) (int64, error)
}

// Queue persists jobs in the durable jobs table.
type Queue struct {
	repo repository.JobRepo
}

func NewQueue(repo repository.JobRepo) *Queue {
	return &Queue{repo: repo}
}

// Enqueue marshals payload and stores a new queued job.
func (q *Queue) Enqueue(ctx context.Context, typ string, payload any, opts EnqueueOptions) (int64, error) {
	if typ == "" {
		return 0, fmt.Errorf("enqueue: empty job type")
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: marshal payload: %w", typ, err)
	}

	priority := opts.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	j := &models.BackgroundJob{
		Type:        typ,
		Payload:     b,
		Priority:    priority,
		MaxAttempts: opts.MaxAttempts,
		ScheduledAt: time.Now().Add(opts.Delay),
	}

	id, err := q.repo.Enqueue(ctx, j)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", typ, err)
	}
	metrics.RecordEnqueue(typ)

	return id, nil
}
