package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/garnizeh/candidates/internal/metrics"
	"github.com/garnizeh/candidates/internal/models"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/pkg/repository"
)

const (
	defaultWorkerCount  = 2
	defaultPollInterval = 500 * time.Millisecond
	defaultStaleAfter   = 5 * time.Minute
)

// WorkerPool claims jobs from the queue and dispatches them to handlers.
type WorkerPool struct {
	repo         repository.JobRepo
	handlers     map[string]Handler
	logger       *slog.Logger
	sink         observability.Sink
	workerCount  int
	pollInterval time.Duration
	staleAfter   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

func WithWorkerCount(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(p *WorkerPool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithStaleAfter sets how long a job may sit in running before Start requeues it.
func WithStaleAfter(d time.Duration) Option {
	return func(p *WorkerPool) {
		if d > 0 {
			p.staleAfter = d
		}
	}
}

func WithSink(s observability.Sink) Option {
	return func(p *WorkerPool) {
		if s != nil {
			p.sink = s
		}
	}
}

func NewWorkerPool(repo repository.JobRepo, handlers map[string]Handler, logger *slog.Logger, opts ...Option) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if handlers == nil {
		handlers = map[string]Handler{}
	}
	p := &WorkerPool{
		repo:         repo,
		handlers:     handlers,
		logger:       logger,
		sink:         observability.NopSink{},
		workerCount:  defaultWorkerCount,
		pollInterval: defaultPollInterval,
		staleAfter:   defaultStaleAfter,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start requeues stale running jobs and launches the worker goroutines.
func (p *WorkerPool) Start(ctx context.Context) {
	cutoff := time.Now().Add(-p.staleAfter).UTC().Unix()
	if n, err := p.repo.RequeueStale(ctx, cutoff); err != nil {
		p.logger.ErrorContext(ctx, "requeue stale jobs", slog.Any("err", err))
	} else if n > 0 {
		p.logger.InfoContext(ctx, "requeued stale jobs", slog.Int64("count", n))
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for the in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Debug("worker stopping", slog.Int("id", id))
			return
		case <-ctx.Done():
			p.logger.Debug("context canceled, worker exiting", slog.Int("id", id))
			return
		default:
		}

		job, err := p.repo.FetchNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.ErrorContext(ctx, "fetch job", slog.Any("err", err))
			}
			p.wait(ctx, 2*p.pollInterval)
			continue
		}
		if job == nil {
			p.wait(ctx, p.pollInterval)
			continue
		}

		p.process(ctx, job)
	}
}

// wait blocks for d or until the pool is stopped.
func (p *WorkerPool) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stop:
	case <-ctx.Done():
	}
}

func (p *WorkerPool) process(ctx context.Context, job *models.BackgroundJob) {
	log := p.logger.With(slog.Int64("job_id", job.ID), slog.String("type", job.Type))
	start := time.Now()

	h, ok := p.handlers[job.Type]
	if !ok {
		job.Attempts++
		job.Status = models.JobFailed
		job.LastError = ErrNoHandler.Error()
		p.deadLetter(ctx, log, job, ErrNoHandler)
		metrics.RecordJob(job.Type, metrics.OutcomeFailed, time.Since(start))
		return
	}

	err := p.run(ctx, h, job)
	if err == nil {
		job.Status = models.JobDone
		if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
			log.ErrorContext(ctx, "mark job done", slog.Any("err", upErr))
		}
		metrics.RecordJob(job.Type, metrics.OutcomeDone, time.Since(start))
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		job.Status = models.JobFailed
		p.deadLetter(ctx, log, job, err)
		metrics.RecordJob(job.Type, metrics.OutcomeFailed, time.Since(start))
		return
	}

	t := time.Now().Add(BackoffDuration(job.Attempts))
	job.NextTryAt = &t
	job.Status = models.JobRetry
	if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
		log.ErrorContext(ctx, "update job for retry", slog.Any("err", upErr))
	}
	log.WarnContext(ctx, "job failed, retry scheduled",
		slog.Any("err", err),
		slog.Int("attempts", job.Attempts),
		slog.Time("next_try_at", t))
	metrics.RecordJob(job.Type, metrics.OutcomeRetry, time.Since(start))
}

// run calls the handler and turns a panic into an error.
func (p *WorkerPool) run(ctx context.Context, h Handler, job *models.BackgroundJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (p *WorkerPool) deadLetter(ctx context.Context, log *slog.Logger, job *models.BackgroundJob, cause error) {
	log.ErrorContext(ctx, "job failed permanently",
		slog.Any("err", cause),
		slog.Int("attempts", job.Attempts))
	p.sink.CaptureException(ctx, fmt.Errorf("job %s (%d): %w", job.Type, job.ID, cause), map[string]string{
		"component": "worker",
		"job_type":  job.Type,
		"job_id":    strconv.FormatInt(job.ID, 10),
	})
	if err := p.repo.MoveToDeadLetter(ctx, job); err != nil {
		log.ErrorContext(ctx, "move to dead letter", slog.Any("err", err))
	}
}
