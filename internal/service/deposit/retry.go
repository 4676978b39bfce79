package deposit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type retryKind int

const (
	retryAuthorize retryKind = iota
	retryRelease
	retryCapture
)

func (k retryKind) String() string {
	switch k {
	case retryAuthorize:
		return "authorize"
	case retryRelease:
		return "release"
	case retryCapture:
		return "capture"
	default:
		return "unknown"
	}
}

type retryJob struct {
	kind      retryKind
	depositID uuid.UUID
	attempt   int
}

const (
	retryQueueSize   = 1024
	maxRetryAttempts = 5
	baseRetryDelay   = 2 * time.Second
)

// retryQueue drains failed payment-provider calls in the background with
// exponential backoff. An overflowing queue drops the job and logs it; a
// reconciliation sweep against the provider is the recovery path for
// dropped jobs.
type retryQueue struct {
	ledger *ledger
	logger *zap.Logger
	jobs   chan retryJob
}

func newRetryQueue(l *ledger, logger *zap.Logger) *retryQueue {
	return &retryQueue{
		ledger: l,
		logger: logger,
		jobs:   make(chan retryJob, retryQueueSize),
	}
}

// Start launches the worker; it drains until ctx is cancelled
func (q *retryQueue) Start(ctx context.Context) {
	go q.run(ctx)
}

// Enqueue schedules a provider call for background retry
func (q *retryQueue) Enqueue(job retryJob) {
	select {
	case q.jobs <- job:
	default:
		q.logger.Error("deposit: retry queue full, dropping job",
			zap.String("kind", job.kind.String()),
			zap.String("deposit_id", job.depositID.String()))
	}
}

func (q *retryQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *retryQueue) process(ctx context.Context, job retryJob) {
	delay := baseRetryDelay << job.attempt
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	d, err := q.ledger.repo.GetByID(ctx, job.depositID)
	if err != nil {
		q.logger.Error("deposit: retry lookup failed",
			zap.Error(err), zap.String("deposit_id", job.depositID.String()))
		return
	}

	switch job.kind {
	case retryAuthorize:
		err = q.ledger.provider.AuthorizeHold(ctx, d)
		if err == nil {
			if rerr := d.Reinstate(); rerr == nil {
				err = q.ledger.repo.Update(ctx, d)
			}
		}
	case retryRelease:
		err = q.ledger.provider.ReleaseHold(ctx, d)
	case retryCapture:
		err = q.ledger.provider.CaptureHold(ctx, d)
	}

	if err == nil {
		q.logger.Info("deposit: retry succeeded",
			zap.String("kind", job.kind.String()),
			zap.String("deposit_id", job.depositID.String()),
			zap.Int("attempt", job.attempt+1))
		return
	}

	if job.attempt+1 >= maxRetryAttempts {
		q.logger.Error("deposit: retry attempts exhausted",
			zap.Error(err),
			zap.String("kind", job.kind.String()),
			zap.String("deposit_id", job.depositID.String()))
		return
	}

	q.Enqueue(retryJob{kind: job.kind, depositID: job.depositID, attempt: job.attempt + 1})
}
