package deposit

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	"github.com/driveline/auto-auction-backend/internal/domain/errors"
)

// ErrDuplicateHold is returned by repositories when an active hold already
// exists for the (user, listing) pair.
var ErrDuplicateHold = stderrors.New("active hold already exists")

// ledger implements Service. Provider calls happen after the local status
// write and outside any listing lock; provider failures degrade to
// background retries and never fail an already-admitted bid.
type ledger struct {
	repo      Repository
	listings  ListingReader
	provider  PaymentProvider
	publisher EventPublisher
	metrics   MetricsCollector
	logger    *zap.Logger
	retries   *retryQueue
}

// NewService creates a new deposit ledger
func NewService(repo Repository, listings ListingReader, provider PaymentProvider, publisher EventPublisher, metrics MetricsCollector, logger *zap.Logger) Service {
	l := &ledger{
		repo:      repo,
		listings:  listings,
		provider:  provider,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
	l.retries = newRetryQueue(l, logger)
	return l
}

// Start launches the background settlement retry worker
func (l *ledger) Start(ctx context.Context) {
	l.retries.Start(ctx)
}

// PlaceHold creates the deposit gating bids on a listing. Client retries are
// tolerated: an existing active hold is returned instead of an error.
func (l *ledger) PlaceHold(ctx context.Context, req *PlaceHoldRequest) (*deposit.Deposit, error) {
	lst, err := l.listings.GetByID(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if lst.Status.IsTerminal() {
		return nil, errors.NewStateError("LISTING_TERMINAL",
			"deposits cannot be placed against a finished or cancelled listing")
	}

	if existing, err := l.repo.GetActiveHold(ctx, req.UserID, req.ListingID); err != nil {
		return nil, errors.NewInternalError("failed to look up deposit").WithCause(err)
	} else if existing != nil {
		return existing, nil
	}

	d, err := deposit.NewDeposit(req.UserID, req.ListingID, req.Amount)
	if err != nil {
		return nil, err
	}

	if err := l.repo.Create(ctx, d); err != nil {
		if stderrors.Is(err, ErrDuplicateHold) {
			// Lost a race with a concurrent retry of the same request;
			// the first writer's hold wins.
			existing, lerr := l.repo.GetActiveHold(ctx, req.UserID, req.ListingID)
			if lerr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, errors.NewInternalError("failed to store deposit").WithCause(err)
	}

	if err := l.provider.AuthorizeHold(ctx, d); err != nil {
		if l.metrics != nil {
			l.metrics.RecordPaymentFailure(ctx, "authorize")
		}
		d.MarkFailed()
		if uerr := l.repo.Update(ctx, d); uerr != nil {
			l.logger.Error("deposit: failed to persist failed status",
				zap.Error(uerr), zap.String("deposit_id", d.ID.String()))
		}
		l.retries.Enqueue(retryJob{kind: retryAuthorize, depositID: d.ID})
		return nil, errors.NewExternalError("payment", "deposit authorization failed").WithCause(err)
	}

	if l.metrics != nil {
		l.metrics.RecordDepositHold(ctx)
	}
	return d, nil
}

// Release voids a hold. Only the deposit's owner may release it, and winners
// cannot release the deposit backing their winning listing.
func (l *ledger) Release(ctx context.Context, depositID, requesterID uuid.UUID) error {
	d, err := l.repo.GetByID(ctx, depositID)
	if err != nil {
		return err
	}
	if d.UserID != requesterID {
		return errors.NewAuthorizationError("NOT_DEPOSIT_OWNER",
			"only the deposit's owner may release it")
	}

	lst, err := l.listings.GetByID(ctx, d.ListingID)
	if err != nil {
		return err
	}
	if lst.WinnerID != nil && *lst.WinnerID == d.UserID {
		return errors.NewStateError("WINNER_DEPOSIT", "the winning bidder's deposit cannot be released")
	}

	if err := d.Release(); err != nil {
		return err
	}
	if err := l.repo.Update(ctx, d); err != nil {
		return errors.NewInternalError("failed to update deposit").WithCause(err)
	}

	if err := l.provider.ReleaseHold(ctx, d); err != nil {
		if l.metrics != nil {
			l.metrics.RecordPaymentFailure(ctx, "release")
		}
		l.logger.Warn("deposit: provider release failed, queued for retry",
			zap.Error(err), zap.String("deposit_id", d.ID.String()))
		l.retries.Enqueue(retryJob{kind: retryRelease, depositID: d.ID})
	}
	if l.metrics != nil {
		l.metrics.RecordDepositRelease(ctx)
	}
	return nil
}

// Capture settles a hold against a winning non-paying party
func (l *ledger) Capture(ctx context.Context, depositID uuid.UUID) error {
	d, err := l.repo.GetByID(ctx, depositID)
	if err != nil {
		return err
	}

	if err := d.Capture(); err != nil {
		return err
	}
	if err := l.repo.Update(ctx, d); err != nil {
		return errors.NewInternalError("failed to update deposit").WithCause(err)
	}

	if err := l.provider.CaptureHold(ctx, d); err != nil {
		if l.metrics != nil {
			l.metrics.RecordPaymentFailure(ctx, "capture")
		}
		l.logger.Warn("deposit: provider capture failed, queued for retry",
			zap.Error(err), zap.String("deposit_id", d.ID.String()))
		l.retries.Enqueue(retryJob{kind: retryCapture, depositID: d.ID})
	}

	if l.metrics != nil {
		l.metrics.RecordDepositCapture(ctx)
	}
	if l.publisher != nil {
		l.publisher.PublishDepositCaptured(ctx, d)
	}
	return nil
}

// HasActiveHold implements the admission-path eligibility predicate. It
// always reads committed repository state, never a cache, so an eligibility
// decision can never act on a stale hold.
func (l *ledger) HasActiveHold(ctx context.Context, userID, listingID uuid.UUID) (bool, error) {
	d, err := l.repo.GetActiveHold(ctx, userID, listingID)
	if err != nil {
		return false, err
	}
	return d != nil && d.IsActive(), nil
}
