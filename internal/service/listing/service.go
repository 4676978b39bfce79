package listing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// Service owns listing lifecycle transitions and the expiry sweep that flips
// live listings past their end time into finished.
type Service interface {
	CreateDraft(ctx context.Context, req *CreateDraftRequest) (*listing.Listing, error)
	SubmitForModeration(ctx context.Context, listingID uuid.UUID) (*listing.Listing, error)
	Approve(ctx context.Context, listingID uuid.UUID) (*listing.Listing, error)
	Cancel(ctx context.Context, listingID uuid.UUID) error
	GetListing(ctx context.Context, listingID uuid.UUID) (*listing.Listing, error)
	// CloseExpired finishes live listings whose end time has passed and
	// returns how many were closed.
	CloseExpired(ctx context.Context, now time.Time) (int, error)
}

// CreateDraftRequest carries seller intake data the engine cares about
type CreateDraftRequest struct {
	VehicleID    uuid.UUID
	SellerID     uuid.UUID
	StartPrice   values.Money
	MinBidStep   values.Money
	ReservePrice *values.Money
	BuyNowPrice  *values.Money
	StartAt      time.Time
	EndAt        time.Time
}

// Repository defines listing storage for lifecycle operations
type Repository interface {
	Create(ctx context.Context, l *listing.Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
	Update(ctx context.Context, l *listing.Listing) error
	// FinishExpired atomically finishes a live listing whose end time has
	// passed, assigning the winner. Returns false when the listing was
	// extended or finished in the meantime.
	FinishExpired(ctx context.Context, id uuid.UUID, winnerID *uuid.UUID, now time.Time) (bool, error)
	ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*listing.Listing, error)
}

// BidReader exposes the winning bid lookup the sweep needs
type BidReader interface {
	GetHighestValid(ctx context.Context, listingID uuid.UUID) (*bid.Bid, error)
}

// EventPublisher publishes lifecycle events
type EventPublisher interface {
	PublishAuctionFinished(ctx context.Context, l *listing.Listing)
}

const sweepBatchSize = 100

type service struct {
	repo      Repository
	bids      BidReader
	publisher EventPublisher
	logger    *zap.Logger
}

// NewService creates a new listing lifecycle service
func NewService(repo Repository, bids BidReader, publisher EventPublisher, logger *zap.Logger) Service {
	return &service{
		repo:      repo,
		bids:      bids,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *service) CreateDraft(ctx context.Context, req *CreateDraftRequest) (*listing.Listing, error) {
	l, err := listing.NewListing(req.VehicleID, req.SellerID, req.StartPrice, req.MinBidStep, req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}

	if req.ReservePrice != nil {
		if req.ReservePrice.Compare(req.StartPrice) < 0 {
			return nil, errors.NewValidationError("INVALID_RESERVE", "reserve price cannot be below the start price")
		}
		l.ReservePrice = req.ReservePrice
	}
	if req.BuyNowPrice != nil {
		if req.BuyNowPrice.Compare(req.StartPrice) <= 0 {
			return nil, errors.NewValidationError("INVALID_BUY_NOW", "buy-now price must exceed the start price")
		}
		l.BuyNowPrice = req.BuyNowPrice
	}

	if err := s.repo.Create(ctx, l); err != nil {
		return nil, errors.NewInternalError("failed to store listing").WithCause(err)
	}
	return l, nil
}

func (s *service) SubmitForModeration(ctx context.Context, listingID uuid.UUID) (*listing.Listing, error) {
	return s.transition(ctx, listingID, func(l *listing.Listing) error {
		return l.SubmitForModeration()
	})
}

func (s *service) Approve(ctx context.Context, listingID uuid.UUID) (*listing.Listing, error) {
	return s.transition(ctx, listingID, func(l *listing.Listing) error {
		return l.GoLive()
	})
}

func (s *service) Cancel(ctx context.Context, listingID uuid.UUID) error {
	_, err := s.transition(ctx, listingID, func(l *listing.Listing) error {
		return l.Cancel()
	})
	return err
}

func (s *service) GetListing(ctx context.Context, listingID uuid.UUID) (*listing.Listing, error) {
	return s.repo.GetByID(ctx, listingID)
}

func (s *service) transition(ctx context.Context, listingID uuid.UUID, mutate func(*listing.Listing) error) (*listing.Listing, error) {
	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if err := mutate(l); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, errors.NewInternalError("failed to update listing").WithCause(err)
	}
	return l, nil
}

// CloseExpired flips live listings past endAt into finished. The winner is
// the highest valid bidder when the reserve is met; otherwise the listing
// finishes unsold. The conditioned repository write makes the sweep safe
// against a concurrent anti-snipe extension.
func (s *service) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ListExpiredLive(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, errors.NewInternalError("failed to list expired listings").WithCause(err)
	}

	closed := 0
	for _, l := range expired {
		var winnerID *uuid.UUID
		if l.ReserveMet() {
			top, err := s.bids.GetHighestValid(ctx, l.ID)
			if err != nil {
				s.logger.Warn("sweep: winning bid lookup failed",
					zap.Error(err), zap.String("listing_id", l.ID.String()))
				continue
			}
			if top != nil {
				winnerID = &top.BidderID
			}
		}

		ok, err := s.repo.FinishExpired(ctx, l.ID, winnerID, now)
		if err != nil {
			s.logger.Error("sweep: finish failed",
				zap.Error(err), zap.String("listing_id", l.ID.String()))
			continue
		}
		if !ok {
			// An admitted bid extended the listing after we read it.
			continue
		}

		closed++
		finished, err := s.repo.GetByID(ctx, l.ID)
		if err == nil && s.publisher != nil {
			s.publisher.PublishAuctionFinished(ctx, finished)
		}
	}

	return closed, nil
}
