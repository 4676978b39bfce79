package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// Service defines the bidding engine interface
type Service interface {
	// PlaceBid admits or rejects a manual bid against a listing
	PlaceBid(ctx context.Context, req *PlaceBidRequest) (*bid.Bid, error)
	// BuyNow purchases a listing outright at its buy-now price
	BuyNow(ctx context.Context, listingID, buyerID uuid.UUID) (*listing.Listing, error)
	// RegisterAutobid creates a standing proxy-bid mandate
	RegisterAutobid(ctx context.Context, req *RegisterAutobidRequest) (*bid.AutobidMandate, error)
	// CancelAutobid deactivates the caller's mandate on a listing
	CancelAutobid(ctx context.Context, listingID, userID uuid.UUID) error
	// GetBidsForListing returns all recorded bids for a listing
	GetBidsForListing(ctx context.Context, listingID uuid.UUID) ([]*bid.Bid, error)
}

// PlaceBidRequest carries a manual bid attempt
type PlaceBidRequest struct {
	ListingID uuid.UUID
	BidderID  uuid.UUID
	Amount    values.Money
}

// RegisterAutobidRequest carries a proxy-bid mandate registration
type RegisterAutobidRequest struct {
	ListingID uuid.UUID
	UserID    uuid.UUID
	Ceiling   values.Money
}

// ListingRepository defines the interface for listing storage
type ListingRepository interface {
	// GetByID retrieves a listing by ID from committed state
	GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
	// AdmitBid commits the price update, end-time extension and bid insert
	// as one atomic unit conditioned on the previously read price. Returns
	// false without writing anything when the condition no longer holds.
	AdmitBid(ctx context.Context, listingID uuid.UUID, expectedPrice values.Money, newBid *bid.Bid, newEndAt time.Time) (bool, error)
	// FinishBuyNow atomically finishes a live, zero-bid listing at its
	// buy-now price. Returns false when the listing was no longer eligible.
	FinishBuyNow(ctx context.Context, listingID, buyerID uuid.UUID, price values.Money) (bool, error)
	// Update persists listing fields outside the admission path
	Update(ctx context.Context, l *listing.Listing) error
	// ListExpiredLive returns live listings whose end time has passed
	ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*listing.Listing, error)
}

// BidRepository defines the interface for bid storage
type BidRepository interface {
	// GetByID retrieves a bid by ID
	GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error)
	// ListByListing returns bids for a listing ordered by placement time
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*bid.Bid, error)
	// GetHighestValid returns the highest valid bid for a listing, or nil
	GetHighestValid(ctx context.Context, listingID uuid.UUID) (*bid.Bid, error)
}

// MandateRepository defines the interface for autobid mandate storage
type MandateRepository interface {
	// Create stores a new mandate
	Create(ctx context.Context, m *bid.AutobidMandate) error
	// Update persists mandate state changes
	Update(ctx context.Context, m *bid.AutobidMandate) error
	// GetActiveForListing returns all active mandates on a listing
	GetActiveForListing(ctx context.Context, listingID uuid.UUID) ([]*bid.AutobidMandate, error)
	// GetActiveForUser returns the user's active mandate on a listing, or nil
	GetActiveForUser(ctx context.Context, listingID, userID uuid.UUID) (*bid.AutobidMandate, error)
}

// DepositChecker is the single eligibility predicate the admission path
// consults. Implementations must answer from the latest committed state.
type DepositChecker interface {
	HasActiveHold(ctx context.Context, userID, listingID uuid.UUID) (bool, error)
}

// EventPublisher publishes domain events after admission. Implementations
// must never block the admission path or surface errors to it.
type EventPublisher interface {
	PublishBidPlaced(ctx context.Context, b *bid.Bid, newPrice values.Money)
	PublishAuctionExtended(ctx context.Context, listingID uuid.UUID, newEndAt time.Time)
	PublishAuctionFinished(ctx context.Context, l *listing.Listing)
}

// MetricsCollector records bidding metrics
type MetricsCollector interface {
	RecordBidAdmitted(ctx context.Context, b *bid.Bid)
	RecordBidRejected(ctx context.Context, reason string)
	RecordAdmissionRetry(ctx context.Context)
	RecordAuctionExtended(ctx context.Context)
	RecordAdmissionDuration(ctx context.Context, d time.Duration)
}
