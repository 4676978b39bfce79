package deposit

import (
	"context"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// Service defines the deposit ledger interface
type Service interface {
	// Start launches the background settlement retry worker
	Start(ctx context.Context)
	// PlaceHold creates (or idempotently returns) the hold gating bids on a
	// listing for a user
	PlaceHold(ctx context.Context, req *PlaceHoldRequest) (*deposit.Deposit, error)
	// Release moves a hold to released and queues the provider refund.
	// Only the deposit's owner may release it.
	Release(ctx context.Context, depositID, requesterID uuid.UUID) error
	// Capture moves a hold to captured and queues the provider capture
	Capture(ctx context.Context, depositID uuid.UUID) error
	// HasActiveHold answers the admission-path eligibility predicate from
	// committed state
	HasActiveHold(ctx context.Context, userID, listingID uuid.UUID) (bool, error)
}

// PlaceHoldRequest carries a deposit hold attempt
type PlaceHoldRequest struct {
	UserID    uuid.UUID
	ListingID uuid.UUID
	Amount    values.Money
}

// Repository defines the interface for deposit storage
type Repository interface {
	// Create stores a new deposit. Implementations enforce the single
	// active hold per (user, listing) pair and return ErrDuplicateHold
	// when it is violated.
	Create(ctx context.Context, d *deposit.Deposit) error
	// GetByID retrieves a deposit by ID
	GetByID(ctx context.Context, id uuid.UUID) (*deposit.Deposit, error)
	// GetActiveHold returns the hold deposit for a (user, listing) pair,
	// or nil when none exists
	GetActiveHold(ctx context.Context, userID, listingID uuid.UUID) (*deposit.Deposit, error)
	// Update persists deposit status transitions
	Update(ctx context.Context, d *deposit.Deposit) error
}

// ListingReader gives the ledger the listing state it needs to refuse holds
// against terminal listings and releases by winners
type ListingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
}

// PaymentProvider is the opaque settlement collaborator. Calls may block on
// network I/O and are therefore never made while a listing lock is held.
type PaymentProvider interface {
	// AuthorizeHold places the refundable authorization backing a deposit
	AuthorizeHold(ctx context.Context, d *deposit.Deposit) error
	// ReleaseHold voids the authorization
	ReleaseHold(ctx context.Context, d *deposit.Deposit) error
	// CaptureHold settles the authorization
	CaptureHold(ctx context.Context, d *deposit.Deposit) error
}

// EventPublisher publishes deposit events. Must never block the caller.
type EventPublisher interface {
	PublishDepositCaptured(ctx context.Context, d *deposit.Deposit)
}

// MetricsCollector records deposit ledger metrics
type MetricsCollector interface {
	RecordDepositHold(ctx context.Context)
	RecordDepositRelease(ctx context.Context)
	RecordDepositCapture(ctx context.Context)
	RecordPaymentFailure(ctx context.Context, operation string)
}
