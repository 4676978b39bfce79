package deposit

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// Deposit is a refundable hold that gates bidding eligibility for one
// (user, listing) pair. At most one deposit in StatusHold may exist per pair.
type Deposit struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	ListingID uuid.UUID    `json:"listing_id"`
	Amount    values.Money `json:"amount"`
	Status    Status       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type Status int

const (
	StatusHold Status = iota
	StatusReleased
	StatusCaptured
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusHold:
		return "hold"
	case StatusReleased:
		return "released"
	case StatusCaptured:
		return "captured"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored string to a Status
func ParseStatus(s string) Status {
	switch s {
	case "released":
		return StatusReleased
	case "captured":
		return StatusCaptured
	case "failed":
		return StatusFailed
	default:
		return StatusHold
	}
}

// NewDeposit creates a deposit in StatusHold
func NewDeposit(userID, listingID uuid.UUID, amount values.Money) (*Deposit, error) {
	if userID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user ID is required")
	}
	if listingID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_LISTING_ID", "listing ID is required")
	}
	if !amount.IsPositive() {
		return nil, errors.NewValidationError("INVALID_DEPOSIT_AMOUNT", "deposit amount must be positive")
	}

	now := time.Now().UTC()
	return &Deposit{
		ID:        uuid.New(),
		UserID:    userID,
		ListingID: listingID,
		Amount:    amount,
		Status:    StatusHold,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsActive reports whether the deposit currently gates bidding
func (d *Deposit) IsActive() bool {
	return d.Status == StatusHold
}

// Release moves hold -> released
func (d *Deposit) Release() error {
	if d.Status != StatusHold {
		return errors.NewStateError("DEPOSIT_NOT_HELD", "only held deposits can be released")
	}
	d.Status = StatusReleased
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Capture moves hold -> captured
func (d *Deposit) Capture() error {
	if d.Status != StatusHold {
		return errors.NewStateError("DEPOSIT_NOT_HELD", "only held deposits can be captured")
	}
	d.Status = StatusCaptured
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed records a payment-provider failure. Failed deposits do not gate
// bidding and are retried out-of-band.
func (d *Deposit) MarkFailed() {
	d.Status = StatusFailed
	d.UpdatedAt = time.Now().UTC()
}

// Reinstate moves failed -> hold after a successful background retry
func (d *Deposit) Reinstate() error {
	if d.Status != StatusFailed {
		return errors.NewStateError("DEPOSIT_NOT_FAILED", "only failed deposits can be reinstated")
	}
	d.Status = StatusHold
	d.UpdatedAt = time.Now().UTC()
	return nil
}
