package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// AutobidMandate is a standing instruction to re-bid on the user's behalf up
// to a ceiling. At most one active mandate exists per (user, listing) pair.
type AutobidMandate struct {
	ID        uuid.UUID    `json:"id"`
	ListingID uuid.UUID    `json:"listing_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Ceiling   values.Money `json:"ceiling"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewAutobidMandate creates an active mandate. The ceiling must cover at
// least the current price at creation time.
func NewAutobidMandate(listingID, userID uuid.UUID, ceiling, currentPrice values.Money) (*AutobidMandate, error) {
	if listingID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_LISTING_ID", "listing ID is required")
	}
	if userID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user ID is required")
	}
	if ceiling.Compare(currentPrice) < 0 {
		return nil, errors.NewValidationError("CEILING_TOO_LOW", "autobid ceiling is below the current price")
	}

	now := time.Now().UTC()
	return &AutobidMandate{
		ID:        uuid.New(),
		ListingID: listingID,
		UserID:    userID,
		Ceiling:   ceiling,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanBeat reports whether the mandate can still top the given amount by at
// least one bid step
func (m *AutobidMandate) CanBeat(amount, minBidStep values.Money) bool {
	if !m.Active {
		return false
	}
	required, _ := amount.Add(minBidStep)
	return m.Ceiling.Compare(required) >= 0
}

// Deactivate exhausts the mandate. Exhausted mandates never reactivate.
func (m *AutobidMandate) Deactivate() {
	m.Active = false
	m.UpdatedAt = time.Now().UTC()
}
