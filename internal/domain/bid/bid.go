package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// Bid is an admitted or rejected price offer against a listing. Bids are
// immutable once written except for the validity flag, which is cleared when
// a bid is retroactively invalidated by moderation.
type Bid struct {
	ID        uuid.UUID    `json:"id"`
	ListingID uuid.UUID    `json:"listing_id"`
	BidderID  uuid.UUID    `json:"bidder_id"`
	Amount    values.Money `json:"amount"`
	Source    Source       `json:"source"`
	Valid     bool         `json:"valid"`
	PlacedAt  time.Time    `json:"placed_at"`
	CreatedAt time.Time    `json:"created_at"`
}

type Source int

const (
	SourceManual Source = iota
	SourceAutobid
)

func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceAutobid:
		return "autobid"
	default:
		return "unknown"
	}
}

// ParseSource converts a stored string to a Source
func ParseSource(s string) Source {
	if s == "autobid" {
		return SourceAutobid
	}
	return SourceManual
}

// NewBid creates a valid bid placed at the given instant
func NewBid(listingID, bidderID uuid.UUID, amount values.Money, source Source, placedAt time.Time) *Bid {
	return &Bid{
		ID:        uuid.New(),
		ListingID: listingID,
		BidderID:  bidderID,
		Amount:    amount,
		Source:    source,
		Valid:     true,
		PlacedAt:  placedAt,
		CreatedAt: time.Now().UTC(),
	}
}
