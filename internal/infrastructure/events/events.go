package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event
type Type string

const (
	TypeBidPlaced       Type = "bid_placed"
	TypeAuctionExtended Type = "auction_extended"
	TypeAuctionFinished Type = "auction_finished"
	TypeDepositCaptured Type = "deposit_captured"
)

// Event is the envelope published to external notification and analytics
// collaborators and to the realtime price-push hub.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       Type                   `json:"type"`
	ListingID  uuid.UUID              `json:"listing_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent creates an event envelope for a listing
func NewEvent(t Type, listingID uuid.UUID, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		ListingID:  listingID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
