package listing

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// Listing is a single vehicle auction. Its price and end time are the only
// mutable auction state; both are monotonic: CurrentPrice never decreases and
// EndAt never moves backward.
type Listing struct {
	ID        uuid.UUID `json:"id"`
	VehicleID uuid.UUID `json:"vehicle_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Status    Status    `json:"status"`

	StartPrice   values.Money  `json:"start_price"`
	ReservePrice *values.Money `json:"reserve_price,omitempty"`
	BuyNowPrice  *values.Money `json:"buy_now_price,omitempty"`
	CurrentPrice values.Money  `json:"current_price"`
	MinBidStep   values.Money  `json:"min_bid_step"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`

	WinnerID *uuid.UUID `json:"winner_id,omitempty"`

	// BidCount counts admitted (valid) bids. Buy-now is only available
	// while it is zero.
	BidCount int `json:"bid_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status int

const (
	StatusDraft Status = iota
	StatusModeration
	StatusLive
	StatusFinished
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusModeration:
		return "moderation"
	case StatusLive:
		return "live"
	case StatusFinished:
		return "finished"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored string to a Status
func ParseStatus(s string) Status {
	switch s {
	case "moderation":
		return StatusModeration
	case "live":
		return StatusLive
	case "finished":
		return StatusFinished
	case "cancelled":
		return StatusCancelled
	default:
		return StatusDraft
	}
}

// IsTerminal reports whether the status admits no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// NewListing creates a draft listing
func NewListing(vehicleID, sellerID uuid.UUID, startPrice, minBidStep values.Money, startAt, endAt time.Time) (*Listing, error) {
	if vehicleID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_VEHICLE_ID", "vehicle ID is required")
	}
	if sellerID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SELLER_ID", "seller ID is required")
	}
	if startPrice.IsNegative() {
		return nil, errors.NewValidationError("INVALID_START_PRICE", "start price cannot be negative")
	}
	if !minBidStep.IsPositive() {
		return nil, errors.NewValidationError("INVALID_BID_STEP", "minimum bid step must be positive")
	}
	if !endAt.After(startAt) {
		return nil, errors.NewValidationError("INVALID_TIME_WINDOW", "end time must be after start time")
	}

	now := time.Now().UTC()
	return &Listing{
		ID:           uuid.New(),
		VehicleID:    vehicleID,
		SellerID:     sellerID,
		Status:       StatusDraft,
		StartPrice:   startPrice,
		CurrentPrice: startPrice,
		MinBidStep:   minBidStep,
		StartAt:      startAt,
		EndAt:        endAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsBiddable reports whether the listing accepts bids at the given instant
func (l *Listing) IsBiddable(now time.Time) bool {
	return l.Status == StatusLive && now.Before(l.EndAt)
}

// MinimumNextBid returns the lowest amount the next bid may carry
func (l *Listing) MinimumNextBid() values.Money {
	min, _ := l.CurrentPrice.Add(l.MinBidStep)
	return min
}

// ReserveMet reports whether the current price reached the seller's reserve.
// Listings without a reserve always sell.
func (l *Listing) ReserveMet() bool {
	if l.ReservePrice == nil {
		return true
	}
	return l.CurrentPrice.Compare(*l.ReservePrice) >= 0
}

// BuyNowAvailable reports whether the listing can still be bought outright.
// The option is permanently lost once the first bid is admitted.
func (l *Listing) BuyNowAvailable() bool {
	return l.BuyNowPrice != nil && l.BidCount == 0 && l.Status == StatusLive
}

// SubmitForModeration moves a draft listing into the moderation queue
func (l *Listing) SubmitForModeration() error {
	if l.Status != StatusDraft {
		return errors.NewStateError("NOT_DRAFT", "only draft listings can be submitted for moderation")
	}
	l.Status = StatusModeration
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// GoLive opens a moderated listing for bidding
func (l *Listing) GoLive() error {
	if l.Status != StatusModeration {
		return errors.NewStateError("NOT_IN_MODERATION", "only moderated listings can go live")
	}
	l.Status = StatusLive
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel terminates a non-terminal listing administratively
func (l *Listing) Cancel() error {
	if l.Status.IsTerminal() {
		return errors.NewStateError("ALREADY_TERMINAL", "listing is already finished or cancelled")
	}
	l.Status = StatusCancelled
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// Finish terminates a live listing. The winner is nil when the auction ends
// without valid bids or with the reserve unmet.
func (l *Listing) Finish(winner *uuid.UUID) error {
	if l.Status != StatusLive {
		return errors.NewStateError("NOT_LIVE", "only live listings can finish")
	}
	l.Status = StatusFinished
	l.WinnerID = winner
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyBid records an admitted bid's price against the listing. Callers are
// expected to have validated amount through the admission path; the method
// still refuses anything that would break price monotonicity.
func (l *Listing) ApplyBid(amount values.Money) error {
	if !l.IsBiddable(time.Now().UTC()) && l.Status != StatusLive {
		return errors.NewStateError("LISTING_NOT_LIVE", "listing is not open for bidding")
	}
	if amount.Compare(l.MinimumNextBid()) < 0 {
		return errors.NewValidationError("BID_TOO_LOW", "bid amount is below the minimum next bid")
	}
	l.CurrentPrice = amount
	l.BidCount++
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// ExtendTo pushes the end time forward. Requests that would move it backward
// are ignored.
func (l *Listing) ExtendTo(newEnd time.Time) bool {
	if !newEnd.After(l.EndAt) {
		return false
	}
	l.EndAt = newEnd
	l.UpdatedAt = time.Now().UTC()
	return true
}

// AcceptBuyNow finishes the listing at the buy-now price in one transition
func (l *Listing) AcceptBuyNow(buyerID uuid.UUID) error {
	if !l.BuyNowAvailable() {
		return errors.NewStateError("BUY_NOW_UNAVAILABLE", "buy-now is no longer available for this listing")
	}
	l.CurrentPrice = *l.BuyNowPrice
	l.Status = StatusFinished
	l.WinnerID = &buyerID
	l.UpdatedAt = time.Now().UTC()
	return nil
}
