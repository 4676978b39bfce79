package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// ListingBuilder builds test listings. Defaults describe a live auction that
// started an hour ago with an hour left, priced at 1000.00 USD with a 50.00
// step.
type ListingBuilder struct {
	id           uuid.UUID
	vehicleID    uuid.UUID
	sellerID     uuid.UUID
	status       listing.Status
	startPrice   values.Money
	reservePrice *values.Money
	buyNowPrice  *values.Money
	currentPrice values.Money
	minBidStep   values.Money
	startAt      time.Time
	endAt        time.Time
	winnerID     *uuid.UUID
	bidCount     int
}

// NewListingBuilder creates a builder with live-auction defaults
func NewListingBuilder() *ListingBuilder {
	now := time.Now().UTC()
	start := values.MustNewMoney(100_000, "USD")
	return &ListingBuilder{
		id:           uuid.New(),
		vehicleID:    uuid.New(),
		sellerID:     uuid.New(),
		status:       listing.StatusLive,
		startPrice:   start,
		currentPrice: start,
		minBidStep:   values.MustNewMoney(5_000, "USD"),
		startAt:      now.Add(-time.Hour),
		endAt:        now.Add(time.Hour),
	}
}

// WithID sets the listing ID
func (b *ListingBuilder) WithID(id uuid.UUID) *ListingBuilder {
	b.id = id
	return b
}

// WithSeller sets the seller ID
func (b *ListingBuilder) WithSeller(id uuid.UUID) *ListingBuilder {
	b.sellerID = id
	return b
}

// WithStatus sets the lifecycle status
func (b *ListingBuilder) WithStatus(s listing.Status) *ListingBuilder {
	b.status = s
	return b
}

// WithStartPrice sets the start price and resets the current price to it
func (b *ListingBuilder) WithStartPrice(m values.Money) *ListingBuilder {
	b.startPrice = m
	b.currentPrice = m
	return b
}

// WithCurrentPrice sets the current price
func (b *ListingBuilder) WithCurrentPrice(m values.Money) *ListingBuilder {
	b.currentPrice = m
	return b
}

// WithReservePrice sets the reserve price
func (b *ListingBuilder) WithReservePrice(m values.Money) *ListingBuilder {
	b.reservePrice = &m
	return b
}

// WithBuyNowPrice sets the buy-now price
func (b *ListingBuilder) WithBuyNowPrice(m values.Money) *ListingBuilder {
	b.buyNowPrice = &m
	return b
}

// WithMinBidStep sets the bid step
func (b *ListingBuilder) WithMinBidStep(m values.Money) *ListingBuilder {
	b.minBidStep = m
	return b
}

// WithWindow sets the auction window
func (b *ListingBuilder) WithWindow(startAt, endAt time.Time) *ListingBuilder {
	b.startAt = startAt
	b.endAt = endAt
	return b
}

// EndingIn places the end time the given duration from now
func (b *ListingBuilder) EndingIn(d time.Duration) *ListingBuilder {
	b.endAt = time.Now().UTC().Add(d)
	return b
}

// WithBidCount sets the recorded bid count
func (b *ListingBuilder) WithBidCount(n int) *ListingBuilder {
	b.bidCount = n
	return b
}

// WithWinner sets the winner ID
func (b *ListingBuilder) WithWinner(id uuid.UUID) *ListingBuilder {
	b.winnerID = &id
	return b
}

// Build constructs the listing
func (b *ListingBuilder) Build() *listing.Listing {
	now := time.Now().UTC()
	return &listing.Listing{
		ID:           b.id,
		VehicleID:    b.vehicleID,
		SellerID:     b.sellerID,
		Status:       b.status,
		StartPrice:   b.startPrice,
		ReservePrice: b.reservePrice,
		BuyNowPrice:  b.buyNowPrice,
		CurrentPrice: b.currentPrice,
		MinBidStep:   b.minBidStep,
		StartAt:      b.startAt,
		EndAt:        b.endAt,
		WinnerID:     b.winnerID,
		BidCount:     b.bidCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
