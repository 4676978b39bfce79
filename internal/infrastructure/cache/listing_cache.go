package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/domain/listing"
)

// Snapshot TTL is short; the cache is refreshed on every admitted bid, so the
// TTL only bounds staleness after a missed invalidation.
const listingSnapshotTTL = 10 * time.Second

// ListingSnapshot is the read-model view of a listing served to bidders. It
// carries everything the price display needs without touching PostgreSQL.
type ListingSnapshot struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	CurrentPrice int64      `json:"current_price"`
	MinBidStep   int64      `json:"min_bid_step"`
	Currency     string     `json:"currency"`
	BuyNowPrice  *int64     `json:"buy_now_price,omitempty"`
	ReserveMet   bool       `json:"reserve_met"`
	BidCount     int        `json:"bid_count"`
	StartAt      time.Time  `json:"start_at"`
	EndAt        time.Time  `json:"end_at"`
	WinnerID     *uuid.UUID `json:"winner_id,omitempty"`
}

// SnapshotFromListing projects a listing into its display snapshot
func SnapshotFromListing(l *listing.Listing) *ListingSnapshot {
	s := &ListingSnapshot{
		ID:           l.ID,
		Status:       l.Status.String(),
		CurrentPrice: l.CurrentPrice.MinorUnits(),
		MinBidStep:   l.MinBidStep.MinorUnits(),
		Currency:     l.CurrentPrice.Currency(),
		ReserveMet:   l.ReserveMet(),
		BidCount:     l.BidCount,
		StartAt:      l.StartAt,
		EndAt:        l.EndAt,
		WinnerID:     l.WinnerID,
	}
	if l.BuyNowPrice != nil {
		v := l.BuyNowPrice.MinorUnits()
		s.BuyNowPrice = &v
	}
	return s
}

// ListingCache stores listing display snapshots in Redis
type ListingCache struct {
	cache  Cache
	logger *zap.Logger
}

// NewListingCache creates a listing snapshot cache
func NewListingCache(cache Cache, logger *zap.Logger) *ListingCache {
	return &ListingCache{cache: cache, logger: logger}
}

// Get returns the cached snapshot, or nil on a miss
func (c *ListingCache) Get(ctx context.Context, id uuid.UUID) (*ListingSnapshot, error) {
	var snap ListingSnapshot
	err := c.cache.GetJSON(ctx, ListingPrefix+id.String(), &snap)
	if err != nil {
		var notFound ErrCacheKeyNotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// Set stores the listing's current snapshot
func (c *ListingCache) Set(ctx context.Context, l *listing.Listing) error {
	return c.cache.SetJSON(ctx, ListingPrefix+l.ID.String(), SnapshotFromListing(l), listingSnapshotTTL)
}

// Invalidate drops the cached snapshot so the next read hits the database
func (c *ListingCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.cache.Delete(ctx, ListingPrefix+id.String()); err != nil {
		c.logger.Warn("listing snapshot invalidation failed",
			zap.String("listing_id", id.String()),
			zap.Error(err))
	}
}
