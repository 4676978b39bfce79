package bidding

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveline/auto-auction-backend/internal/testutil"
	"github.com/driveline/auto-auction-backend/internal/testutil/fixtures"
)

func TestExtendedEnd(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cfg := Config{
		AntiSnipeWindow:     5 * time.Minute,
		MaxTotalDuration:    24 * time.Hour,
		MaxAdmissionRetries: 3,
	}
	e := &engine{cfg: cfg}

	tests := []struct {
		name         string
		startAt      time.Time
		endAt        time.Time
		wantEnd      time.Time
		wantExtended bool
	}{
		{
			name:         "outside window is untouched",
			startAt:      now.Add(-time.Hour),
			endAt:        now.Add(time.Hour),
			wantEnd:      now.Add(time.Hour),
			wantExtended: false,
		},
		{
			name:         "inside window extends to now plus window",
			startAt:      now.Add(-time.Hour),
			endAt:        now.Add(3 * time.Minute),
			wantEnd:      now.Add(5 * time.Minute),
			wantExtended: true,
		},
		{
			name:         "exactly at the window boundary is untouched",
			startAt:      now.Add(-time.Hour),
			endAt:        now.Add(5 * time.Minute),
			wantEnd:      now.Add(5 * time.Minute),
			wantExtended: false,
		},
		{
			name:         "last second still extends",
			startAt:      now.Add(-time.Hour),
			endAt:        now.Add(time.Second),
			wantEnd:      now.Add(5 * time.Minute),
			wantExtended: true,
		},
		{
			name:         "clamped by the total duration ceiling",
			startAt:      now.Add(-24*time.Hour + 2*time.Minute),
			endAt:        now.Add(time.Minute),
			wantEnd:      now.Add(2 * time.Minute),
			wantExtended: true,
		},
		{
			name:         "fully clamped end never moves backward",
			startAt:      now.Add(-24 * time.Hour),
			endAt:        now.Add(time.Minute),
			wantEnd:      now.Add(time.Minute),
			wantExtended: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := fixtures.NewListingBuilder().WithWindow(tt.startAt, tt.endAt).Build()
			got, extended := e.extendedEnd(l, now)
			assert.True(t, got.Equal(tt.wantEnd), "want %v, got %v", tt.wantEnd, got)
			assert.Equal(t, tt.wantExtended, extended)
		})
	}
}

func TestPlaceBid_AntiSnipeExtension(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)

	// Auction ends in three minutes; the anti-snipe window is five.
	l := f.seedListing(func(b *fixtures.ListingBuilder) {
		b.WithWindow(f.clock.Now().Add(-time.Hour), f.clock.Now().Add(3*time.Minute))
	})
	bidder := uuid.New()
	f.deposits.Grant(bidder, l.ID)

	_, err := f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID,
		BidderID:  bidder,
		Amount:    usd(105_000),
	})
	require.NoError(t, err)

	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	wantEnd := f.clock.Now().Add(5 * time.Minute)
	assert.True(t, updated.EndAt.Equal(wantEnd), "want end %v, got %v", wantEnd, updated.EndAt)

	require.Equal(t, 1, f.events.ExtensionCount())
	assert.True(t, f.events.Extensions[0].NewEndAt.Equal(wantEnd))
	assert.Equal(t, 1, f.metrics.Extensions)
}

func TestPlaceBid_RepeatedExtensions(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)

	l := f.seedListing(func(b *fixtures.ListingBuilder) {
		b.WithWindow(f.clock.Now().Add(-time.Hour), f.clock.Now().Add(2*time.Minute))
	})

	// Each late bid lands inside the refreshed window and extends again.
	for i := 0; i < 4; i++ {
		bidder := uuid.New()
		f.deposits.Grant(bidder, l.ID)
		_, err := f.engine.PlaceBid(ctx, &PlaceBidRequest{
			ListingID: l.ID,
			BidderID:  bidder,
			Amount:    usd(int64(100_000 + (i+1)*5_000)),
		})
		require.NoError(t, err)
		f.clock.Advance(4 * time.Minute)
	}

	assert.Equal(t, 4, f.events.ExtensionCount())
}

func TestPlaceBid_ExtensionClampedAtMaxDuration(t *testing.T) {
	f := newEngineFixture(t, Config{
		AntiSnipeWindow:     5 * time.Minute,
		MaxTotalDuration:    24 * time.Hour,
		MaxAdmissionRetries: 3,
	})
	ctx := testutil.TestContext(t)

	// The listing started almost a full day ago, so the extension ceiling
	// sits two minutes out.
	l := f.seedListing(func(b *fixtures.ListingBuilder) {
		b.WithWindow(f.clock.Now().Add(-24*time.Hour+2*time.Minute), f.clock.Now().Add(time.Minute))
	})
	bidder := uuid.New()
	f.deposits.Grant(bidder, l.ID)

	_, err := f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID,
		BidderID:  bidder,
		Amount:    usd(105_000),
	})
	require.NoError(t, err)

	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	wantEnd := f.clock.Now().Add(2 * time.Minute)
	assert.True(t, updated.EndAt.Equal(wantEnd), "want end %v, got %v", wantEnd, updated.EndAt)
}
