package listing_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

func money(t *testing.T, minor int64) values.Money {
	t.Helper()
	m, err := values.NewMoney(minor, values.USD)
	require.NoError(t, err)
	return m
}

func liveListing(t *testing.T) *listing.Listing {
	t.Helper()
	now := time.Now().UTC()
	l, err := listing.NewListing(uuid.New(), uuid.New(), money(t, 100000), money(t, 5000), now, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, l.SubmitForModeration())
	require.NoError(t, l.GoLive())
	return l
}

func TestNewListing(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		vehicleID  uuid.UUID
		sellerID   uuid.UUID
		startPrice int64
		step       int64
		startAt    time.Time
		endAt      time.Time
		wantErr    bool
		validate   func(t *testing.T, l *listing.Listing)
	}{
		{
			name:       "creates draft listing with valid data",
			vehicleID:  uuid.New(),
			sellerID:   uuid.New(),
			startPrice: 100000,
			step:       5000,
			startAt:    now,
			endAt:      now.Add(time.Hour),
			validate: func(t *testing.T, l *listing.Listing) {
				assert.NotEqual(t, uuid.Nil, l.ID)
				assert.Equal(t, listing.StatusDraft, l.Status)
				assert.Equal(t, int64(100000), l.CurrentPrice.MinorUnits())
				assert.Equal(t, int64(105000), l.MinimumNextBid().MinorUnits())
				assert.Zero(t, l.BidCount)
			},
		},
		{
			name:       "rejects zero bid step",
			vehicleID:  uuid.New(),
			sellerID:   uuid.New(),
			startPrice: 100000,
			step:       0,
			startAt:    now,
			endAt:      now.Add(time.Hour),
			wantErr:    true,
		},
		{
			name:       "rejects inverted time window",
			vehicleID:  uuid.New(),
			sellerID:   uuid.New(),
			startPrice: 100000,
			step:       5000,
			startAt:    now.Add(time.Hour),
			endAt:      now,
			wantErr:    true,
		},
		{
			name:       "rejects missing vehicle",
			vehicleID:  uuid.Nil,
			sellerID:   uuid.New(),
			startPrice: 100000,
			step:       5000,
			startAt:    now,
			endAt:      now.Add(time.Hour),
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := listing.NewListing(tt.vehicleID, tt.sellerID, money(t, tt.startPrice), money(t, tt.step), tt.startAt, tt.endAt)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			tt.validate(t, l)
		})
	}
}

func TestListing_Lifecycle(t *testing.T) {
	now := time.Now().UTC()
	l, err := listing.NewListing(uuid.New(), uuid.New(), money(t, 100000), money(t, 5000), now, now.Add(time.Hour))
	require.NoError(t, err)

	// live is only reachable through moderation
	require.Error(t, l.GoLive())
	require.NoError(t, l.SubmitForModeration())
	assert.Equal(t, listing.StatusModeration, l.Status)

	require.NoError(t, l.GoLive())
	assert.Equal(t, listing.StatusLive, l.Status)
	assert.True(t, l.IsBiddable(now.Add(time.Minute)))
	assert.False(t, l.IsBiddable(now.Add(2*time.Hour)))

	winner := uuid.New()
	require.NoError(t, l.Finish(&winner))
	assert.Equal(t, listing.StatusFinished, l.Status)
	assert.Equal(t, winner, *l.WinnerID)

	// terminal states admit nothing further
	err = l.Cancel()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))
}

func TestListing_ApplyBid(t *testing.T) {
	l := liveListing(t)

	require.NoError(t, l.ApplyBid(money(t, 105000)))
	assert.Equal(t, int64(105000), l.CurrentPrice.MinorUnits())
	assert.Equal(t, 1, l.BidCount)

	// below minimum next bid
	err := l.ApplyBid(money(t, 107000))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, int64(105000), l.CurrentPrice.MinorUnits())
}

func TestListing_ExtendTo(t *testing.T) {
	l := liveListing(t)
	original := l.EndAt

	assert.False(t, l.ExtendTo(original.Add(-time.Minute)))
	assert.Equal(t, original, l.EndAt)

	assert.True(t, l.ExtendTo(original.Add(5*time.Minute)))
	assert.Equal(t, original.Add(5*time.Minute), l.EndAt)
}

func TestListing_BuyNow(t *testing.T) {
	l := liveListing(t)
	assert.False(t, l.BuyNowAvailable())

	buyNow := money(t, 500000)
	l.BuyNowPrice = &buyNow
	assert.True(t, l.BuyNowAvailable())

	t.Run("unavailable after first bid", func(t *testing.T) {
		withBid := liveListing(t)
		withBid.BuyNowPrice = &buyNow
		require.NoError(t, withBid.ApplyBid(money(t, 105000)))

		err := withBid.AcceptBuyNow(uuid.New())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeState))
	})

	t.Run("finishes listing at buy-now price", func(t *testing.T) {
		buyer := uuid.New()
		require.NoError(t, l.AcceptBuyNow(buyer))
		assert.Equal(t, listing.StatusFinished, l.Status)
		assert.Equal(t, int64(500000), l.CurrentPrice.MinorUnits())
		assert.Equal(t, buyer, *l.WinnerID)
	})
}

func TestListing_ReserveMet(t *testing.T) {
	l := liveListing(t)
	assert.True(t, l.ReserveMet(), "no reserve always sells")

	reserve := money(t, 200000)
	l.ReservePrice = &reserve
	assert.False(t, l.ReserveMet())

	require.NoError(t, l.ApplyBid(money(t, 200000)))
	assert.True(t, l.ReserveMet())
}
