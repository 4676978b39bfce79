package bidding

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/testutil"
)

func TestRegisterAutobid_CreatesMandate(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	user := uuid.New()
	f.deposits.Grant(user, l.ID)

	m, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID,
		UserID:    user,
		Ceiling:   usd(150_000),
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Active)
	assert.Equal(t, int64(150_000), m.Ceiling.MinorUnits())

	// No one was outbid, so the mandate stays dormant.
	assert.Equal(t, 0, f.bids.Count())
}

func TestRegisterAutobid_RequiresDepositHold(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID,
		UserID:    uuid.New(),
		Ceiling:   usd(150_000),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthorization))
}

func TestRegisterAutobid_RejectsSecondActiveMandate(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	user := uuid.New()
	f.deposits.Grant(user, l.ID)

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: user, Ceiling: usd(150_000),
	})
	require.NoError(t, err)

	_, err = f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: user, Ceiling: usd(200_000),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
}

func TestRegisterAutobid_RejectsCeilingBelowCurrentPrice(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	user := uuid.New()
	f.deposits.Grant(user, l.ID)

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID,
		UserID:    user,
		Ceiling:   usd(90_000),
	})
	require.Error(t, err)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CEILING_TOO_LOW", appErr.Code)
}

func TestRegisterAutobid_RespondsWhenAnotherBidderLeads(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	human := uuid.New()
	proxy := uuid.New()
	f.deposits.Grant(human, l.ID)
	f.deposits.Grant(proxy, l.ID)

	_, err := f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID, BidderID: human, Amount: usd(105_000),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: proxy, Ceiling: usd(150_000),
	})
	require.NoError(t, err)

	// The fresh mandate immediately takes the lead at one step over.
	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(110_000), updated.CurrentPrice.MinorUnits())

	highest, err := f.bids.GetHighestValid(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, highest)
	assert.Equal(t, proxy, highest.BidderID)
	assert.Equal(t, bid.SourceAutobid, highest.Source)
}

func TestAutobid_RespondsToManualBid(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	human := uuid.New()
	proxy := uuid.New()
	f.deposits.Grant(human, l.ID)
	f.deposits.Grant(proxy, l.ID)

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: proxy, Ceiling: usd(150_000),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID, BidderID: human, Amount: usd(105_000),
	})
	require.NoError(t, err)

	// The mandate answers with the minimum amount that retakes the lead.
	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(110_000), updated.CurrentPrice.MinorUnits())
	assert.Equal(t, 2, updated.BidCount)

	highest, err := f.bids.GetHighestValid(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, proxy, highest.BidderID)
}

func TestAutobid_DuelSettlesAtSecondCeilingPlusStep(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	human := uuid.New()
	strong := uuid.New()
	weak := uuid.New()
	for _, u := range []uuid.UUID{human, strong, weak} {
		f.deposits.Grant(u, l.ID)
	}

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: strong, Ceiling: usd(150_000),
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: weak, Ceiling: usd(130_000),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID, BidderID: human, Amount: usd(105_000),
	})
	require.NoError(t, err)

	// The stronger mandate wins at one step over the weaker ceiling
	// rather than walking up step by step.
	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(135_000), updated.CurrentPrice.MinorUnits())

	highest, err := f.bids.GetHighestValid(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, strong, highest.BidderID)

	// The outbid mandate is exhausted and never reactivates.
	weakMandate, err := f.mandates.GetActiveForUser(ctx, l.ID, weak)
	require.NoError(t, err)
	assert.Nil(t, weakMandate)
}

func TestAutobid_EqualCeilingsEarlierMandateWins(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	human := uuid.New()
	first := uuid.New()
	second := uuid.New()
	for _, u := range []uuid.UUID{human, first, second} {
		f.deposits.Grant(u, l.ID)
	}

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: first, Ceiling: usd(120_000),
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: second, Ceiling: usd(120_000),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID, BidderID: human, Amount: usd(105_000),
	})
	require.NoError(t, err)

	// Both ceilings are identical, so the price is capped at the shared
	// ceiling and the earlier mandate holds the lead.
	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), updated.CurrentPrice.MinorUnits())

	highest, err := f.bids.GetHighestValid(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, first, highest.BidderID)
}

func TestAutobid_ExhaustedByHigherManualBid(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	human := uuid.New()
	proxy := uuid.New()
	f.deposits.Grant(human, l.ID)
	f.deposits.Grant(proxy, l.ID)

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: proxy, Ceiling: usd(110_000),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID, BidderID: human, Amount: usd(115_000),
	})
	require.NoError(t, err)

	// The committed price passed the ceiling, so the mandate is gone.
	m, err := f.mandates.GetActiveForUser(ctx, l.ID, proxy)
	require.NoError(t, err)
	assert.Nil(t, m)

	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(115_000), updated.CurrentPrice.MinorUnits())
}

func TestCancelAutobid(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	user := uuid.New()
	f.deposits.Grant(user, l.ID)

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: user, Ceiling: usd(150_000),
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelAutobid(ctx, l.ID, user))

	m, err := f.mandates.GetActiveForUser(ctx, l.ID, user)
	require.NoError(t, err)
	assert.Nil(t, m)

	// A second cancel has nothing left to deactivate.
	err = f.engine.CancelAutobid(ctx, l.ID, user)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestAutobid_FailureNeverInvalidatesAdmittedBid(t *testing.T) {
	f := newEngineFixture(t, DefaultConfig())
	ctx := testutil.TestContext(t)
	l := f.seedListing()
	human := uuid.New()
	proxy := uuid.New()
	f.deposits.Grant(human, l.ID)
	f.deposits.Grant(proxy, l.ID)

	_, err := f.engine.RegisterAutobid(ctx, &RegisterAutobidRequest{
		ListingID: l.ID, UserID: proxy, Ceiling: usd(150_000),
	})
	require.NoError(t, err)

	// The mandate holder loses their deposit before the next manual bid.
	f.deposits.Revoke(proxy, l.ID)

	f.clock.Advance(time.Second)
	placed, err := f.engine.PlaceBid(ctx, &PlaceBidRequest{
		ListingID: l.ID, BidderID: human, Amount: usd(105_000),
	})
	require.NoError(t, err)
	require.NotNil(t, placed)

	// The manual bid stands and the crippled mandate was deactivated.
	updated, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(105_000), updated.CurrentPrice.MinorUnits())

	m, err := f.mandates.GetActiveForUser(ctx, l.ID, proxy)
	require.NoError(t, err)
	assert.Nil(t, m)
}
