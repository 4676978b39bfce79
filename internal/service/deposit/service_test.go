package deposit_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	depositdomain "github.com/driveline/auto-auction-backend/internal/domain/deposit"
	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
	"github.com/driveline/auto-auction-backend/internal/service/deposit"
	"github.com/driveline/auto-auction-backend/internal/testutil"
	"github.com/driveline/auto-auction-backend/internal/testutil/fixtures"
	"github.com/driveline/auto-auction-backend/internal/testutil/mocks"
)

func usd(minor int64) values.Money {
	return values.MustNewMoney(minor, "USD")
}

type ledgerFixture struct {
	svc      deposit.Service
	repo     *mocks.DepositStore
	listings *mocks.ListingStore
	provider *mocks.FakePaymentProvider
	events   *mocks.CapturingPublisher
	metrics  *mocks.RecordingMetrics
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	f := &ledgerFixture{
		repo:     mocks.NewDepositStore(),
		listings: mocks.NewListingStore(nil),
		provider: mocks.NewFakePaymentProvider(),
		events:   mocks.NewCapturingPublisher(),
		metrics:  mocks.NewRecordingMetrics(),
	}
	f.svc = deposit.NewService(f.repo, f.listings, f.provider, f.events, f.metrics, zaptest.NewLogger(t))
	return f
}

func (f *ledgerFixture) seedLiveListing() *listing.Listing {
	l := fixtures.NewListingBuilder().Build()
	f.listings.Put(l)
	return l
}

func TestPlaceHold_CreatesHold(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	user := uuid.New()

	d, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID:    user,
		ListingID: l.ID,
		Amount:    usd(50_000),
	})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, depositdomain.StatusHold, d.Status)
	assert.Equal(t, 1, f.provider.AuthorizedCount())
	assert.Equal(t, 1, f.metrics.Holds)

	has, err := f.svc.HasActiveHold(ctx, user, l.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPlaceHold_IdempotentForActiveHold(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	user := uuid.New()

	first, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	second, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	// The retry got the original hold back; no second authorization.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.provider.AuthorizedCount())
}

func TestPlaceHold_RejectsTerminalListing(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)

	for _, status := range []listing.Status{listing.StatusFinished, listing.StatusCancelled} {
		l := fixtures.NewListingBuilder().WithStatus(status).Build()
		f.listings.Put(l)

		_, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
			UserID: uuid.New(), ListingID: l.ID, Amount: usd(50_000),
		})
		require.Error(t, err)
		assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeState))
	}
}

func TestPlaceHold_PaymentFailureDoesNotGrantEligibility(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	user := uuid.New()

	f.provider.SetAuthorizeErr(errors.New("gateway timeout"))

	_, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeExternal))
	assert.Equal(t, 1, f.metrics.PaymentFailures["authorize"])

	// The failed deposit never satisfies the bidding gate.
	has, err := f.svc.HasActiveHold(ctx, user, l.ID)
	require.NoError(t, err)
	assert.False(t, has)

	// The failure is recorded, not erased.
	d, err := f.repo.GetActiveHold(ctx, user, l.ID)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRelease_VoidsHold(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	user := uuid.New()

	d, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Release(ctx, d.ID, user))

	has, err := f.svc.HasActiveHold(ctx, user, l.ID)
	require.NoError(t, err)
	assert.False(t, has)

	updated, err := f.repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, depositdomain.StatusReleased, updated.Status)
	assert.Len(t, f.provider.Released, 1)
	assert.Equal(t, 1, f.metrics.Releases)
}

func TestRelease_RefusedForNonOwner(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	owner := uuid.New()
	stranger := uuid.New()

	d, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: owner, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	err = f.svc.Release(ctx, d.ID, stranger)
	require.Error(t, err)
	var appErr *domainErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_DEPOSIT_OWNER", appErr.Code)

	// The hold still backs the owner's bids.
	has, err := f.svc.HasActiveHold(ctx, owner, l.ID)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Empty(t, f.provider.Released)
}

func TestRelease_WinnerDepositBlocked(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	user := uuid.New()

	l := fixtures.NewListingBuilder().Build()
	f.listings.Put(l)

	d, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	// The user wins the auction.
	won := fixtures.NewListingBuilder().
		WithID(l.ID).
		WithStatus(listing.StatusFinished).
		WithWinner(user).
		Build()
	f.listings.Put(won)

	err = f.svc.Release(ctx, d.ID, user)
	require.Error(t, err)
	var appErr *domainErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "WINNER_DEPOSIT", appErr.Code)

	// The hold survives for settlement.
	has, err := f.svc.HasActiveHold(ctx, user, l.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRelease_OnlyFromHold(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	user := uuid.New()

	d, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Release(ctx, d.ID, user))

	err = f.svc.Release(ctx, d.ID, user)
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeState))
}

func TestCapture_SettlesHold(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	user := uuid.New()

	d, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Capture(ctx, d.ID))

	updated, err := f.repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, depositdomain.StatusCaptured, updated.Status)
	assert.Len(t, f.provider.Captures, 1)
	assert.Len(t, f.events.Captured, 1)
	assert.Equal(t, 1, f.metrics.Captures)

	has, err := f.svc.HasActiveHold(ctx, user, l.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCapture_ProviderFailureDoesNotRevertStatus(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)
	l := f.seedLiveListing()
	user := uuid.New()

	d, err := f.svc.PlaceHold(ctx, &deposit.PlaceHoldRequest{
		UserID: user, ListingID: l.ID, Amount: usd(50_000),
	})
	require.NoError(t, err)

	f.provider.CaptureErr = errors.New("gateway timeout")

	// The local transition commits; settlement is retried out-of-band.
	require.NoError(t, f.svc.Capture(ctx, d.ID))

	updated, err := f.repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, depositdomain.StatusCaptured, updated.Status)
}

func TestHasActiveHold_UnknownPair(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := testutil.TestContext(t)

	has, err := f.svc.HasActiveHold(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, has)
}
