package bidding

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/telemetry"
)

var tracer = telemetry.Tracer("service.bidding")

// Config holds the tunables of the admission engine
type Config struct {
	// AntiSnipeWindow is the trailing window within which an admitted bid
	// pushes the end time out to now + window.
	AntiSnipeWindow time.Duration
	// MaxTotalDuration bounds cumulative anti-snipe extension: the end time
	// never moves past startAt + MaxTotalDuration.
	MaxTotalDuration time.Duration
	// MaxAdmissionRetries bounds CAS retries before ConcurrencyError.
	MaxAdmissionRetries int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		AntiSnipeWindow:     5 * time.Minute,
		MaxTotalDuration:    24 * time.Hour,
		MaxAdmissionRetries: 3,
	}
}

// engine implements Service. It is the serialization point for all listing
// price mutations: a striped per-listing mutex serializes writers within the
// process, and the repository's conditioned update guards against writers in
// other processes.
type engine struct {
	listings  ListingRepository
	bids      BidRepository
	mandates  MandateRepository
	deposits  DepositChecker
	publisher EventPublisher
	metrics   MetricsCollector
	logger    *zap.Logger
	clock     Clock
	cfg       Config

	// locks is a fixed stripe array so a long-lived process never
	// accumulates per-listing state for finished auctions. Two listings
	// sharing a stripe serialize against each other, which is safe,
	// merely occasionally slower.
	locks [lockStripes]sync.Mutex
}

const lockStripes = 256

// NewService creates a new bidding engine
func NewService(
	listings ListingRepository,
	bids BidRepository,
	mandates MandateRepository,
	deposits DepositChecker,
	publisher EventPublisher,
	metrics MetricsCollector,
	logger *zap.Logger,
	cfg Config,
) Service {
	if cfg.MaxAdmissionRetries <= 0 {
		cfg.MaxAdmissionRetries = DefaultConfig().MaxAdmissionRetries
	}
	if cfg.AntiSnipeWindow <= 0 {
		cfg.AntiSnipeWindow = DefaultConfig().AntiSnipeWindow
	}
	if cfg.MaxTotalDuration <= 0 {
		cfg.MaxTotalDuration = DefaultConfig().MaxTotalDuration
	}

	return &engine{
		listings:  listings,
		bids:      bids,
		mandates:  mandates,
		deposits:  deposits,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		clock:     RealClock{},
		cfg:       cfg,
	}
}

// lockFor maps one listing onto its stripe mutex.
func (e *engine) lockFor(listingID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(listingID[:])
	return &e.locks[h.Sum32()%lockStripes]
}

// PlaceBid admits or rejects a manual bid, then resolves any standing
// autobid mandates the new price outbids.
func (e *engine) PlaceBid(ctx context.Context, req *PlaceBidRequest) (*bid.Bid, error) {
	if req.ListingID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_LISTING_ID", "listing ID is required")
	}
	if req.BidderID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_BIDDER_ID", "bidder ID is required")
	}
	if !req.Amount.IsPositive() {
		return nil, errors.NewValidationError("INVALID_BID_AMOUNT", "bid amount must be positive")
	}

	ctx, span := telemetry.StartListingSpan(ctx, tracer, "bidding.place_bid", req.ListingID.String())
	defer span.End()

	start := e.clock.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordAdmissionDuration(ctx, e.clock.Now().Sub(start))
		}
	}()

	lock := e.lockFor(req.ListingID)
	lock.Lock()
	defer lock.Unlock()

	admitted, err := e.admit(ctx, req.ListingID, req.BidderID, req.Amount, bid.SourceManual)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordBidRejected(ctx, rejectionReason(err))
		}
		return nil, err
	}

	// Proxy resolution is a post-admission side effect: its failures never
	// invalidate the already-admitted bid.
	e.resolveAutobids(ctx, req.ListingID, admitted)

	return admitted, nil
}

// admit runs the validation chain and the atomic price update for one bid.
// The caller must hold the listing lock.
func (e *engine) admit(ctx context.Context, listingID, bidderID uuid.UUID, amount values.Money, source bid.Source) (*bid.Bid, error) {
	for attempt := 0; attempt < e.cfg.MaxAdmissionRetries; attempt++ {
		l, err := e.listings.GetByID(ctx, listingID)
		if err != nil {
			return nil, err
		}

		now := e.clock.Now()

		// 1. Listing must be live and inside its window.
		if !l.IsBiddable(now) {
			return nil, errors.NewStateError("LISTING_NOT_LIVE",
				fmt.Sprintf("listing is not open for bidding (status %s)", l.Status))
		}

		// 2. Deposit gate, answered from committed state on every attempt.
		hasHold, err := e.deposits.HasActiveHold(ctx, bidderID, listingID)
		if err != nil {
			return nil, errors.NewInternalError("failed to check deposit hold").WithCause(err)
		}
		if !hasHold {
			return nil, errors.NewAuthorizationError("NO_DEPOSIT_HOLD",
				"an active deposit hold is required before bidding on this listing")
		}

		// 3. At least one full step above the current price.
		minNext := l.MinimumNextBid()
		if amount.Compare(minNext) < 0 {
			return nil, errors.NewValidationError("BID_TOO_LOW",
				fmt.Sprintf("bid must be at least %s", minNext)).
				WithDetails(map[string]interface{}{"min_next_bid": minNext.MinorUnits()})
		}

		// 4. Aligned to the increment grid.
		increment, _ := amount.Sub(l.CurrentPrice)
		if increment.MinorUnits()%l.MinBidStep.MinorUnits() != 0 {
			return nil, errors.NewValidationError("BID_MISALIGNED",
				fmt.Sprintf("bid must be a multiple of %s above the current price", l.MinBidStep))
		}

		newEnd, extended := e.extendedEnd(l, now)

		newBid := bid.NewBid(listingID, bidderID, amount, source, now)
		ok, err := e.listings.AdmitBid(ctx, listingID, l.CurrentPrice, newBid, newEnd)
		if err != nil {
			return nil, errors.NewInternalError("failed to commit bid").WithCause(err)
		}
		if !ok {
			// Another writer moved the price; re-read and re-validate.
			if e.metrics != nil {
				e.metrics.RecordAdmissionRetry(ctx)
			}
			continue
		}

		if e.metrics != nil {
			e.metrics.RecordBidAdmitted(ctx, newBid)
		}
		if e.publisher != nil {
			e.publisher.PublishBidPlaced(ctx, newBid, amount)
			if extended {
				if e.metrics != nil {
					e.metrics.RecordAuctionExtended(ctx)
				}
				e.publisher.PublishAuctionExtended(ctx, listingID, newEnd)
			}
		}

		return newBid, nil
	}

	return nil, errors.NewConcurrencyError("listing is under heavy contention, try again")
}

// BuyNow purchases a live, zero-bid listing outright at its buy-now price
func (e *engine) BuyNow(ctx context.Context, listingID, buyerID uuid.UUID) (*listing.Listing, error) {
	if listingID == uuid.Nil || buyerID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ID", "listing ID and buyer ID are required")
	}

	ctx, span := telemetry.StartListingSpan(ctx, tracer, "bidding.buy_now", listingID.String())
	defer span.End()

	lock := e.lockFor(listingID)
	lock.Lock()
	defer lock.Unlock()

	l, err := e.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if !l.IsBiddable(e.clock.Now()) {
		return nil, errors.NewStateError("LISTING_NOT_LIVE",
			fmt.Sprintf("listing is not open for purchase (status %s)", l.Status))
	}
	if l.BuyNowPrice == nil {
		return nil, errors.NewStateError("NO_BUY_NOW_PRICE", "listing has no buy-now price")
	}
	if l.BidCount > 0 {
		return nil, errors.NewStateError("BUY_NOW_UNAVAILABLE",
			"buy-now is permanently unavailable once a bid has been admitted")
	}

	hasHold, err := e.deposits.HasActiveHold(ctx, buyerID, listingID)
	if err != nil {
		return nil, errors.NewInternalError("failed to check deposit hold").WithCause(err)
	}
	if !hasHold {
		return nil, errors.NewAuthorizationError("NO_DEPOSIT_HOLD",
			"an active deposit hold is required before buying this listing")
	}

	ok, err := e.listings.FinishBuyNow(ctx, listingID, buyerID, *l.BuyNowPrice)
	if err != nil {
		return nil, errors.NewInternalError("failed to finish listing").WithCause(err)
	}
	if !ok {
		// A bid or another purchase landed between the read and the write.
		return nil, errors.NewStateError("BUY_NOW_UNAVAILABLE",
			"buy-now is no longer available for this listing")
	}

	finished, err := e.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if e.publisher != nil {
		e.publisher.PublishAuctionFinished(ctx, finished)
	}

	return finished, nil
}

// GetBidsForListing returns all recorded bids for a listing
func (e *engine) GetBidsForListing(ctx context.Context, listingID uuid.UUID) ([]*bid.Bid, error) {
	bids, err := e.bids.ListByListing(ctx, listingID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list bids").WithCause(err)
	}
	return bids, nil
}

// rejectionReason maps an admission error to a metrics label
func rejectionReason(err error) string {
	switch {
	case errors.IsType(err, errors.ErrorTypeState):
		return "state"
	case errors.IsType(err, errors.ErrorTypeAuthorization):
		return "no_deposit"
	case errors.IsType(err, errors.ErrorTypeValidation):
		return "validation"
	case errors.IsType(err, errors.ErrorTypeConcurrency):
		return "contention"
	default:
		return "internal"
	}
}
