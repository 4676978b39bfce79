package bidding

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	"github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// RegisterAutobid creates a standing proxy-bid mandate. If another bidder
// currently leads the listing, the mandate responds immediately at the
// minimum amount needed to take the lead.
func (e *engine) RegisterAutobid(ctx context.Context, req *RegisterAutobidRequest) (*bid.AutobidMandate, error) {
	if req.ListingID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_LISTING_ID", "listing ID is required")
	}
	if req.UserID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user ID is required")
	}

	lock := e.lockFor(req.ListingID)
	lock.Lock()
	defer lock.Unlock()

	l, err := e.listings.GetByID(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if !l.IsBiddable(e.clock.Now()) {
		return nil, errors.NewStateError("LISTING_NOT_LIVE", "listing is not open for bidding")
	}

	hasHold, err := e.deposits.HasActiveHold(ctx, req.UserID, req.ListingID)
	if err != nil {
		return nil, errors.NewInternalError("failed to check deposit hold").WithCause(err)
	}
	if !hasHold {
		return nil, errors.NewAuthorizationError("NO_DEPOSIT_HOLD",
			"an active deposit hold is required before registering an autobid")
	}

	existing, err := e.mandates.GetActiveForUser(ctx, req.ListingID, req.UserID)
	if err != nil {
		return nil, errors.NewInternalError("failed to look up mandate").WithCause(err)
	}
	if existing != nil {
		return nil, errors.NewConflictError("an active autobid mandate already exists for this listing")
	}

	mandate, err := bid.NewAutobidMandate(req.ListingID, req.UserID, req.Ceiling, l.CurrentPrice)
	if err != nil {
		return nil, err
	}
	if err := e.mandates.Create(ctx, mandate); err != nil {
		return nil, errors.NewInternalError("failed to store mandate").WithCause(err)
	}

	leader, err := e.bids.GetHighestValid(ctx, req.ListingID)
	if err != nil {
		e.logger.Warn("autobid: leader lookup failed", zap.Error(err),
			zap.String("listing_id", req.ListingID.String()))
		return mandate, nil
	}
	if leader != nil && leader.BidderID != req.UserID {
		e.resolveAutobids(ctx, req.ListingID, leader)
	}

	return mandate, nil
}

// CancelAutobid deactivates the caller's mandate on a listing
func (e *engine) CancelAutobid(ctx context.Context, listingID, userID uuid.UUID) error {
	lock := e.lockFor(listingID)
	lock.Lock()
	defer lock.Unlock()

	mandate, err := e.mandates.GetActiveForUser(ctx, listingID, userID)
	if err != nil {
		return errors.NewInternalError("failed to look up mandate").WithCause(err)
	}
	if mandate == nil {
		return errors.NewNotFoundError("autobid mandate")
	}

	mandate.Deactivate()
	if err := e.mandates.Update(ctx, mandate); err != nil {
		return errors.NewInternalError("failed to update mandate").WithCause(err)
	}
	return nil
}

// resolveAutobids re-bids on behalf of standing mandates outbid by the
// triggering bid. Each mandate responds at most once per triggering event,
// which bounds mutual-outbidding to one round per distinct competing
// mandate. The caller must hold the listing lock.
func (e *engine) resolveAutobids(ctx context.Context, listingID uuid.UUID, trigger *bid.Bid) {
	responded := make(map[uuid.UUID]bool)
	leaderID := trigger.BidderID

	for {
		l, err := e.listings.GetByID(ctx, listingID)
		if err != nil {
			e.logger.Warn("autobid: listing read failed", zap.Error(err),
				zap.String("listing_id", listingID.String()))
			return
		}
		if !l.IsBiddable(e.clock.Now()) {
			return
		}

		active, err := e.mandates.GetActiveForListing(ctx, listingID)
		if err != nil {
			e.logger.Warn("autobid: mandate read failed", zap.Error(err),
				zap.String("listing_id", listingID.String()))
			return
		}

		var candidates []*bid.AutobidMandate
		for _, m := range active {
			if m.UserID == leaderID {
				continue
			}
			if !m.CanBeat(l.CurrentPrice, l.MinBidStep) {
				// The committed price passed this ceiling; the mandate
				// is exhausted and never reactivates.
				if l.CurrentPrice.Compare(m.Ceiling) > 0 {
					m.Deactivate()
					if err := e.mandates.Update(ctx, m); err != nil {
						e.logger.Warn("autobid: mandate deactivation failed",
							zap.Error(err), zap.String("mandate_id", m.ID.String()))
					}
				}
				continue
			}
			if responded[m.ID] {
				continue
			}
			candidates = append(candidates, m)
		}
		if len(candidates) == 0 {
			return
		}

		// Higher ceiling wins the round; the earliest mandate wins ties.
		sort.Slice(candidates, func(i, j int) bool {
			c := candidates[i].Ceiling.Compare(candidates[j].Ceiling)
			if c != 0 {
				return c > 0
			}
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
		winner := candidates[0]

		// The winner pays the minimum needed to beat both the committed
		// price and the runner-up mandate's ceiling.
		target, _ := l.CurrentPrice.Add(l.MinBidStep)
		if len(candidates) > 1 {
			runnerUp := candidates[1].Ceiling
			if runnerUp.Compare(target) >= 0 {
				target, _ = runnerUp.Add(l.MinBidStep)
			}
		}
		amount := alignToStep(target, l.CurrentPrice, l.MinBidStep, winner.Ceiling)

		responded[winner.ID] = true

		placed, err := e.admit(ctx, listingID, winner.UserID, amount, bid.SourceAutobid)
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeState) {
				return
			}
			if errors.IsType(err, errors.ErrorTypeAuthorization) {
				// Mandate holder lost their deposit hold; the mandate
				// cannot act again.
				winner.Deactivate()
				if uerr := e.mandates.Update(ctx, winner); uerr != nil {
					e.logger.Warn("autobid: mandate deactivation failed",
						zap.Error(uerr), zap.String("mandate_id", winner.ID.String()))
				}
			}
			e.logger.Warn("autobid: synthesized bid rejected", zap.Error(err),
				zap.String("listing_id", listingID.String()),
				zap.String("mandate_id", winner.ID.String()))
			continue
		}

		leaderID = placed.BidderID
	}
}

// alignToStep rounds target up to the increment grid anchored at current,
// then clamps down to the highest on-grid amount the ceiling allows. The
// caller guarantees ceiling >= current + step.
func alignToStep(target, current, step, ceiling values.Money) values.Money {
	stepUnits := step.MinorUnits()
	diff := target.MinorUnits() - current.MinorUnits()

	intervals := diff / stepUnits
	if diff%stepUnits != 0 {
		intervals++
	}
	if intervals < 1 {
		intervals = 1
	}

	amount := current.MinorUnits() + intervals*stepUnits
	if amount > ceiling.MinorUnits() {
		intervals = (ceiling.MinorUnits() - current.MinorUnits()) / stepUnits
		amount = current.MinorUnits() + intervals*stepUnits
	}

	m, _ := values.NewMoney(amount, current.Currency())
	return m
}
