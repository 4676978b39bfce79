package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/listing"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
	"github.com/driveline/auto-auction-backend/internal/infrastructure/telemetry"
)

// listingRepository implements listing storage using PostgreSQL. It backs
// both the admission-path interface of the bidding service and the
// lifecycle interface of the listing service.
type listingRepository struct {
	db *pgxpool.Pool
}

var repoTracer = telemetry.Tracer("infrastructure.repository")

// NewListingRepository creates a new listing repository
func NewListingRepository(db *pgxpool.Pool) *listingRepository {
	return &listingRepository{db: db}
}

const listingColumns = `
	id, vehicle_id, seller_id, status, currency,
	start_price, reserve_price, buy_now_price, current_price, min_bid_step,
	start_at, end_at, winner_id, bid_count, created_at, updated_at
`

// Create stores a new listing
func (r *listingRepository) Create(ctx context.Context, l *listing.Listing) error {
	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var reserve, buyNow *int64
	if l.ReservePrice != nil {
		v := l.ReservePrice.MinorUnits()
		reserve = &v
	}
	if l.BuyNowPrice != nil {
		v := l.BuyNowPrice.MinorUnits()
		buyNow = &v
	}

	_, err := r.db.Exec(ctx, query,
		l.ID, l.VehicleID, l.SellerID, l.Status.String(), l.CurrentPrice.Currency(),
		l.StartPrice.MinorUnits(), reserve, buyNow, l.CurrentPrice.MinorUnits(), l.MinBidStep.MinorUnits(),
		l.StartAt, l.EndAt, l.WinnerID, l.BidCount, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// GetByID retrieves a listing from committed state
func (r *listingRepository) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// Update persists listing fields outside the admission path
func (r *listingRepository) Update(ctx context.Context, l *listing.Listing) error {
	query := `
		UPDATE listings
		SET status = $2, winner_id = $3, end_at = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, l.ID, l.Status.String(), l.WinnerID, l.EndAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrListingNotFound
	}
	return nil
}

// AdmitBid commits the price update, end-time extension and bid insert as
// one transaction conditioned on the previously read price. The status and
// price conditions make a lost update impossible regardless of how many
// processes race on the listing.
func (r *listingRepository) AdmitBid(ctx context.Context, listingID uuid.UUID, expectedPrice values.Money, newBid *bid.Bid, newEndAt time.Time) (admitted bool, err error) {
	ctx, span := telemetry.StartDatabaseSpan(ctx, repoTracer, "admit_bid", "listings")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE listings
		SET current_price = $3,
		    end_at = GREATEST(end_at, $4),
		    bid_count = bid_count + 1,
		    updated_at = NOW()
		WHERE id = $1 AND current_price = $2 AND status = 'live'
	`, listingID, expectedPrice.MinorUnits(), newBid.Amount.MinorUnits(), newEndAt)
	if err != nil {
		return false, fmt.Errorf("failed to update price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bids (id, listing_id, bidder_id, amount, currency, source, valid, placed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, newBid.ID, newBid.ListingID, newBid.BidderID, newBid.Amount.MinorUnits(), newBid.Amount.Currency(),
		newBid.Source.String(), newBid.Valid, newBid.PlacedAt, newBid.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit bid: %w", err)
	}
	return true, nil
}

// FinishBuyNow atomically finishes a live, zero-bid listing at the buy-now price
func (r *listingRepository) FinishBuyNow(ctx context.Context, listingID, buyerID uuid.UUID, price values.Money) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE listings
		SET status = 'finished', current_price = $3, winner_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'live' AND bid_count = 0
	`, listingID, buyerID, price.MinorUnits())
	if err != nil {
		return false, fmt.Errorf("failed to finish listing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinishExpired atomically finishes a live listing whose end time has passed
func (r *listingRepository) FinishExpired(ctx context.Context, id uuid.UUID, winnerID *uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE listings
		SET status = 'finished', winner_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'live' AND end_at <= $3
	`, id, winnerID, now)
	if err != nil {
		return false, fmt.Errorf("failed to finish expired listing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListExpiredLive returns live listings whose end time has passed
func (r *listingRepository) ListExpiredLive(ctx context.Context, now time.Time, limit int) ([]*listing.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE status = 'live' AND end_at <= $1
		ORDER BY end_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired listings: %w", err)
	}
	defer rows.Close()

	var listings []*listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return listings, nil
}

// scanListing converts one row into a Listing
func scanListing(row pgx.Row) (*listing.Listing, error) {
	var (
		l                   listing.Listing
		statusStr, currency string
		startPrice, current int64
		minStep             int64
		reserve, buyNow     *int64
	)

	err := row.Scan(
		&l.ID, &l.VehicleID, &l.SellerID, &statusStr, &currency,
		&startPrice, &reserve, &buyNow, &current, &minStep,
		&l.StartAt, &l.EndAt, &l.WinnerID, &l.BidCount, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Status = listing.ParseStatus(statusStr)

	if l.StartPrice, err = values.NewMoney(startPrice, currency); err != nil {
		return nil, err
	}
	if l.CurrentPrice, err = values.NewMoney(current, currency); err != nil {
		return nil, err
	}
	if l.MinBidStep, err = values.NewMoney(minStep, currency); err != nil {
		return nil, err
	}
	if reserve != nil {
		m, err := values.NewMoney(*reserve, currency)
		if err != nil {
			return nil, err
		}
		l.ReservePrice = &m
	}
	if buyNow != nil {
		m, err := values.NewMoney(*buyNow, currency)
		if err != nil {
			return nil, err
		}
		l.BuyNowPrice = &m
	}

	return &l, nil
}
