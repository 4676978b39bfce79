package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

// bidRepository implements bid reads using PostgreSQL. Bid inserts go
// through the listing repository's AdmitBid so the price update and the bid
// row commit in one transaction.
type bidRepository struct {
	db *pgxpool.Pool
}

// NewBidRepository creates a new bid repository
func NewBidRepository(db *pgxpool.Pool) *bidRepository {
	return &bidRepository{db: db}
}

const bidColumns = `id, listing_id, bidder_id, amount, currency, source, valid, placed_at, created_at`

// GetByID retrieves a bid by ID
func (r *bidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`

	b, err := scanBid(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return b, nil
}

// ListByListing returns all bids for a listing ordered by placement time
func (r *bidRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*bid.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE listing_id = $1
		ORDER BY placed_at ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return bids, nil
}

// GetHighestValid returns the highest valid bid for a listing, or nil when
// the listing has none
func (r *bidRepository) GetHighestValid(ctx context.Context, listingID uuid.UUID) (*bid.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE listing_id = $1 AND valid
		ORDER BY amount DESC, placed_at ASC
		LIMIT 1
	`

	b, err := scanBid(r.db.QueryRow(ctx, query, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}
	return b, nil
}

// scanBid converts one row into a Bid
func scanBid(row pgx.Row) (*bid.Bid, error) {
	var (
		b                   bid.Bid
		amount              int64
		currency, sourceStr string
	)

	err := row.Scan(&b.ID, &b.ListingID, &b.BidderID, &amount, &currency, &sourceStr, &b.Valid, &b.PlacedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	b.Source = bid.ParseSource(sourceStr)
	if b.Amount, err = values.NewMoney(amount, currency); err != nil {
		return nil, err
	}
	return &b, nil
}
