package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driveline/auto-auction-backend/internal/domain/bid"
	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
)

type mandateRepository struct {
	db *pgxpool.Pool
}

// NewMandateRepository creates a new autobid mandate repository
func NewMandateRepository(db *pgxpool.Pool) *mandateRepository {
	return &mandateRepository{db: db}
}

const mandateColumns = `id, listing_id, user_id, ceiling, currency, active, created_at, updated_at`

// Create persists a new mandate. A partial unique index on
// (user_id, listing_id) WHERE active enforces one active mandate per pair.
func (r *mandateRepository) Create(ctx context.Context, m *bid.AutobidMandate) error {
	query := `
		INSERT INTO autobid_mandates (` + mandateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		m.ID, m.ListingID, m.UserID,
		m.Ceiling.MinorUnits(), m.Ceiling.Currency(),
		m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domainErrors.NewConflictError("an active autobid already exists for this listing")
		}
		return fmt.Errorf("failed to create mandate: %w", err)
	}
	return nil
}

// Update persists mandate state changes
func (r *mandateRepository) Update(ctx context.Context, m *bid.AutobidMandate) error {
	query := `
		UPDATE autobid_mandates
		SET ceiling = $2, active = $3, updated_at = $4
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, m.ID, m.Ceiling.MinorUnits(), m.Active, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update mandate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NewNotFoundError("mandate")
	}
	return nil
}

// GetActiveForListing returns all active mandates for a listing ordered by
// creation time, earliest first
func (r *mandateRepository) GetActiveForListing(ctx context.Context, listingID uuid.UUID) ([]*bid.AutobidMandate, error) {
	query := `
		SELECT ` + mandateColumns + `
		FROM autobid_mandates
		WHERE listing_id = $1 AND active
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mandates: %w", err)
	}
	defer rows.Close()

	var mandates []*bid.AutobidMandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mandate: %w", err)
		}
		mandates = append(mandates, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return mandates, nil
}

// GetActiveForUser returns the user's active mandate for a listing, or nil
// when none exists
func (r *mandateRepository) GetActiveForUser(ctx context.Context, listingID, userID uuid.UUID) (*bid.AutobidMandate, error) {
	query := `
		SELECT ` + mandateColumns + `
		FROM autobid_mandates
		WHERE listing_id = $1 AND user_id = $2 AND active
	`

	m, err := scanMandate(r.db.QueryRow(ctx, query, listingID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mandate: %w", err)
	}
	return m, nil
}

func scanMandate(row pgx.Row) (*bid.AutobidMandate, error) {
	var (
		m        bid.AutobidMandate
		ceiling  int64
		currency string
	)

	err := row.Scan(&m.ID, &m.ListingID, &m.UserID, &ceiling, &currency, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if m.Ceiling, err = values.NewMoney(ceiling, currency); err != nil {
		return nil, err
	}
	return &m, nil
}
