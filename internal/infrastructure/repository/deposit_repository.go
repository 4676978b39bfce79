package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driveline/auto-auction-backend/internal/domain/deposit"
	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
	"github.com/driveline/auto-auction-backend/internal/domain/values"
	depositsvc "github.com/driveline/auto-auction-backend/internal/service/deposit"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type depositRepository struct {
	db *pgxpool.Pool
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *pgxpool.Pool) *depositRepository {
	return &depositRepository{db: db}
}

const depositColumns = `id, user_id, listing_id, amount, currency, status, created_at, updated_at`

// Create persists a new deposit. A partial unique index on
// (user_id, listing_id) WHERE status = 'hold' enforces the single active
// hold per pair, surfaced here as ErrDuplicateHold.
func (r *depositRepository) Create(ctx context.Context, d *deposit.Deposit) error {
	query := `
		INSERT INTO deposits (` + depositColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		d.ID, d.UserID, d.ListingID,
		d.Amount.MinorUnits(), d.Amount.Currency(),
		d.Status.String(), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return depositsvc.ErrDuplicateHold
		}
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}

// GetByID retrieves a deposit by ID
func (r *depositRepository) GetByID(ctx context.Context, id uuid.UUID) (*deposit.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE id = $1`

	d, err := scanDeposit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return d, nil
}

// GetActiveHold returns the user's held deposit for a listing, or nil when
// no hold exists
func (r *depositRepository) GetActiveHold(ctx context.Context, userID, listingID uuid.UUID) (*deposit.Deposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE user_id = $1 AND listing_id = $2 AND status = 'hold'
	`

	d, err := scanDeposit(r.db.QueryRow(ctx, query, userID, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active hold: %w", err)
	}
	return d, nil
}

// Update persists status changes
func (r *depositRepository) Update(ctx context.Context, d *deposit.Deposit) error {
	query := `
		UPDATE deposits
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, d.ID, d.Status.String(), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrDepositNotFound
	}
	return nil
}

func scanDeposit(row pgx.Row) (*deposit.Deposit, error) {
	var (
		d                   deposit.Deposit
		amount              int64
		currency, statusStr string
	)

	err := row.Scan(&d.ID, &d.UserID, &d.ListingID, &amount, &currency, &statusStr, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d.Status = deposit.ParseStatus(statusStr)
	if d.Amount, err = values.NewMoney(amount, currency); err != nil {
		return nil, err
	}
	return &d, nil
}
