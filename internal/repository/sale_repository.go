package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
)

// SaleRepository gives the disposal engine its narrow window onto asset sale
// records: existence checks at workflow creation and the completion flip when
// a disposal-for-sale workflow finalizes. The sale module owns everything else.
type SaleRepository struct {
	db *database.DB
}

// NewSaleRepository creates a new SaleRepository.
func NewSaleRepository(db *database.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Exists reports whether an open sale record exists for the organization.
func (r *SaleRepository) Exists(ctx context.Context, q database.Querier, orgID, saleID string) (bool, error) {
	query := `
		SELECT 1
		FROM asset_sales
		WHERE org_id = $1 AND id = $2
		  AND status <> 'completed'
	`

	var one int
	err := q.QueryRow(ctx, query, orgID, saleID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check sale record")
	}
	return true, nil
}

// Complete flips a sale record to completed.
func (r *SaleRepository) Complete(ctx context.Context, q database.Querier, orgID, saleID, actorID string) error {
	query := `
		UPDATE asset_sales
		SET status       = 'completed',
		    completed_by = $3,
		    completed_at = NOW(),
		    updated_at   = NOW()
		WHERE org_id = $1 AND id = $2
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, orgID, saleID, actorID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("asset_sale", saleID)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to complete sale record")
	}
	return nil
}
