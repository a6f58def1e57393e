package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
)

// SequenceRepository reads the disposal approval catalog: the per (org, asset
// type) ordered template of required approval steps. The catalog is read-only
// on the disposal critical path; the only write is the explicit administrative
// seed from the maintenance catalog.
type SequenceRepository struct {
	db *database.DB
}

// NewSequenceRepository creates a new SequenceRepository.
func NewSequenceRepository(db *database.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// ListForType returns the ordered approval steps configured for an asset type.
// An empty result means the catalog is not configured; the caller decides
// whether that is a fault.
func (r *SequenceRepository) ListForType(ctx context.Context, q database.Querier, orgID, assetType string) ([]SequenceStep, error) {
	query := `
		SELECT step_number, required_role
		FROM scrap_sequences
		WHERE org_id = $1 AND asset_type = $2
		ORDER BY step_number ASC, required_role ASC
	`

	rows, err := q.Query(ctx, query, orgID, assetType)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list scrap sequences")
	}
	defer rows.Close()

	var steps []SequenceStep
	for rows.Next() {
		var s SequenceStep
		if err := rows.Scan(&s.StepNumber, &s.RequiredRole); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan scrap sequence")
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ApprovalRequired reports whether an asset type is subject to approval
// oversight. Defaults to true when the type is not flagged otherwise.
func (r *SequenceRepository) ApprovalRequired(ctx context.Context, q database.Querier, orgID, assetType string) (bool, error) {
	query := `
		SELECT requires_approval
		FROM asset_types
		WHERE org_id = $1 AND code = $2
	`

	var required bool
	err := q.QueryRow(ctx, query, orgID, assetType).Scan(&required)
	if err == pgx.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check approval requirement")
	}
	return required, nil
}

// SeedFromMaintenance copies the maintenance approval chain for an asset type
// into the disposal catalog. Fails with a conflict when the disposal catalog
// already has entries for the type; the seed never overwrites.
func (r *SequenceRepository) SeedFromMaintenance(ctx context.Context, q database.Querier, orgID, assetType string) (int, error) {
	existing, err := r.ListForType(ctx, q, orgID, assetType)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, apperrors.Conflict("scrap sequences already configured for asset type " + assetType)
	}

	query := `
		INSERT INTO scrap_sequences (org_id, asset_type, step_number, required_role)
		SELECT org_id, asset_type, step_number, required_role
		FROM maintenance_sequences
		WHERE org_id = $1 AND asset_type = $2
	`

	tag, err := q.Exec(ctx, query, orgID, assetType)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to seed scrap sequences")
	}
	return int(tag.RowsAffected()), nil
}
