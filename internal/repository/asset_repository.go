package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
)

// AssetRepository reads asset registry rows and applies the narrow set of
// writes the disposal engine is allowed: status flips, group membership, and
// assignment close-out. All mutating methods take the caller's transaction.
type AssetRepository struct {
	db *database.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *database.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

const assetColumns = `
	id, org_id, branch_id, asset_type, name, status, group_id,
	created_at, updated_at`

// GetForUpdate loads and row-locks the given assets within q. Missing IDs
// surface as a not-found error so a disposal can never silently skip an asset.
func (r *AssetRepository) GetForUpdate(ctx context.Context, q database.Querier, orgID string, ids []string) ([]*Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets
		WHERE org_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := q.Query(ctx, query, orgID, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to lock assets")
	}
	defer rows.Close()

	assets, err := r.scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(assets) != len(ids) {
		seen := make(map[string]struct{}, len(assets))
		for _, a := range assets {
			seen[a.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				return nil, apperrors.NotFound("asset", id)
			}
		}
	}
	return assets, nil
}

// ListByGroupForUpdate loads and row-locks every asset belonging to a group.
func (r *AssetRepository) ListByGroupForUpdate(ctx context.Context, q database.Querier, orgID, groupID string) ([]*Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets
		WHERE org_id = $1 AND group_id = $2
		ORDER BY id
		FOR UPDATE
	`

	rows, err := q.Query(ctx, query, orgID, groupID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to lock group assets")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListByIDs loads assets without locking, for read models.
func (r *AssetRepository) ListByIDs(ctx context.Context, q database.Querier, orgID string, ids []string) ([]*Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets
		WHERE org_id = $1 AND id = ANY($2)
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, orgID, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list assets")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// MarkDisposed flips asset status to disposed.
func (r *AssetRepository) MarkDisposed(ctx context.Context, q database.Querier, orgID string, ids []string) error {
	query := `
		UPDATE assets
		SET status     = $3,
		    updated_at = NOW()
		WHERE org_id = $1 AND id = ANY($2)
	`

	tag, err := q.Exec(ctx, query, orgID, ids, AssetDisposed)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to mark assets disposed")
	}
	if int(tag.RowsAffected()) != len(ids) {
		return apperrors.Newf(apperrors.ErrCodeInternal,
			"disposed %d of %d assets", tag.RowsAffected(), len(ids))
	}
	return nil
}

// ClearGroup detaches the given assets from whatever group they reference.
func (r *AssetRepository) ClearGroup(ctx context.Context, q database.Querier, orgID string, ids []string) error {
	query := `
		UPDATE assets
		SET group_id   = NULL,
		    updated_at = NOW()
		WHERE org_id = $1 AND id = ANY($2)
	`

	_, err := q.Exec(ctx, query, orgID, ids)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to clear asset group")
	}
	return nil
}

// ClearGroupRefs detaches every asset still referencing groupID. Used during
// group cleanup after disposal.
func (r *AssetRepository) ClearGroupRefs(ctx context.Context, q database.Querier, orgID, groupID string) error {
	query := `
		UPDATE assets
		SET group_id   = NULL,
		    updated_at = NOW()
		WHERE org_id = $1 AND group_id = $2
	`

	_, err := q.Exec(ctx, query, orgID, groupID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to clear group references")
	}
	return nil
}

// AssignGroup points the given assets at a group.
func (r *AssetRepository) AssignGroup(ctx context.Context, q database.Querier, orgID string, ids []string, groupID string) error {
	query := `
		UPDATE assets
		SET group_id   = $3,
		    updated_at = NOW()
		WHERE org_id = $1 AND id = ANY($2)
	`

	_, err := q.Exec(ctx, query, orgID, ids, groupID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to assign asset group")
	}
	return nil
}

// CloseAssignments closes any active assignment rows referencing the assets.
func (r *AssetRepository) CloseAssignments(ctx context.Context, q database.Querier, ids []string) error {
	query := `
		UPDATE asset_assignments
		SET status     = 'closed',
		    closed_at  = NOW(),
		    updated_at = NOW()
		WHERE asset_id = ANY($1)
		  AND status = 'active'
	`

	_, err := q.Exec(ctx, query, ids)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to close asset assignments")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AssetRepository) scanRows(rows pgx.Rows) ([]*Asset, error) {
	var assets []*Asset
	for rows.Next() {
		a := &Asset{}
		err := rows.Scan(
			&a.ID,
			&a.OrgID,
			&a.BranchID,
			&a.AssetType,
			&a.Name,
			&a.Status,
			&a.GroupID,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan asset")
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
