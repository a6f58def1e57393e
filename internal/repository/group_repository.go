package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
)

// GroupRepository manages persisted asset groups and their membership rows.
// Virtual groups never touch this repository.
type GroupRepository struct {
	db *database.DB
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db *database.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetByID retrieves a group header scoped to an organization.
func (r *GroupRepository) GetByID(ctx context.Context, q database.Querier, orgID, id string) (*AssetGroup, error) {
	query := `
		SELECT id, org_id, branch_id, name, created_at
		FROM asset_groups
		WHERE org_id = $1 AND id = $2
	`

	g := &AssetGroup{}
	err := q.QueryRow(ctx, query, orgID, id).Scan(&g.ID, &g.OrgID, &g.BranchID, &g.Name, &g.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("asset_group", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get asset group")
	}
	return g, nil
}

// Create inserts a new group header.
func (r *GroupRepository) Create(ctx context.Context, q database.Querier, g *AssetGroup) error {
	query := `
		INSERT INTO asset_groups (org_id, branch_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query, g.OrgID, g.BranchID, g.Name).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create asset group")
	}
	return nil
}

// MemberIDs returns the asset IDs belonging to a group.
func (r *GroupRepository) MemberIDs(ctx context.Context, q database.Querier, groupID string) ([]string, error) {
	query := `
		SELECT asset_id
		FROM asset_group_members
		WHERE group_id = $1
		ORDER BY asset_id
	`

	rows, err := q.Query(ctx, query, groupID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list group members")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan group member")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddMembers inserts membership rows.
func (r *GroupRepository) AddMembers(ctx context.Context, q database.Querier, groupID string, assetIDs []string) error {
	query := `
		INSERT INTO asset_group_members (group_id, asset_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`

	_, err := q.Exec(ctx, query, groupID, assetIDs)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to add group members")
	}
	return nil
}

// RemoveMembers deletes membership rows for the given assets.
func (r *GroupRepository) RemoveMembers(ctx context.Context, q database.Querier, groupID string, assetIDs []string) error {
	query := `
		DELETE FROM asset_group_members
		WHERE group_id = $1 AND asset_id = ANY($2)
	`

	_, err := q.Exec(ctx, query, groupID, assetIDs)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to remove group members")
	}
	return nil
}

// DeleteIfEmpty removes the group header when no membership rows remain.
func (r *GroupRepository) DeleteIfEmpty(ctx context.Context, q database.Querier, groupID string) error {
	query := `
		DELETE FROM asset_groups g
		WHERE g.id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM asset_group_members m WHERE m.group_id = g.id
		  )
	`

	_, err := q.Exec(ctx, query, groupID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to delete empty group")
	}
	return nil
}
