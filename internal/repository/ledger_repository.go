package repository

import (
	"context"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
)

// LedgerRepository appends and reads the immutable disposal ledger. The table
// has a delete-prevention trigger, so append and read are the only operations
// exposed.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts one ledger entry.
func (r *LedgerRepository) Append(ctx context.Context, q database.Querier, entry *DisposalLogEntry) error {
	query := `
		INSERT INTO asset_disposal_log
		    (asset_id, group_id, org_id, workflow_id, disposed_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, disposed_at
	`

	err := q.QueryRow(ctx, query,
		entry.AssetID,
		entry.GroupID,
		entry.OrgID,
		entry.WorkflowID,
		entry.DisposedBy,
		entry.Notes,
	).Scan(&entry.ID, &entry.DisposedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append disposal log entry")
	}
	return nil
}

// ListByGroup returns the ledger entries written under a group identity,
// oldest first.
func (r *LedgerRepository) ListByGroup(ctx context.Context, q database.Querier, orgID, groupID string) ([]*DisposalLogEntry, error) {
	query := `
		SELECT id, asset_id, group_id, org_id, workflow_id,
		       disposed_by, notes, disposed_at
		FROM asset_disposal_log
		WHERE org_id = $1 AND group_id = $2
		ORDER BY disposed_at ASC
	`

	rows, err := q.Query(ctx, query, orgID, groupID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list disposal log")
	}
	defer rows.Close()

	var entries []*DisposalLogEntry
	for rows.Next() {
		e := &DisposalLogEntry{}
		err := rows.Scan(
			&e.ID,
			&e.AssetID,
			&e.GroupID,
			&e.OrgID,
			&e.WorkflowID,
			&e.DisposedBy,
			&e.Notes,
			&e.DisposedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan disposal log entry")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
