package service

import (
	"context"

	"github.com/finipro/be-am-disposals/internal/database"
	"github.com/finipro/be-am-disposals/internal/repository"
)

// Disposal finalization. Runs inside the transaction that triggered it: the
// terminal approval, or workflow creation when the asset type needs no
// approval.

type finalizeParams struct {
	orgID      string
	group      repository.GroupRef
	assets     []*repository.Asset
	workflowID *string
	actorID    string
	notes      *string
	isSale     bool
	saleID     *string
}

// finalizeWorkflow finalizes a completed workflow: it re-locks the covered
// assets and disposes them under the workflow's group identity.
func (s *DisposalService) finalizeWorkflow(ctx context.Context, q database.Querier, wf *repository.Workflow, actor Actor, note *string) error {
	ids, err := s.workflows.AssetIDs(ctx, q, wf.ID)
	if err != nil {
		return err
	}
	assets, err := s.assets.GetForUpdate(ctx, q, wf.OrgID, ids)
	if err != nil {
		return err
	}
	return s.finalizeLocked(ctx, q, finalizeParams{
		orgID:      wf.OrgID,
		group:      wf.Group(),
		assets:     assets,
		workflowID: &wf.ID,
		actorID:    actor.UserID,
		notes:      note,
		isSale:     wf.IsSale,
		saleID:     wf.SaleID,
	})
}

// finalizeLocked disposes an already-locked asset set: one ledger entry per
// asset, status flip, assignment close-out, then group cleanup and sale
// completion. Group cleanup is cosmetic and runs under a savepoint so its
// failure never rolls back the disposal.
func (s *DisposalService) finalizeLocked(ctx context.Context, q database.Querier, p finalizeParams) error {
	ids := assetIDs(p.assets)

	for _, asset := range p.assets {
		entry := &repository.DisposalLogEntry{
			AssetID:    asset.ID,
			GroupID:    p.group.ID,
			OrgID:      p.orgID,
			WorkflowID: p.workflowID,
			DisposedBy: p.actorID,
			Notes:      p.notes,
		}
		if err := s.ledger.Append(ctx, q, entry); err != nil {
			return err
		}
	}

	if err := s.assets.MarkDisposed(ctx, q, p.orgID, ids); err != nil {
		return err
	}
	if err := s.assets.CloseAssignments(ctx, q, ids); err != nil {
		return err
	}

	if !p.group.Virtual {
		err := s.runner.WithSavepoint(ctx, q, func(sq database.Querier) error {
			if err := s.groups.RemoveMembers(ctx, sq, p.group.ID, ids); err != nil {
				return err
			}
			if err := s.assets.ClearGroupRefs(ctx, sq, p.orgID, p.group.ID); err != nil {
				return err
			}
			return s.groups.DeleteIfEmpty(ctx, sq, p.group.ID)
		})
		if err != nil {
			// Leftover membership rows are an eyesore, not a correctness
			// problem. The disposal itself stands.
			s.log.Warn().Err(err).
				Str("group_id", p.group.ID).
				Msg("Group cleanup failed after disposal; leaving group state as-is")
		}
	}

	if p.isSale && p.saleID != nil {
		if err := s.sales.Complete(ctx, q, p.orgID, *p.saleID, p.actorID); err != nil {
			return err
		}
	}
	return nil
}
