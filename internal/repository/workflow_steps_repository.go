package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
)

// Step-instance operations of WorkflowRepository. Step creation happens in
// Create; everything here mutates existing instances inside the caller's
// transaction, under the header row lock.

const stepColumns = `
	id, workflow_id, org_id, step_number, required_role, status,
	acted_by, acted_at, action_notes, created_at, updated_at`

// LockAwaitingForRoles locks and returns the earliest awaiting step instance
// whose required role is held by the actor, or nil when none exists.
func (r *WorkflowRepository) LockAwaitingForRoles(ctx context.Context, q database.Querier, workflowID string, roles []string) (*WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM scrap_workflow_steps
		WHERE workflow_id = $1
		  AND status = 'awaiting_approval'
		  AND required_role = ANY($2)
		ORDER BY step_number ASC, created_at ASC
		LIMIT 1
		FOR UPDATE
	`

	step, err := r.scanStep(q.QueryRow(ctx, query, workflowID, roles))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to lock awaiting step")
	}
	return step, nil
}

// MarkStep records the outcome of an approval action on one instance.
func (r *WorkflowRepository) MarkStep(ctx context.Context, q database.Querier, stepID, status, actedBy string, notes *string) error {
	query := `
		UPDATE scrap_workflow_steps
		SET status       = $2,
		    acted_by     = $3,
		    acted_at     = NOW(),
		    action_notes = $4,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, stepID, status, actedBy, notes).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("workflow_step", stepID)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update workflow step")
	}
	return nil
}

// CountAwaiting returns how many instances across the workflow still await
// approval. Advancement is only decided when this reaches zero, in the same
// transaction as the approval that resolved the last instance; the header row
// lock makes the decision race-free.
func (r *WorkflowRepository) CountAwaiting(ctx context.Context, q database.Querier, workflowID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM scrap_workflow_steps
		WHERE workflow_id = $1
		  AND status = 'awaiting_approval'
	`

	var n int
	if err := q.QueryRow(ctx, query, workflowID).Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count awaiting steps")
	}
	return n, nil
}

// NextActionableStep returns the lowest step number at or after from that
// still has pending or rejected instances. A rejected instance is actionable
// again once the re-walked chain reaches it.
func (r *WorkflowRepository) NextActionableStep(ctx context.Context, q database.Querier, workflowID string, from int) (int, bool, error) {
	query := `
		SELECT MIN(step_number)
		FROM scrap_workflow_steps
		WHERE workflow_id = $1
		  AND step_number >= $2
		  AND status IN ('pending', 'rejected')
	`

	var next *int
	if err := q.QueryRow(ctx, query, workflowID, from).Scan(&next); err != nil {
		return 0, false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to find next step")
	}
	if next == nil {
		return 0, false, nil
	}
	return *next, true, nil
}

// ActivateStep flips every pending or rejected instance at a step number to
// awaiting approval, optionally carrying a note.
func (r *WorkflowRepository) ActivateStep(ctx context.Context, q database.Querier, workflowID string, stepNumber int, note *string) error {
	query := `
		UPDATE scrap_workflow_steps
		SET status       = 'awaiting_approval',
		    action_notes = COALESCE($3, action_notes),
		    updated_at   = NOW()
		WHERE workflow_id = $1
		  AND step_number = $2
		  AND status IN ('pending', 'rejected')
	`

	_, err := q.Exec(ctx, query, workflowID, stepNumber, note)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to activate workflow step")
	}
	return nil
}

// RewindAfter resets every instance at a later step number back to pending.
func (r *WorkflowRepository) RewindAfter(ctx context.Context, q database.Querier, workflowID string, stepNumber int) error {
	query := `
		UPDATE scrap_workflow_steps
		SET status     = 'pending',
		    acted_by   = NULL,
		    acted_at   = NULL,
		    updated_at = NOW()
		WHERE workflow_id = $1
		  AND step_number > $2
		  AND status <> 'pending'
	`

	_, err := q.Exec(ctx, query, workflowID, stepNumber)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to rewind workflow steps")
	}
	return nil
}

// ReopenBefore revokes every approved instance at an earlier step number,
// putting it back to awaiting approval so the chain is re-validated from the
// start.
func (r *WorkflowRepository) ReopenBefore(ctx context.Context, q database.Querier, workflowID string, stepNumber int) error {
	query := `
		UPDATE scrap_workflow_steps
		SET status     = 'awaiting_approval',
		    updated_at = NOW()
		WHERE workflow_id = $1
		  AND step_number < $2
		  AND status = 'approved'
	`

	_, err := q.Exec(ctx, query, workflowID, stepNumber)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to reopen workflow steps")
	}
	return nil
}

// ListSteps returns all instances of a workflow ordered by step number.
func (r *WorkflowRepository) ListSteps(ctx context.Context, q database.Querier, workflowID string) ([]*WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM scrap_workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_number ASC, required_role ASC
	`

	rows, err := q.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list workflow steps")
	}
	defer rows.Close()

	var steps []*WorkflowStep
	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan workflow step")
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type stepScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanStep(sc stepScanner) (*WorkflowStep, error) {
	s := &WorkflowStep{}
	err := sc.Scan(
		&s.ID,
		&s.WorkflowID,
		&s.OrgID,
		&s.StepNumber,
		&s.RequiredRole,
		&s.Status,
		&s.ActedBy,
		&s.ActedAt,
		&s.ActionNotes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
