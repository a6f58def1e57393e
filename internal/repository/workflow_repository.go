package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
)

// WorkflowRepository manages disposal workflow headers, their step instances
// and the asset set each workflow covers. Header + steps + asset links are
// always created together in the caller's transaction.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `
	id, org_id, group_id, group_is_virtual, branch_id, asset_type,
	is_sale, sale_id, status, current_step, created_by, notes,
	completed_at, created_at, updated_at`

// Create inserts a header, its step instances and the covered asset set.
func (r *WorkflowRepository) Create(ctx context.Context, q database.Querier, wf *Workflow, steps []*WorkflowStep, assetIDs []string) error {
	wfQuery := `
		INSERT INTO scrap_workflows
		    (org_id, group_id, group_is_virtual, branch_id, asset_type,
		     is_sale, sale_id, status, current_step, created_by, notes)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, wfQuery,
		wf.OrgID,
		wf.GroupID,
		wf.GroupIsVirtual,
		wf.BranchID,
		wf.AssetType,
		wf.IsSale,
		wf.SaleID,
		wf.Status,
		wf.CurrentStep,
		wf.CreatedBy,
		wf.Notes,
	).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create scrap workflow")
	}

	stepQuery := `
		INSERT INTO scrap_workflow_steps
		    (workflow_id, org_id, step_number, required_role, status, action_notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	for _, step := range steps {
		step.WorkflowID = wf.ID
		step.OrgID = wf.OrgID

		err := q.QueryRow(ctx, stepQuery,
			step.WorkflowID,
			step.OrgID,
			step.StepNumber,
			step.RequiredRole,
			step.Status,
			step.ActionNotes,
		).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create workflow step")
		}
	}

	linkQuery := `
		INSERT INTO scrap_workflow_assets (workflow_id, asset_id)
		SELECT $1, unnest($2::text[])
	`

	if _, err := q.Exec(ctx, linkQuery, wf.ID, assetIDs); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to link workflow assets")
	}
	return nil
}

// GetByID retrieves a header scoped to an organization.
func (r *WorkflowRepository) GetByID(ctx context.Context, q database.Querier, orgID, id string) (*Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM scrap_workflows
		WHERE org_id = $1 AND id = $2
	`

	wf, err := r.scanWorkflow(q.QueryRow(ctx, query, orgID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("scrap_workflow", id)
	}
	return wf, err
}

// GetForUpdate loads and row-locks a header. Every approve/reject transition
// on a workflow serializes through this lock.
func (r *WorkflowRepository) GetForUpdate(ctx context.Context, q database.Querier, orgID, id string) (*Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM scrap_workflows
		WHERE org_id = $1 AND id = $2
		FOR UPDATE
	`

	wf, err := r.scanWorkflow(q.QueryRow(ctx, query, orgID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("scrap_workflow", id)
	}
	return wf, err
}

// GetActiveByGroup returns the open header for a group identity, or nil when
// none exists. At most one header per group may be initiated or in progress.
func (r *WorkflowRepository) GetActiveByGroup(ctx context.Context, q database.Querier, orgID, groupID string) (*Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM scrap_workflows
		WHERE org_id = $1
		  AND group_id = $2
		  AND status IN ('initiated', 'in_progress')
		ORDER BY created_at DESC
		LIMIT 1
	`

	wf, err := r.scanWorkflow(q.QueryRow(ctx, query, orgID, groupID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return wf, err
}

// ActiveCoveringAssets returns an open header whose covered asset set
// intersects the given assets, or nil when none exists. Creation guards on
// this rather than on group identity alone: a retry can resolve to a fresh
// virtual identity, but it always resolves to the same assets.
func (r *WorkflowRepository) ActiveCoveringAssets(ctx context.Context, q database.Querier, orgID string, assetIDs []string) (*Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM scrap_workflows
		WHERE org_id = $1
		  AND status IN ('initiated', 'in_progress')
		  AND EXISTS (
		      SELECT 1 FROM scrap_workflow_assets a
		      WHERE a.workflow_id = scrap_workflows.id
		        AND a.asset_id = ANY($2)
		  )
		ORDER BY created_at ASC
		LIMIT 1
	`

	wf, err := r.scanWorkflow(q.QueryRow(ctx, query, orgID, assetIDs))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return wf, err
}

// UpdateStatus sets the header status and optionally stamps completed_at.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, q database.Querier, id, status string, completedAt *time.Time) error {
	query := `
		UPDATE scrap_workflows
		SET status       = $2,
		    completed_at = $3,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, status, completedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("scrap_workflow", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update workflow status")
	}
	return nil
}

// SetCurrentStep records the step number the chain currently waits at.
func (r *WorkflowRepository) SetCurrentStep(ctx context.Context, q database.Querier, id string, step int) error {
	query := `
		UPDATE scrap_workflows
		SET current_step = $2,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, step).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("scrap_workflow", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update workflow step")
	}
	return nil
}

// AssetIDs returns the asset set a workflow covers.
func (r *WorkflowRepository) AssetIDs(ctx context.Context, q database.Querier, workflowID string) ([]string, error) {
	query := `
		SELECT asset_id
		FROM scrap_workflow_assets
		WHERE workflow_id = $1
		ORDER BY asset_id
	`

	rows, err := q.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list workflow assets")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan workflow asset")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPending returns the approval inbox for an actor: every open header with
// an awaiting step matching one of the actor's roles, plus any open header the
// actor created. Branch-scoped actors only see headers for their branch.
func (r *WorkflowRepository) ListPending(ctx context.Context, q database.Querier, orgID, actorID string, roles []string, branchID string, allBranches bool) ([]*PendingApproval, error) {
	query := `
		SELECT w.id, w.group_id, g.name, w.asset_type,
		       (SELECT COUNT(*) FROM scrap_workflow_assets a WHERE a.workflow_id = w.id),
		       w.current_step, w.status, w.is_sale, w.created_by, w.created_at
		FROM scrap_workflows w
		LEFT JOIN asset_groups g ON g.id = w.group_id AND NOT w.group_is_virtual
		WHERE w.org_id = $1
		  AND w.status IN ('initiated', 'in_progress')
		  AND (
		      w.created_by = $2
		      OR EXISTS (
		          SELECT 1 FROM scrap_workflow_steps s
		          WHERE s.workflow_id = w.id
		            AND s.status = 'awaiting_approval'
		            AND s.required_role = ANY($3)
		      )
		  )
		  AND ($4 OR w.branch_id = $5)
		ORDER BY w.created_at ASC
	`

	rows, err := q.Query(ctx, query, orgID, actorID, roles, allBranches, branchID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	var items []*PendingApproval
	for rows.Next() {
		p := &PendingApproval{}
		err := rows.Scan(
			&p.WorkflowID,
			&p.GroupID,
			&p.GroupName,
			&p.AssetType,
			&p.AssetCount,
			&p.CurrentStep,
			&p.Status,
			&p.IsSale,
			&p.CreatedBy,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan pending approval")
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row workflowScanner) (*Workflow, error) {
	wf := &Workflow{}
	err := row.Scan(
		&wf.ID,
		&wf.OrgID,
		&wf.GroupID,
		&wf.GroupIsVirtual,
		&wf.BranchID,
		&wf.AssetType,
		&wf.IsSale,
		&wf.SaleID,
		&wf.Status,
		&wf.CurrentStep,
		&wf.CreatedBy,
		&wf.Notes,
		&wf.CompletedAt,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
