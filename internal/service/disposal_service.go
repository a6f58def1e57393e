package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
	"github.com/finipro/be-am-disposals/internal/repository"
)

// Actor is the authenticated caller of a disposal operation.
type Actor struct {
	UserID string
	OrgID  string
}

// CreateDisposalRequest starts a disposal for a single asset or a whole group.
type CreateDisposalRequest struct {
	AssetID *string `json:"asset_id"`
	GroupID *string `json:"group_id"`
	IsSale  bool    `json:"is_sale"`
	SaleID  *string `json:"sale_id"`
	Notes   *string `json:"notes"`
}

// CreateFromSelectionRequest starts a disposal for a subset of a group.
type CreateFromSelectionRequest struct {
	GroupID          string   `json:"group_id"`
	SelectedAssetIDs []string `json:"selected_asset_ids"`
	IsSale           bool     `json:"is_sale"`
	SaleID           *string  `json:"sale_id"`
	Notes            *string  `json:"notes"`
}

// CreateDisposalResult reports what a create request did: either a workflow
// now exists (created or already active) or, for types without approval
// oversight, the assets were disposed immediately.
type CreateDisposalResult struct {
	WorkflowCreated bool   `json:"workflow_created"`
	WorkflowID      string `json:"workflow_id,omitempty"`
	Disposed        bool   `json:"disposed"`
	DisposedCount   int    `json:"disposed_count,omitempty"`
}

// ActionResult reports the outcome of an approve or reject transition.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WorkflowDetail is the full read model of one workflow.
type WorkflowDetail struct {
	Header *repository.Workflow       `json:"header"`
	Assets []*repository.Asset        `json:"assets"`
	Steps  []*repository.WorkflowStep `json:"step_instances"`
}

// DisposalService drives assets through the scrap approval chain: it creates
// workflows from disposal requests, runs the approve/reject state machine and
// finalizes disposal when the chain completes.
type DisposalService struct {
	db        database.Querier
	runner    TxRunner
	resolver  *GroupResolver
	sequences SequenceStore
	workflows WorkflowStore
	assets    AssetStore
	groups    GroupStore
	ledger    LedgerStore
	sales     SaleStore
	identity  IdentityClientInterface
	notifier  Notifier
	log       zerolog.Logger
}

// NewDisposalService creates a new DisposalService.
func NewDisposalService(
	db database.Querier,
	runner TxRunner,
	resolver *GroupResolver,
	sequences SequenceStore,
	workflows WorkflowStore,
	assets AssetStore,
	groups GroupStore,
	ledger LedgerStore,
	sales SaleStore,
	identity IdentityClientInterface,
	notifier Notifier,
	log zerolog.Logger,
) *DisposalService {
	return &DisposalService{
		db:        db,
		runner:    runner,
		resolver:  resolver,
		sequences: sequences,
		workflows: workflows,
		assets:    assets,
		groups:    groups,
		ledger:    ledger,
		sales:     sales,
		identity:  identity,
		notifier:  notifier,
		log:       log,
	}
}

// ── Workflow creation ─────────────────────────────────────────────────────────

// CreateDisposalRequest resolves the request target and either creates a
// workflow, returns the already-active one for the same group, or disposes
// immediately when the asset type needs no approval.
func (s *DisposalService) CreateDisposalRequest(ctx context.Context, actor Actor, req *CreateDisposalRequest) (*CreateDisposalResult, error) {
	if (req.AssetID == nil) == (req.GroupID == nil) {
		return nil, apperrors.InvalidInput("request", "exactly one of asset_id or group_id is required")
	}

	return s.create(ctx, actor, req.IsSale, req.SaleID, req.Notes, func(q database.Querier) (*Resolution, error) {
		if req.AssetID != nil {
			return s.resolver.ResolveAsset(ctx, q, actor.OrgID, *req.AssetID)
		}
		return s.resolver.ResolveGroup(ctx, q, actor.OrgID, *req.GroupID)
	})
}

// CreateFromGroupSelection resolves a subset selection (splitting the group
// when needed) and proceeds as CreateDisposalRequest.
func (s *DisposalService) CreateFromGroupSelection(ctx context.Context, actor Actor, req *CreateFromSelectionRequest) (*CreateDisposalResult, error) {
	if req.GroupID == "" {
		return nil, apperrors.InvalidInput("group_id", "group_id is required")
	}

	return s.create(ctx, actor, req.IsSale, req.SaleID, req.Notes, func(q database.Querier) (*Resolution, error) {
		// Splitting mutates group membership, so a group under active disposal
		// must be rejected before the resolver touches it.
		active, err := s.workflows.GetActiveByGroup(ctx, q, actor.OrgID, req.GroupID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, apperrors.Conflict("group " + req.GroupID + " already has an active disposal workflow")
		}
		return s.resolver.ResolveSelection(ctx, q, actor.OrgID, req.GroupID, req.SelectedAssetIDs)
	})
}

func (s *DisposalService) create(
	ctx context.Context,
	actor Actor,
	isSale bool,
	saleID *string,
	notes *string,
	resolve func(q database.Querier) (*Resolution, error),
) (*CreateDisposalResult, error) {
	result := &CreateDisposalResult{}
	created := false

	err := s.runner.InTransaction(ctx, func(q database.Querier) error {
		res, err := resolve(q)
		if err != nil {
			return err
		}

		// Retries must land on the existing workflow, and an asset may never be
		// covered by two open workflows. Group identity alone cannot enforce
		// that (virtual identities are minted per resolution), so the guard
		// keys on the resolved assets.
		existing, err := s.workflows.ActiveCoveringAssets(ctx, q, actor.OrgID, assetIDs(res.Assets))
		if err != nil {
			return err
		}
		if existing != nil {
			result.WorkflowCreated = true
			result.WorkflowID = existing.ID
			return nil
		}

		if isSale {
			// The sale record is correlated explicitly at creation time so the
			// finalizer never has to guess which sale a disposal belongs to.
			if saleID == nil {
				return apperrors.InvalidInput("sale_id", "sale_id is required for a disposal-for-sale request")
			}
			ok, err := s.sales.Exists(ctx, q, actor.OrgID, *saleID)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.NotFound("asset_sale", *saleID)
			}
		}

		required, err := s.sequences.ApprovalRequired(ctx, q, actor.OrgID, res.AssetType)
		if err != nil {
			return err
		}
		if !required {
			// No approval oversight for this type: dispose right away, no
			// header or step rows at all.
			if err := s.finalizeLocked(ctx, q, finalizeParams{
				orgID:   actor.OrgID,
				group:   res.Group,
				assets:  res.Assets,
				actorID: actor.UserID,
				notes:   notes,
				isSale:  isSale,
				saleID:  saleID,
			}); err != nil {
				return err
			}
			result.Disposed = true
			result.DisposedCount = len(res.Assets)
			return nil
		}

		seqs, err := s.sequences.ListForType(ctx, q, actor.OrgID, res.AssetType)
		if err != nil {
			return err
		}
		if len(seqs) == 0 {
			return apperrors.Newf(apperrors.ErrCodeConfig,
				"no scrap approval sequence configured for asset type %s", res.AssetType)
		}

		firstStep := seqs[0].StepNumber
		for _, seq := range seqs {
			if seq.StepNumber < firstStep {
				firstStep = seq.StepNumber
			}
		}

		steps := make([]*repository.WorkflowStep, 0, len(seqs))
		for _, seq := range seqs {
			step := &repository.WorkflowStep{
				StepNumber:   seq.StepNumber,
				RequiredRole: seq.RequiredRole,
				Status:       repository.StepPending,
			}
			if seq.StepNumber == firstStep {
				step.Status = repository.StepAwaitingApproval
				step.ActionNotes = notes
			}
			steps = append(steps, step)
		}

		wf := &repository.Workflow{
			OrgID:          actor.OrgID,
			GroupID:        res.Group.ID,
			GroupIsVirtual: res.Group.Virtual,
			BranchID:       res.BranchID,
			AssetType:      res.AssetType,
			IsSale:         isSale,
			SaleID:         saleID,
			Status:         repository.WorkflowInitiated,
			CurrentStep:    firstStep,
			CreatedBy:      actor.UserID,
			Notes:          notes,
		}
		if err := s.workflows.Create(ctx, q, wf, steps, assetIDs(res.Assets)); err != nil {
			return err
		}

		result.WorkflowCreated = true
		result.WorkflowID = wf.ID
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.log.Info().
			Str("workflow_id", result.WorkflowID).
			Str("org_id", actor.OrgID).
			Msg("Scrap disposal workflow created")
		s.notifier.PublishWorkflowEvent(ctx, "disposal_submitted", result.WorkflowID, actor.OrgID, actor.UserID, nil)
	}
	if result.Disposed {
		s.log.Info().
			Str("org_id", actor.OrgID).
			Int("count", result.DisposedCount).
			Msg("Assets disposed without approval workflow")
	}
	return result, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// ListPendingApprovals returns the actor's approval inbox.
func (s *DisposalService) ListPendingApprovals(ctx context.Context, actor Actor) ([]*repository.PendingApproval, error) {
	roles, err := s.identity.GetUserRoles(ctx, actor.OrgID, actor.UserID)
	if err != nil {
		return nil, err
	}
	scope, err := s.identity.GetUserScope(ctx, actor.OrgID, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.workflows.ListPending(ctx, s.db, actor.OrgID, actor.UserID, roles, scope.BranchID, scope.AllBranches)
}

// GetWorkflowDetail returns a workflow's header, covered assets and step
// instances.
func (s *DisposalService) GetWorkflowDetail(ctx context.Context, actor Actor, workflowID string) (*WorkflowDetail, error) {
	wf, err := s.workflows.GetByID(ctx, s.db, actor.OrgID, workflowID)
	if err != nil {
		return nil, err
	}
	steps, err := s.workflows.ListSteps(ctx, s.db, wf.ID)
	if err != nil {
		return nil, err
	}
	ids, err := s.workflows.AssetIDs(ctx, s.db, wf.ID)
	if err != nil {
		return nil, err
	}
	assets, err := s.assets.ListByIDs(ctx, s.db, actor.OrgID, ids)
	if err != nil {
		return nil, err
	}
	return &WorkflowDetail{Header: wf, Assets: assets, Steps: steps}, nil
}

// ── Administration ────────────────────────────────────────────────────────────

// AdminRole is the identity role allowed to administer the disposal catalog.
const AdminRole = "Administrator"

// SeedSequences copies the maintenance approval chain for an asset type into
// the disposal catalog. Explicit administrative action; the critical path
// never falls back to this.
func (s *DisposalService) SeedSequences(ctx context.Context, actor Actor, assetType string) (int, error) {
	if assetType == "" {
		return 0, apperrors.InvalidInput("asset_type", "asset_type is required")
	}

	roles, err := s.identity.GetUserRoles(ctx, actor.OrgID, actor.UserID)
	if err != nil {
		return 0, err
	}
	admin := false
	for _, role := range roles {
		if role == AdminRole {
			admin = true
			break
		}
	}
	if !admin {
		return 0, apperrors.Unauthorized("sequence seeding requires the " + AdminRole + " role")
	}

	var copied int
	err = s.runner.InTransaction(ctx, func(q database.Querier) error {
		var err error
		copied, err = s.sequences.SeedFromMaintenance(ctx, q, actor.OrgID, assetType)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Str("org_id", actor.OrgID).
		Str("asset_type", assetType).
		Int("steps", copied).
		Msg("Scrap sequences seeded from maintenance catalog")
	return copied, nil
}
