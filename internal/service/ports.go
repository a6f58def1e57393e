package service

import (
	"context"
	"time"

	"github.com/finipro/be-am-disposals/internal/database"
	"github.com/finipro/be-am-disposals/internal/repository"
)

// Store and collaborator ports consumed by the disposal services. The concrete
// repositories in internal/repository satisfy the store interfaces; tests run
// the engine against in-memory fakes.

// TxRunner executes work inside a database transaction, with savepoint support
// for best-effort cleanup that must not abort the enclosing transaction.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(q database.Querier) error) error
	WithSavepoint(ctx context.Context, q database.Querier, fn func(q database.Querier) error) error
}

// AssetStore is the engine's window onto the asset registry.
type AssetStore interface {
	GetForUpdate(ctx context.Context, q database.Querier, orgID string, ids []string) ([]*repository.Asset, error)
	ListByGroupForUpdate(ctx context.Context, q database.Querier, orgID, groupID string) ([]*repository.Asset, error)
	ListByIDs(ctx context.Context, q database.Querier, orgID string, ids []string) ([]*repository.Asset, error)
	MarkDisposed(ctx context.Context, q database.Querier, orgID string, ids []string) error
	ClearGroup(ctx context.Context, q database.Querier, orgID string, ids []string) error
	ClearGroupRefs(ctx context.Context, q database.Querier, orgID, groupID string) error
	AssignGroup(ctx context.Context, q database.Querier, orgID string, ids []string, groupID string) error
	CloseAssignments(ctx context.Context, q database.Querier, ids []string) error
}

// GroupStore manages persisted asset groups.
type GroupStore interface {
	GetByID(ctx context.Context, q database.Querier, orgID, id string) (*repository.AssetGroup, error)
	Create(ctx context.Context, q database.Querier, g *repository.AssetGroup) error
	MemberIDs(ctx context.Context, q database.Querier, groupID string) ([]string, error)
	AddMembers(ctx context.Context, q database.Querier, groupID string, assetIDs []string) error
	RemoveMembers(ctx context.Context, q database.Querier, groupID string, assetIDs []string) error
	DeleteIfEmpty(ctx context.Context, q database.Querier, groupID string) error
}

// SequenceStore reads the disposal approval catalog.
type SequenceStore interface {
	ListForType(ctx context.Context, q database.Querier, orgID, assetType string) ([]repository.SequenceStep, error)
	ApprovalRequired(ctx context.Context, q database.Querier, orgID, assetType string) (bool, error)
	SeedFromMaintenance(ctx context.Context, q database.Querier, orgID, assetType string) (int, error)
}

// WorkflowStore persists workflow headers and step instances.
type WorkflowStore interface {
	Create(ctx context.Context, q database.Querier, wf *repository.Workflow, steps []*repository.WorkflowStep, assetIDs []string) error
	GetByID(ctx context.Context, q database.Querier, orgID, id string) (*repository.Workflow, error)
	GetForUpdate(ctx context.Context, q database.Querier, orgID, id string) (*repository.Workflow, error)
	GetActiveByGroup(ctx context.Context, q database.Querier, orgID, groupID string) (*repository.Workflow, error)
	ActiveCoveringAssets(ctx context.Context, q database.Querier, orgID string, assetIDs []string) (*repository.Workflow, error)
	UpdateStatus(ctx context.Context, q database.Querier, id, status string, completedAt *time.Time) error
	SetCurrentStep(ctx context.Context, q database.Querier, id string, step int) error
	AssetIDs(ctx context.Context, q database.Querier, workflowID string) ([]string, error)
	LockAwaitingForRoles(ctx context.Context, q database.Querier, workflowID string, roles []string) (*repository.WorkflowStep, error)
	MarkStep(ctx context.Context, q database.Querier, stepID, status, actedBy string, notes *string) error
	CountAwaiting(ctx context.Context, q database.Querier, workflowID string) (int, error)
	NextActionableStep(ctx context.Context, q database.Querier, workflowID string, from int) (int, bool, error)
	ActivateStep(ctx context.Context, q database.Querier, workflowID string, stepNumber int, note *string) error
	RewindAfter(ctx context.Context, q database.Querier, workflowID string, stepNumber int) error
	ReopenBefore(ctx context.Context, q database.Querier, workflowID string, stepNumber int) error
	ListSteps(ctx context.Context, q database.Querier, workflowID string) ([]*repository.WorkflowStep, error)
	ListPending(ctx context.Context, q database.Querier, orgID, actorID string, roles []string, branchID string, allBranches bool) ([]*repository.PendingApproval, error)
}

// LedgerStore appends disposal ledger entries.
type LedgerStore interface {
	Append(ctx context.Context, q database.Querier, entry *repository.DisposalLogEntry) error
}

// SaleStore flips sale records referenced by disposal-for-sale workflows.
type SaleStore interface {
	Exists(ctx context.Context, q database.Querier, orgID, saleID string) (bool, error)
	Complete(ctx context.Context, q database.Querier, orgID, saleID, actorID string) error
}

// UserScope is an actor's branch visibility.
type UserScope struct {
	BranchID    string
	AllBranches bool
}

// IdentityClientInterface resolves actor roles and branch scope from the
// platform identity service.
type IdentityClientInterface interface {
	GetUserRoles(ctx context.Context, orgID, userID string) ([]string, error)
	GetUserScope(ctx context.Context, orgID, userID string) (*UserScope, error)
}

// Notifier publishes workflow events. Implementations must never fail the
// caller; publish errors are logged and swallowed.
type Notifier interface {
	PublishWorkflowEvent(ctx context.Context, eventType, workflowID, orgID, actorID string, payload map[string]any)
}
