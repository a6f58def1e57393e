package repository

import (
	"time"

	"github.com/google/uuid"
)

// ── Workflow statuses ─────────────────────────────────────────────────────────

// Workflow header statuses.
const (
	WorkflowInitiated  = "initiated"
	WorkflowInProgress = "in_progress"
	WorkflowCompleted  = "completed"
	WorkflowCancelled  = "cancelled"
)

// Step instance statuses.
const (
	StepPending          = "pending"
	StepAwaitingApproval = "awaiting_approval"
	StepApproved         = "approved"
	StepRejected         = "rejected"
)

// Asset statuses.
const (
	AssetActive   = "active"
	AssetAssigned = "assigned"
	AssetDisposed = "disposed"
)

// ── Group identity ────────────────────────────────────────────────────────────

// GroupRef identifies the group a workflow runs under. A real group is backed
// by an asset_groups row; a virtual group is a generated identifier that only
// correlates workflow rows for assets outside any persisted group.
type GroupRef struct {
	ID      string
	Virtual bool
}

// RealGroup references a persisted asset group.
func RealGroup(id string) GroupRef {
	return GroupRef{ID: id}
}

// VirtualGroup allocates a fresh non-persisted group identity.
func VirtualGroup() GroupRef {
	return GroupRef{ID: uuid.NewString(), Virtual: true}
}

// ── Domain types ──────────────────────────────────────────────────────────────

// Asset is the engine's view of an asset registry row. The registry owns the
// full record; the engine reads it and, at disposal, writes status and group
// membership only.
type Asset struct {
	ID        string
	OrgID     string
	BranchID  string
	AssetType string
	Name      string
	Status    string
	GroupID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssetGroup is a persisted, named collection of assets.
type AssetGroup struct {
	ID        string
	OrgID     string
	BranchID  string
	Name      string
	CreatedAt time.Time
}

// SequenceStep is one entry in the disposal approval catalog for an asset
// type. Several roles may share a step number; all of them must approve
// before the chain advances.
type SequenceStep struct {
	StepNumber   int
	RequiredRole string
}

// Workflow is the header row of one disposal attempt.
type Workflow struct {
	ID             string
	OrgID          string
	GroupID        string
	GroupIsVirtual bool
	BranchID       string
	AssetType      string
	IsSale         bool
	SaleID         *string
	Status         string
	CurrentStep    int
	CreatedBy      string
	Notes          *string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Group returns the header's group identity as a GroupRef.
func (w *Workflow) Group() GroupRef {
	return GroupRef{ID: w.GroupID, Virtual: w.GroupIsVirtual}
}

// WorkflowStep is one role's approval slot at one point in the chain.
type WorkflowStep struct {
	ID           string
	WorkflowID   string
	OrgID        string
	StepNumber   int
	RequiredRole string
	Status       string
	ActedBy      *string
	ActedAt      *time.Time
	ActionNotes  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisposalLogEntry is one immutable record in the disposal ledger, written
// exactly once per asset when its workflow completes.
type DisposalLogEntry struct {
	ID         string
	AssetID    string
	GroupID    string
	OrgID      string
	WorkflowID *string
	DisposedBy string
	Notes      *string
	DisposedAt time.Time
}

// PendingApproval is one row in an actor's approval inbox.
type PendingApproval struct {
	WorkflowID  string
	GroupID     string
	GroupName   *string
	AssetType   string
	AssetCount  int
	CurrentStep int
	Status      string
	IsSale      bool
	CreatedBy   string
	CreatedAt   time.Time
}
