package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
	"github.com/finipro/be-am-disposals/internal/repository"
)

// In-memory fakes for the store ports. They ignore the Querier argument; the
// fake runner passes nil and simulates transaction/savepoint boundaries only
// as far as the engine observes them.

type fakeRunner struct {
	savepointErr error
}

func (f *fakeRunner) InTransaction(ctx context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

func (f *fakeRunner) WithSavepoint(ctx context.Context, q database.Querier, fn func(q database.Querier) error) error {
	if f.savepointErr != nil {
		return f.savepointErr
	}
	return fn(q)
}

// ── assets ────────────────────────────────────────────────────────────────────

type fakeAssetStore struct {
	assets            map[string]*repository.Asset
	closedAssignments []string
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{assets: make(map[string]*repository.Asset)}
}

func (f *fakeAssetStore) add(a *repository.Asset) {
	f.assets[a.ID] = a
}

func (f *fakeAssetStore) GetForUpdate(ctx context.Context, q database.Querier, orgID string, ids []string) ([]*repository.Asset, error) {
	var out []*repository.Asset
	for _, id := range ids {
		a, ok := f.assets[id]
		if !ok || a.OrgID != orgID {
			return nil, apperrors.NotFound("asset", id)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAssetStore) ListByGroupForUpdate(ctx context.Context, q database.Querier, orgID, groupID string) ([]*repository.Asset, error) {
	var out []*repository.Asset
	for _, a := range f.assets {
		if a.OrgID == orgID && a.GroupID != nil && *a.GroupID == groupID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAssetStore) ListByIDs(ctx context.Context, q database.Querier, orgID string, ids []string) ([]*repository.Asset, error) {
	return f.GetForUpdate(ctx, q, orgID, ids)
}

func (f *fakeAssetStore) MarkDisposed(ctx context.Context, q database.Querier, orgID string, ids []string) error {
	for _, id := range ids {
		f.assets[id].Status = repository.AssetDisposed
	}
	return nil
}

func (f *fakeAssetStore) ClearGroup(ctx context.Context, q database.Querier, orgID string, ids []string) error {
	for _, id := range ids {
		f.assets[id].GroupID = nil
	}
	return nil
}

func (f *fakeAssetStore) ClearGroupRefs(ctx context.Context, q database.Querier, orgID, groupID string) error {
	for _, a := range f.assets {
		if a.GroupID != nil && *a.GroupID == groupID {
			a.GroupID = nil
		}
	}
	return nil
}

func (f *fakeAssetStore) AssignGroup(ctx context.Context, q database.Querier, orgID string, ids []string, groupID string) error {
	for _, id := range ids {
		gid := groupID
		f.assets[id].GroupID = &gid
	}
	return nil
}

func (f *fakeAssetStore) CloseAssignments(ctx context.Context, q database.Querier, ids []string) error {
	f.closedAssignments = append(f.closedAssignments, ids...)
	return nil
}

// ── groups ────────────────────────────────────────────────────────────────────

type fakeGroupStore struct {
	groups  map[string]*repository.AssetGroup
	members map[string]map[string]bool
	nextID  int
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{
		groups:  make(map[string]*repository.AssetGroup),
		members: make(map[string]map[string]bool),
	}
}

func (f *fakeGroupStore) add(g *repository.AssetGroup, memberIDs ...string) {
	f.groups[g.ID] = g
	set := make(map[string]bool)
	for _, id := range memberIDs {
		set[id] = true
	}
	f.members[g.ID] = set
}

func (f *fakeGroupStore) GetByID(ctx context.Context, q database.Querier, orgID, id string) (*repository.AssetGroup, error) {
	g, ok := f.groups[id]
	if !ok || g.OrgID != orgID {
		return nil, apperrors.NotFound("asset_group", id)
	}
	return g, nil
}

func (f *fakeGroupStore) Create(ctx context.Context, q database.Querier, g *repository.AssetGroup) error {
	f.nextID++
	g.ID = fmt.Sprintf("grp-new-%d", f.nextID)
	g.CreatedAt = time.Now()
	f.groups[g.ID] = g
	f.members[g.ID] = make(map[string]bool)
	return nil
}

func (f *fakeGroupStore) MemberIDs(ctx context.Context, q database.Querier, groupID string) ([]string, error) {
	var ids []string
	for id := range f.members[groupID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeGroupStore) AddMembers(ctx context.Context, q database.Querier, groupID string, assetIDs []string) error {
	for _, id := range assetIDs {
		f.members[groupID][id] = true
	}
	return nil
}

func (f *fakeGroupStore) RemoveMembers(ctx context.Context, q database.Querier, groupID string, assetIDs []string) error {
	for _, id := range assetIDs {
		delete(f.members[groupID], id)
	}
	return nil
}

func (f *fakeGroupStore) DeleteIfEmpty(ctx context.Context, q database.Querier, groupID string) error {
	if len(f.members[groupID]) == 0 {
		delete(f.groups, groupID)
		delete(f.members, groupID)
	}
	return nil
}

// ── sequences ─────────────────────────────────────────────────────────────────

type fakeSequenceStore struct {
	sequences   map[string][]repository.SequenceStep
	maintenance map[string][]repository.SequenceStep
	noApproval  map[string]bool
}

func newFakeSequenceStore() *fakeSequenceStore {
	return &fakeSequenceStore{
		sequences:   make(map[string][]repository.SequenceStep),
		maintenance: make(map[string][]repository.SequenceStep),
		noApproval:  make(map[string]bool),
	}
}

func seqKey(orgID, assetType string) string { return orgID + "/" + assetType }

func (f *fakeSequenceStore) ListForType(ctx context.Context, q database.Querier, orgID, assetType string) ([]repository.SequenceStep, error) {
	steps := append([]repository.SequenceStep(nil), f.sequences[seqKey(orgID, assetType)]...)
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StepNumber != steps[j].StepNumber {
			return steps[i].StepNumber < steps[j].StepNumber
		}
		return steps[i].RequiredRole < steps[j].RequiredRole
	})
	return steps, nil
}

func (f *fakeSequenceStore) ApprovalRequired(ctx context.Context, q database.Querier, orgID, assetType string) (bool, error) {
	return !f.noApproval[seqKey(orgID, assetType)], nil
}

func (f *fakeSequenceStore) SeedFromMaintenance(ctx context.Context, q database.Querier, orgID, assetType string) (int, error) {
	key := seqKey(orgID, assetType)
	if len(f.sequences[key]) > 0 {
		return 0, apperrors.Conflict("scrap sequences already configured for asset type " + assetType)
	}
	f.sequences[key] = append([]repository.SequenceStep(nil), f.maintenance[key]...)
	return len(f.sequences[key]), nil
}

// ── workflows ─────────────────────────────────────────────────────────────────

type fakeWorkflowStore struct {
	workflows map[string]*repository.Workflow
	steps     map[string][]*repository.WorkflowStep
	assetIDs  map[string][]string
	nextID    int
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		workflows: make(map[string]*repository.Workflow),
		steps:     make(map[string][]*repository.WorkflowStep),
		assetIDs:  make(map[string][]string),
	}
}

func (f *fakeWorkflowStore) Create(ctx context.Context, q database.Querier, wf *repository.Workflow, steps []*repository.WorkflowStep, assetIDs []string) error {
	f.nextID++
	wf.ID = fmt.Sprintf("wf-%d", f.nextID)
	now := time.Now()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	f.workflows[wf.ID] = wf
	for i, s := range steps {
		s.ID = fmt.Sprintf("%s-step-%d", wf.ID, i+1)
		s.WorkflowID = wf.ID
		s.OrgID = wf.OrgID
		s.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
	}
	f.steps[wf.ID] = steps
	f.assetIDs[wf.ID] = append([]string(nil), assetIDs...)
	return nil
}

func (f *fakeWorkflowStore) GetByID(ctx context.Context, q database.Querier, orgID, id string) (*repository.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok || wf.OrgID != orgID {
		return nil, apperrors.NotFound("scrap_workflow", id)
	}
	return wf, nil
}

func (f *fakeWorkflowStore) GetForUpdate(ctx context.Context, q database.Querier, orgID, id string) (*repository.Workflow, error) {
	return f.GetByID(ctx, q, orgID, id)
}

func (f *fakeWorkflowStore) GetActiveByGroup(ctx context.Context, q database.Querier, orgID, groupID string) (*repository.Workflow, error) {
	for _, wf := range f.workflows {
		if wf.OrgID == orgID && wf.GroupID == groupID &&
			(wf.Status == repository.WorkflowInitiated || wf.Status == repository.WorkflowInProgress) {
			return wf, nil
		}
	}
	return nil, nil
}

func (f *fakeWorkflowStore) ActiveCoveringAssets(ctx context.Context, q database.Querier, orgID string, ids []string) (*repository.Workflow, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for _, wf := range f.workflows {
		if wf.OrgID != orgID {
			continue
		}
		if wf.Status != repository.WorkflowInitiated && wf.Status != repository.WorkflowInProgress {
			continue
		}
		for _, aid := range f.assetIDs[wf.ID] {
			if idSet[aid] {
				return wf, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeWorkflowStore) UpdateStatus(ctx context.Context, q database.Querier, id, status string, completedAt *time.Time) error {
	wf, ok := f.workflows[id]
	if !ok {
		return apperrors.NotFound("scrap_workflow", id)
	}
	wf.Status = status
	wf.CompletedAt = completedAt
	return nil
}

func (f *fakeWorkflowStore) SetCurrentStep(ctx context.Context, q database.Querier, id string, step int) error {
	wf, ok := f.workflows[id]
	if !ok {
		return apperrors.NotFound("scrap_workflow", id)
	}
	wf.CurrentStep = step
	return nil
}

func (f *fakeWorkflowStore) AssetIDs(ctx context.Context, q database.Querier, workflowID string) ([]string, error) {
	return append([]string(nil), f.assetIDs[workflowID]...), nil
}

func (f *fakeWorkflowStore) LockAwaitingForRoles(ctx context.Context, q database.Querier, workflowID string, roles []string) (*repository.WorkflowStep, error) {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	var candidates []*repository.WorkflowStep
	for _, s := range f.steps[workflowID] {
		if s.Status == repository.StepAwaitingApproval && roleSet[s.RequiredRole] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].StepNumber != candidates[j].StepNumber {
			return candidates[i].StepNumber < candidates[j].StepNumber
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0], nil
}

func (f *fakeWorkflowStore) MarkStep(ctx context.Context, q database.Querier, stepID, status, actedBy string, notes *string) error {
	for _, steps := range f.steps {
		for _, s := range steps {
			if s.ID == stepID {
				now := time.Now()
				s.Status = status
				s.ActedBy = &actedBy
				s.ActedAt = &now
				s.ActionNotes = notes
				return nil
			}
		}
	}
	return apperrors.NotFound("workflow_step", stepID)
}

func (f *fakeWorkflowStore) CountAwaiting(ctx context.Context, q database.Querier, workflowID string) (int, error) {
	n := 0
	for _, s := range f.steps[workflowID] {
		if s.Status == repository.StepAwaitingApproval {
			n++
		}
	}
	return n, nil
}

func (f *fakeWorkflowStore) NextActionableStep(ctx context.Context, q database.Querier, workflowID string, from int) (int, bool, error) {
	next := 0
	found := false
	for _, s := range f.steps[workflowID] {
		if s.StepNumber < from {
			continue
		}
		if s.Status != repository.StepPending && s.Status != repository.StepRejected {
			continue
		}
		if !found || s.StepNumber < next {
			next = s.StepNumber
			found = true
		}
	}
	return next, found, nil
}

func (f *fakeWorkflowStore) ActivateStep(ctx context.Context, q database.Querier, workflowID string, stepNumber int, note *string) error {
	for _, s := range f.steps[workflowID] {
		if s.StepNumber == stepNumber &&
			(s.Status == repository.StepPending || s.Status == repository.StepRejected) {
			s.Status = repository.StepAwaitingApproval
			if note != nil {
				s.ActionNotes = note
			}
		}
	}
	return nil
}

func (f *fakeWorkflowStore) RewindAfter(ctx context.Context, q database.Querier, workflowID string, stepNumber int) error {
	for _, s := range f.steps[workflowID] {
		if s.StepNumber > stepNumber {
			s.Status = repository.StepPending
			s.ActedBy = nil
			s.ActedAt = nil
		}
	}
	return nil
}

func (f *fakeWorkflowStore) ReopenBefore(ctx context.Context, q database.Querier, workflowID string, stepNumber int) error {
	for _, s := range f.steps[workflowID] {
		if s.StepNumber < stepNumber && s.Status == repository.StepApproved {
			s.Status = repository.StepAwaitingApproval
		}
	}
	return nil
}

func (f *fakeWorkflowStore) ListSteps(ctx context.Context, q database.Querier, workflowID string) ([]*repository.WorkflowStep, error) {
	steps := append([]*repository.WorkflowStep(nil), f.steps[workflowID]...)
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].StepNumber != steps[j].StepNumber {
			return steps[i].StepNumber < steps[j].StepNumber
		}
		return steps[i].RequiredRole < steps[j].RequiredRole
	})
	return steps, nil
}

func (f *fakeWorkflowStore) ListPending(ctx context.Context, q database.Querier, orgID, actorID string, roles []string, branchID string, allBranches bool) ([]*repository.PendingApproval, error) {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	var out []*repository.PendingApproval
	for _, wf := range f.workflows {
		if wf.OrgID != orgID {
			continue
		}
		if wf.Status != repository.WorkflowInitiated && wf.Status != repository.WorkflowInProgress {
			continue
		}
		if !allBranches && wf.BranchID != branchID {
			continue
		}
		visible := wf.CreatedBy == actorID
		if !visible {
			for _, s := range f.steps[wf.ID] {
				if s.Status == repository.StepAwaitingApproval && roleSet[s.RequiredRole] {
					visible = true
					break
				}
			}
		}
		if !visible {
			continue
		}
		out = append(out, &repository.PendingApproval{
			WorkflowID:  wf.ID,
			GroupID:     wf.GroupID,
			AssetType:   wf.AssetType,
			AssetCount:  len(f.assetIDs[wf.ID]),
			CurrentStep: wf.CurrentStep,
			Status:      wf.Status,
			IsSale:      wf.IsSale,
			CreatedBy:   wf.CreatedBy,
			CreatedAt:   wf.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out, nil
}

// ── ledger, sales, identity, notifier ─────────────────────────────────────────

type fakeLedgerStore struct {
	entries []*repository.DisposalLogEntry
}

func (f *fakeLedgerStore) Append(ctx context.Context, q database.Querier, entry *repository.DisposalLogEntry) error {
	entry.ID = fmt.Sprintf("ledger-%d", len(f.entries)+1)
	entry.DisposedAt = time.Now()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeSaleStore struct {
	sales map[string]string // id -> status
}

func newFakeSaleStore() *fakeSaleStore {
	return &fakeSaleStore{sales: make(map[string]string)}
}

func (f *fakeSaleStore) Exists(ctx context.Context, q database.Querier, orgID, saleID string) (bool, error) {
	status, ok := f.sales[saleID]
	return ok && status != "completed", nil
}

func (f *fakeSaleStore) Complete(ctx context.Context, q database.Querier, orgID, saleID, actorID string) error {
	if _, ok := f.sales[saleID]; !ok {
		return apperrors.NotFound("asset_sale", saleID)
	}
	f.sales[saleID] = "completed"
	return nil
}

type fakeIdentityClient struct {
	roles  map[string][]string
	scopes map[string]*UserScope
}

func newFakeIdentityClient() *fakeIdentityClient {
	return &fakeIdentityClient{
		roles:  make(map[string][]string),
		scopes: make(map[string]*UserScope),
	}
}

func (f *fakeIdentityClient) GetUserRoles(ctx context.Context, orgID, userID string) ([]string, error) {
	return f.roles[userID], nil
}

func (f *fakeIdentityClient) GetUserScope(ctx context.Context, orgID, userID string) (*UserScope, error) {
	if scope, ok := f.scopes[userID]; ok {
		return scope, nil
	}
	return &UserScope{AllBranches: true}, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) PublishWorkflowEvent(ctx context.Context, eventType, workflowID, orgID, actorID string, payload map[string]any) {
	f.events = append(f.events, eventType)
}

// ── harness ───────────────────────────────────────────────────────────────────

type testEnv struct {
	svc       *DisposalService
	runner    *fakeRunner
	assets    *fakeAssetStore
	groups    *fakeGroupStore
	sequences *fakeSequenceStore
	workflows *fakeWorkflowStore
	ledger    *fakeLedgerStore
	sales     *fakeSaleStore
	identity  *fakeIdentityClient
	notifier  *fakeNotifier
}

func newTestEnv() *testEnv {
	env := &testEnv{
		runner:    &fakeRunner{},
		assets:    newFakeAssetStore(),
		groups:    newFakeGroupStore(),
		sequences: newFakeSequenceStore(),
		workflows: newFakeWorkflowStore(),
		ledger:    &fakeLedgerStore{},
		sales:     newFakeSaleStore(),
		identity:  newFakeIdentityClient(),
		notifier:  &fakeNotifier{},
	}
	log := zerolog.Nop()
	resolver := NewGroupResolver(env.assets, env.groups, log)
	env.svc = NewDisposalService(
		nil, env.runner, resolver,
		env.sequences, env.workflows, env.assets, env.groups, env.ledger, env.sales,
		env.identity, env.notifier, log,
	)
	return env
}
