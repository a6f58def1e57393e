package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/database"
	"github.com/finipro/be-am-disposals/internal/repository"
)

// GroupResolver turns a disposal request into the concrete asset set to
// process and the group identity the workflow will run under, splitting an
// existing group when only part of it is selected.
type GroupResolver struct {
	assets AssetStore
	groups GroupStore
	log    zerolog.Logger
}

// NewGroupResolver creates a new GroupResolver.
func NewGroupResolver(assets AssetStore, groups GroupStore, log zerolog.Logger) *GroupResolver {
	return &GroupResolver{assets: assets, groups: groups, log: log}
}

// Resolution is the outcome of resolving a disposal request. Any group
// membership mutations implied by a split have already been applied within
// the caller's transaction when Resolve returns.
type Resolution struct {
	Assets    []*repository.Asset
	Group     repository.GroupRef
	GroupName *string
	AssetType string
	BranchID  string
}

// ResolveAsset resolves a single-asset disposal request. An asset inside a
// real group pulls the whole group into the disposal; one outside any group
// gets a virtual identity.
func (r *GroupResolver) ResolveAsset(ctx context.Context, q database.Querier, orgID, assetID string) (*Resolution, error) {
	assets, err := r.assets.GetForUpdate(ctx, q, orgID, []string{assetID})
	if err != nil {
		return nil, err
	}
	asset := assets[0]

	if asset.GroupID != nil {
		return r.ResolveGroup(ctx, q, orgID, *asset.GroupID)
	}

	if err := validateCandidates(assets); err != nil {
		return nil, err
	}
	return &Resolution{
		Assets:    assets,
		Group:     repository.VirtualGroup(),
		AssetType: asset.AssetType,
		BranchID:  asset.BranchID,
	}, nil
}

// ResolveGroup resolves a whole-group disposal request.
func (r *GroupResolver) ResolveGroup(ctx context.Context, q database.Querier, orgID, groupID string) (*Resolution, error) {
	group, err := r.groups.GetByID(ctx, q, orgID, groupID)
	if err != nil {
		return nil, err
	}

	assets, err := r.assets.ListByGroupForUpdate(ctx, q, orgID, groupID)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, apperrors.InvalidInput("group_id", "group has no assets")
	}
	if err := validateCandidates(assets); err != nil {
		return nil, err
	}

	return &Resolution{
		Assets:    assets,
		Group:     repository.RealGroup(group.ID),
		GroupName: &group.Name,
		AssetType: assets[0].AssetType,
		BranchID:  group.BranchID,
	}, nil
}

// ResolveSelection resolves a subset selection from an existing group. The
// split rules keep persisted groups at two members or more:
//
//   - selection covers the whole group: the group identity is unchanged
//   - one asset selected out of three or more: the asset is detached and runs
//     under a virtual identity; the group keeps the remainder
//   - all but one selected: the single remaining asset is detached instead and
//     the selection keeps the original group identity
//   - two or more on both sides: the selection moves into a new group
func (r *GroupResolver) ResolveSelection(ctx context.Context, q database.Querier, orgID, groupID string, selected []string) (*Resolution, error) {
	if len(selected) == 0 {
		return nil, apperrors.InvalidInput("selected_asset_ids", "selection is empty")
	}

	group, err := r.groups.GetByID(ctx, q, orgID, groupID)
	if err != nil {
		return nil, err
	}

	members, err := r.assets.ListByGroupForUpdate(ctx, q, orgID, groupID)
	if err != nil {
		return nil, err
	}

	memberSet := make(map[string]*repository.Asset, len(members))
	for _, a := range members {
		memberSet[a.ID] = a
	}

	selectedAssets := make([]*repository.Asset, 0, len(selected))
	selectedSet := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		a, ok := memberSet[id]
		if !ok {
			return nil, apperrors.InvalidInput("selected_asset_ids",
				"asset "+id+" is not a member of group "+groupID)
		}
		if _, dup := selectedSet[id]; dup {
			continue
		}
		selectedSet[id] = struct{}{}
		selectedAssets = append(selectedAssets, a)
	}

	if err := validateCandidates(selectedAssets); err != nil {
		return nil, err
	}

	var remainder []*repository.Asset
	for _, a := range members {
		if _, ok := selectedSet[a.ID]; !ok {
			remainder = append(remainder, a)
		}
	}

	switch {
	case len(remainder) == 0:
		// Whole group selected.
		return &Resolution{
			Assets:    selectedAssets,
			Group:     repository.RealGroup(group.ID),
			GroupName: &group.Name,
			AssetType: selectedAssets[0].AssetType,
			BranchID:  group.BranchID,
		}, nil

	case len(selectedAssets) == 1 && len(remainder) >= 2:
		// Detach the one selected asset; the group keeps the rest.
		if err := r.detach(ctx, q, orgID, group.ID, selectedAssets); err != nil {
			return nil, err
		}
		return &Resolution{
			Assets:    selectedAssets,
			Group:     repository.VirtualGroup(),
			AssetType: selectedAssets[0].AssetType,
			BranchID:  selectedAssets[0].BranchID,
		}, nil

	case len(remainder) == 1 && len(selectedAssets) >= 2:
		// Detach the single remaining asset instead, so no group of one is
		// left behind. The selection keeps the original group identity.
		if err := r.detach(ctx, q, orgID, group.ID, remainder); err != nil {
			return nil, err
		}
		return &Resolution{
			Assets:    selectedAssets,
			Group:     repository.RealGroup(group.ID),
			GroupName: &group.Name,
			AssetType: selectedAssets[0].AssetType,
			BranchID:  group.BranchID,
		}, nil

	case len(selectedAssets) >= 2 && len(remainder) >= 2:
		// Move the selection into a new group.
		newGroup := &repository.AssetGroup{
			OrgID:    orgID,
			BranchID: group.BranchID,
			Name:     group.Name + " (split)",
		}
		if err := r.groups.Create(ctx, q, newGroup); err != nil {
			return nil, err
		}
		ids := assetIDs(selectedAssets)
		if err := r.groups.RemoveMembers(ctx, q, group.ID, ids); err != nil {
			return nil, err
		}
		if err := r.groups.AddMembers(ctx, q, newGroup.ID, ids); err != nil {
			return nil, err
		}
		if err := r.assets.AssignGroup(ctx, q, orgID, ids, newGroup.ID); err != nil {
			return nil, err
		}
		r.log.Info().
			Str("source_group", group.ID).
			Str("new_group", newGroup.ID).
			Int("moved", len(ids)).
			Msg("Group split for partial disposal")
		return &Resolution{
			Assets:    selectedAssets,
			Group:     repository.RealGroup(newGroup.ID),
			GroupName: &newGroup.Name,
			AssetType: selectedAssets[0].AssetType,
			BranchID:  newGroup.BranchID,
		}, nil

	default:
		// One selected out of two: neither side can survive as a group.
		return nil, apperrors.InvalidInput("selected_asset_ids",
			"selection does not partition the group; select all members or leave at least two on one side")
	}
}

// detach removes the given assets from a group entirely.
func (r *GroupResolver) detach(ctx context.Context, q database.Querier, orgID, groupID string, assets []*repository.Asset) error {
	ids := assetIDs(assets)
	if err := r.groups.RemoveMembers(ctx, q, groupID, ids); err != nil {
		return err
	}
	return r.assets.ClearGroup(ctx, q, orgID, ids)
}

// validateCandidates rejects disposed assets and mixed asset types. The
// approval chain is keyed by a single type, so the resolved set must be
// homogeneous.
func validateCandidates(assets []*repository.Asset) error {
	assetType := assets[0].AssetType
	for _, a := range assets {
		if a.Status == repository.AssetDisposed {
			return apperrors.Conflict("asset " + a.ID + " is already disposed")
		}
		if a.AssetType != assetType {
			return apperrors.InvalidInput("asset_type",
				"assets span more than one type ("+assetType+", "+a.AssetType+")")
		}
	}
	return nil
}

func assetIDs(assets []*repository.Asset) []string {
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	return ids
}
