// Package relationship validates edge requests before they reach the lineage
// store and records derived assets on behalf of completing tasks.
package relationship

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"assetline/internal/apperr"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/lineage"
	"assetline/internal/repo"
)

type Service struct {
	Store  lineage.Store
	Events events.Writer
	// Types is the accepted relationship_type catalog.
	Types []string
}

type CreateInput struct {
	ParentAssetID    string  `json:"parent_asset_id"`
	ChildAssetID     string  `json:"child_asset_id"`
	RelationshipType string  `json:"relationship_type"`
	Notes            *string `json:"notes,omitempty"`
}

// Validate rejects malformed requests before any lookup happens.
func (s Service) Validate(in CreateInput) error {
	var missing []string
	if strings.TrimSpace(in.ParentAssetID) == "" {
		missing = append(missing, "parent_asset_id")
	}
	if strings.TrimSpace(in.ChildAssetID) == "" {
		missing = append(missing, "child_asset_id")
	}
	if strings.TrimSpace(in.RelationshipType) == "" {
		missing = append(missing, "relationship_type")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !s.knownType(in.RelationshipType) {
		return apperr.Validation("unknown relationship_type %q", in.RelationshipType)
	}
	if strings.TrimSpace(in.ParentAssetID) == strings.TrimSpace(in.ChildAssetID) {
		return apperr.Validation("an asset cannot be related to itself")
	}
	return nil
}

func (s Service) knownType(t string) bool {
	types := s.Types
	if len(types) == 0 {
		types = []string{domain.RelDerivedFrom, domain.RelVariantOf, domain.RelComponentOf}
	}
	for _, known := range types {
		if known == t {
			return true
		}
	}
	return false
}

func (s Service) Create(ctx context.Context, tx *sql.Tx, owner, actor string, in CreateInput) (domain.Relationship, error) {
	if err := s.Validate(in); err != nil {
		return domain.Relationship{}, err
	}
	rel, err := s.Store.CreateRelationship(ctx, tx, owner, lineage.NewRelationship{
		ParentAssetID:    in.ParentAssetID,
		ChildAssetID:     in.ChildAssetID,
		RelationshipType: in.RelationshipType,
		Notes:            in.Notes,
	})
	if err != nil {
		return domain.Relationship{}, err
	}
	if err := s.appendEdge(ctx, tx, events.RelationshipCreated, owner, actor, rel, ""); err != nil {
		return domain.Relationship{}, err
	}
	return rel, nil
}

func (s Service) Delete(ctx context.Context, tx *sql.Tx, owner, actor, parentID, childID string) (domain.Relationship, error) {
	parentID = strings.TrimSpace(parentID)
	childID = strings.TrimSpace(childID)
	if parentID == "" || childID == "" {
		return domain.Relationship{}, apperr.Validation("parent_asset_id and child_asset_id are required")
	}
	rel, err := s.Store.DeleteRelationship(ctx, tx, owner, parentID, childID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if err := s.appendEdge(ctx, tx, events.RelationshipDeleted, owner, actor, rel, ""); err != nil {
		return domain.Relationship{}, err
	}
	return rel, nil
}

func (s Service) appendEdge(ctx context.Context, tx *sql.Tx, evtType, owner, actor string, rel domain.Relationship, taskID string) error {
	payload := events.EventPayload{
		"parent_asset_id":   rel.ParentAssetID,
		"child_asset_id":    rel.ChildAssetID,
		"relationship_type": rel.RelationshipType,
	}
	if taskID != "" {
		payload["task_id"] = taskID
	}
	return s.Events.Append(ctx, tx, evtType, owner, "relationship", rel.ID, actor, payload)
}

// DerivedAssetInput describes the artifact a task produced. When AssetID is
// set the artifact is a new version of that existing asset, otherwise Asset
// describes a new asset.
type DerivedAssetInput struct {
	TaskID           *string
	ParentAssetIDs   []string
	AssetID          string
	Asset            lineage.NewAsset
	RelationshipType string
	Notes            *string
}

type DerivedAssetResult struct {
	Asset         domain.Asset          `json:"asset"`
	Version       domain.AssetVersion   `json:"version"`
	Relationships []domain.Relationship `json:"relationships"`
}

// LockKeys returns the per-asset lock keys RecordDerivedAsset touches.
func (in DerivedAssetInput) LockKeys() []string {
	keys := make([]string, 0, len(in.ParentAssetIDs)+1)
	if in.AssetID != "" {
		keys = append(keys, lineage.AssetKey(in.AssetID))
	}
	for _, id := range in.ParentAssetIDs {
		keys = append(keys, lineage.AssetKey(id))
	}
	return keys
}

func (s Service) validateDerived(in *DerivedAssetInput) error {
	if in.RelationshipType == "" {
		in.RelationshipType = domain.RelDerivedFrom
	}
	if !s.knownType(in.RelationshipType) {
		return apperr.Validation("unknown relationship_type %q", in.RelationshipType)
	}
	seen := make(map[string]bool, len(in.ParentAssetIDs))
	parents := make([]string, 0, len(in.ParentAssetIDs))
	for i, id := range in.ParentAssetIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return apperr.Validation("parent_asset_ids[%d] is empty", i)
		}
		if seen[id] {
			return apperr.Validation("parent asset %s listed twice", id)
		}
		seen[id] = true
		parents = append(parents, id)
	}
	in.ParentAssetIDs = parents
	if in.AssetID == "" {
		return in.Asset.Validate()
	}
	return nil
}

// RecordDerivedAsset writes the asset (or its next version) and one edge per
// parent on tx. Any failure leaves the caller to roll back, so none of the
// rows are ever observable on their own.
func (s Service) RecordDerivedAsset(ctx context.Context, tx *sql.Tx, owner, actor string, in DerivedAssetInput) (DerivedAssetResult, error) {
	if err := s.validateDerived(&in); err != nil {
		return DerivedAssetResult{}, err
	}
	taskID := ""
	if in.TaskID != nil {
		taskID = *in.TaskID
	}
	var (
		res DerivedAssetResult
		err error
	)
	if in.AssetID == "" {
		res.Asset, res.Version, err = s.Store.CreateAsset(ctx, tx, owner, in.Asset, in.TaskID, in.Notes)
		if err != nil {
			return DerivedAssetResult{}, err
		}
		if err := s.Events.Append(ctx, tx, events.AssetCreated, owner, "asset", res.Asset.ID, actor, events.EventPayload{
			"name": res.Asset.Name, "task_id": taskID,
		}); err != nil {
			return DerivedAssetResult{}, err
		}
	} else {
		res.Asset, err = s.Store.ActiveAsset(ctx, tx, owner, in.AssetID)
		if err != nil {
			return DerivedAssetResult{}, err
		}
		res.Version, err = s.Store.NextVersion(ctx, tx, res.Asset.ID, in.TaskID, in.Notes)
		if err != nil {
			return DerivedAssetResult{}, err
		}
	}
	if err := s.Events.Append(ctx, tx, events.AssetVersion, owner, "asset", res.Asset.ID, actor, events.EventPayload{
		"version_number": res.Version.VersionNumber, "task_id": taskID,
	}); err != nil {
		return DerivedAssetResult{}, err
	}

	res.Relationships = []domain.Relationship{}
	for _, parentID := range in.ParentAssetIDs {
		if in.AssetID != "" {
			existing, err := s.Store.Repo.GetRelationshipByPair(ctx, tx, parentID, res.Asset.ID)
			if err == nil {
				res.Relationships = append(res.Relationships, existing)
				continue
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return DerivedAssetResult{}, err
			}
		}
		rel, err := s.Store.CreateRelationship(ctx, tx, owner, lineage.NewRelationship{
			ParentAssetID:    parentID,
			ChildAssetID:     res.Asset.ID,
			RelationshipType: in.RelationshipType,
			Notes:            in.Notes,
		})
		if err != nil {
			return DerivedAssetResult{}, err
		}
		if err := s.appendEdge(ctx, tx, events.RelationshipCreated, owner, actor, rel, taskID); err != nil {
			return DerivedAssetResult{}, err
		}
		res.Relationships = append(res.Relationships, rel)
	}
	return res, nil
}
