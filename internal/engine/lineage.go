package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"assetline/internal/domain"
	"assetline/internal/lineage"
	"assetline/internal/relationship"
)

func (e Engine) nowString() string {
	now := e.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// CreateRelationship adds parent -> child after validation, ownership,
// uniqueness and cycle checks, all inside one write transaction.
func (e Engine) CreateRelationship(ctx context.Context, userID string, in relationship.CreateInput) (domain.Relationship, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Relationship{}, err
	}
	in.ParentAssetID = strings.TrimSpace(in.ParentAssetID)
	in.ChildAssetID = strings.TrimSpace(in.ChildAssetID)
	if err := e.Relationships.Validate(in); err != nil {
		return domain.Relationship{}, err
	}
	var rel domain.Relationship
	keys := []string{lineage.AssetKey(in.ParentAssetID), lineage.AssetKey(in.ChildAssetID)}
	err := e.write(ctx, "create relationship", keys, func(tx *sql.Tx) error {
		var err error
		rel, err = e.Relationships.Create(ctx, tx, userID, userID, in)
		return err
	})
	if err != nil {
		return domain.Relationship{}, err
	}
	e.Log.Debug("relationship created", "user_id", userID, "parent", rel.ParentAssetID, "child", rel.ChildAssetID)
	return rel, nil
}

func (e Engine) DeleteRelationship(ctx context.Context, userID, parentID, childID string) (domain.Relationship, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Relationship{}, err
	}
	parentID = strings.TrimSpace(parentID)
	childID = strings.TrimSpace(childID)
	var rel domain.Relationship
	keys := []string{lineage.AssetKey(parentID), lineage.AssetKey(childID)}
	err := e.write(ctx, "delete relationship", keys, func(tx *sql.Tx) error {
		var err error
		rel, err = e.Relationships.Delete(ctx, tx, userID, userID, parentID, childID)
		return err
	})
	return rel, err
}

// ListAssetRelationships returns every edge touching an owned asset.
func (e Engine) ListAssetRelationships(ctx context.Context, userID, assetID string) ([]domain.Relationship, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	var res []domain.Relationship
	err := e.read(ctx, "list relationships", func(tx *sql.Tx) error {
		if _, err := e.Lineage.OwnedAsset(ctx, tx, userID, assetID); err != nil {
			return err
		}
		var err error
		res, err = e.Repo.ListRelationshipsForAsset(ctx, tx, assetID)
		return err
	})
	return res, err
}

func (e Engine) Ancestors(ctx context.Context, userID, assetID string, maxDepth int) ([]lineage.Node, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	var res []lineage.Node
	err := e.read(ctx, "ancestors", func(tx *sql.Tx) error {
		var err error
		res, err = e.Lineage.Ancestors(ctx, tx, userID, assetID, maxDepth)
		return err
	})
	return res, err
}

func (e Engine) Descendants(ctx context.Context, userID, assetID string, maxDepth int) ([]lineage.Node, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	var res []lineage.Node
	err := e.read(ctx, "descendants", func(tx *sql.Tx) error {
		var err error
		res, err = e.Lineage.Descendants(ctx, tx, userID, assetID, maxDepth)
		return err
	})
	return res, err
}

// AuditLineage re-checks the caller's whole edge set.
func (e Engine) AuditLineage(ctx context.Context, userID string) (lineage.AuditReport, error) {
	if err := requireCaller(userID); err != nil {
		return lineage.AuditReport{}, err
	}
	var report lineage.AuditReport
	err := e.read(ctx, "audit lineage", func(tx *sql.Tx) error {
		var err error
		report, err = e.Lineage.Audit(ctx, tx, userID)
		return err
	})
	if err == nil && !report.OK() {
		e.Log.Warn("lineage audit found problems", "user_id", userID,
			"cycles", len(report.Cycles), "dangling", len(report.Dangling), "duplicates", len(report.Duplicates))
	}
	return report, err
}
