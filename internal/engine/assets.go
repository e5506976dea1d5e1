package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"assetline/internal/apperr"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/lineage"
	"assetline/internal/repo"
)

// CreateAsset stores a new active asset together with its version 1.
func (e Engine) CreateAsset(ctx context.Context, userID string, in lineage.NewAsset) (domain.Asset, domain.AssetVersion, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Asset{}, domain.AssetVersion{}, err
	}
	if err := in.Validate(); err != nil {
		return domain.Asset{}, domain.AssetVersion{}, err
	}
	var (
		a domain.Asset
		v domain.AssetVersion
	)
	err := e.write(ctx, "create asset", nil, func(tx *sql.Tx) error {
		var err error
		a, v, err = e.Lineage.CreateAsset(ctx, tx, userID, in, nil, nil)
		if err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.AssetCreated, userID, "asset", a.ID, userID, events.EventPayload{"name": a.Name})
	})
	if err != nil {
		return domain.Asset{}, domain.AssetVersion{}, err
	}
	return a, v, nil
}

func (e Engine) GetAsset(ctx context.Context, userID, id string) (domain.Asset, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Asset{}, err
	}
	var a domain.Asset
	err := e.read(ctx, "get asset", func(tx *sql.Tx) error {
		var err error
		a, err = e.Lineage.OwnedAsset(ctx, tx, userID, id)
		return err
	})
	return a, err
}

// ListAssets returns the caller's assets, newest first.
func (e Engine) ListAssets(ctx context.Context, userID string, f repo.AssetFilters) ([]domain.Asset, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	if f.Status != "" && !validAssetStatus(f.Status) {
		return nil, apperr.Validation("invalid asset status %q", f.Status)
	}
	f.UserID = userID
	var res []domain.Asset
	err := e.read(ctx, "list assets", func(tx *sql.Tx) error {
		var err error
		res, err = e.Repo.ListAssets(ctx, tx, f)
		return err
	})
	return res, err
}

func validAssetStatus(s string) bool {
	return s == domain.AssetActive || s == domain.AssetArchived || s == domain.AssetDeleted
}

// SetAssetStatus archives, restores or soft-deletes an asset. Deleted assets
// cannot be changed again.
func (e Engine) SetAssetStatus(ctx context.Context, userID, id, status string) (domain.Asset, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Asset{}, err
	}
	if !validAssetStatus(status) {
		return domain.Asset{}, apperr.Validation("invalid asset status %q", status)
	}
	var a domain.Asset
	err := e.write(ctx, "set asset status", []string{lineage.AssetKey(id)}, func(tx *sql.Tx) error {
		var err error
		a, err = e.Lineage.OwnedAsset(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if a.Status == status {
			return nil
		}
		from := a.Status
		a.Status = status
		a.UpdatedAt = e.nowString()
		if err := e.Repo.UpdateAssetStatus(ctx, tx, a.ID, a.Status, a.UpdatedAt); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.AssetStatus, userID, "asset", a.ID, userID, events.EventPayload{"from": from, "to": status})
	})
	if err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

// AssetPatch carries the metadata fields to change. Nil fields are kept.
type AssetPatch struct {
	Name         *string
	MediaType    *string
	URI          *string
	MetadataJSON *string
}

func (e Engine) UpdateAssetMetadata(ctx context.Context, userID, id string, p AssetPatch) (domain.Asset, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Asset{}, err
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return domain.Asset{}, apperr.Validation("asset name cannot be empty")
	}
	if p.MetadataJSON != nil && *p.MetadataJSON != "" && !json.Valid([]byte(*p.MetadataJSON)) {
		return domain.Asset{}, apperr.Validation("metadata_json must be valid JSON")
	}
	var a domain.Asset
	err := e.write(ctx, "update asset", []string{lineage.AssetKey(id)}, func(tx *sql.Tx) error {
		var err error
		a, err = e.Lineage.OwnedAsset(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		var changed []string
		if p.Name != nil {
			a.Name = strings.TrimSpace(*p.Name)
			changed = append(changed, "name")
		}
		if p.MediaType != nil {
			a.MediaType = *p.MediaType
			changed = append(changed, "media_type")
		}
		if p.URI != nil {
			a.URI = *p.URI
			changed = append(changed, "uri")
		}
		if p.MetadataJSON != nil {
			a.MetadataJSON = p.MetadataJSON
			if *p.MetadataJSON == "" {
				a.MetadataJSON = nil
			}
			changed = append(changed, "metadata_json")
		}
		if len(changed) == 0 {
			return nil
		}
		a.UpdatedAt = e.nowString()
		if err := e.Repo.UpdateAssetMetadata(ctx, tx, a); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.AssetMetadata, userID, "asset", a.ID, userID, events.EventPayload{"fields": changed})
	})
	if err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

// RecordAssetVersion appends the next version of an active asset.
func (e Engine) RecordAssetVersion(ctx context.Context, userID, id string, notes *string) (domain.AssetVersion, error) {
	if err := requireCaller(userID); err != nil {
		return domain.AssetVersion{}, err
	}
	var v domain.AssetVersion
	err := e.write(ctx, "record asset version", []string{lineage.AssetKey(id)}, func(tx *sql.Tx) error {
		a, err := e.Lineage.ActiveAsset(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		v, err = e.Lineage.NextVersion(ctx, tx, a.ID, nil, notes)
		if err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.AssetVersion, userID, "asset", a.ID, userID, events.EventPayload{"version_number": v.VersionNumber})
	})
	if err != nil {
		return domain.AssetVersion{}, err
	}
	return v, nil
}

func (e Engine) ListVersions(ctx context.Context, userID, id string) ([]domain.AssetVersion, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	var res []domain.AssetVersion
	err := e.read(ctx, "list versions", func(tx *sql.Tx) error {
		if _, err := e.Lineage.OwnedAsset(ctx, tx, userID, id); err != nil {
			return err
		}
		var err error
		res, err = e.Repo.ListVersions(ctx, tx, id)
		return err
	})
	return res, err
}
