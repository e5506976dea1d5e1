package lineage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"assetline/internal/apperr"
	"assetline/internal/domain"
)

// NewAsset holds the caller-supplied attributes of an asset being created.
type NewAsset struct {
	ProjectID    *string
	FolderID     *string
	Name         string
	MediaType    string
	URI          string
	MetadataJSON *string
}

func (a NewAsset) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return apperr.Validation("asset name is required")
	}
	if a.MetadataJSON != nil && *a.MetadataJSON != "" && !json.Valid([]byte(*a.MetadataJSON)) {
		return apperr.Validation("metadata_json must be valid JSON")
	}
	return nil
}

// CreateAsset inserts an active asset owned by owner and records its first
// version. taskID links the version to the producing task when set.
func (s Store) CreateAsset(ctx context.Context, tx *sql.Tx, owner string, in NewAsset, taskID, notes *string) (domain.Asset, domain.AssetVersion, error) {
	if err := in.Validate(); err != nil {
		return domain.Asset{}, domain.AssetVersion{}, err
	}
	ts := s.now()
	a := domain.Asset{
		ID:           uuid.NewString(),
		UserID:       owner,
		ProjectID:    in.ProjectID,
		FolderID:     in.FolderID,
		Name:         strings.TrimSpace(in.Name),
		MediaType:    in.MediaType,
		URI:          in.URI,
		MetadataJSON: in.MetadataJSON,
		Status:       domain.AssetActive,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.Repo.InsertAsset(ctx, tx, a); err != nil {
		return domain.Asset{}, domain.AssetVersion{}, err
	}
	v, err := s.NextVersion(ctx, tx, a.ID, taskID, notes)
	if err != nil {
		return domain.Asset{}, domain.AssetVersion{}, err
	}
	return a, v, nil
}
