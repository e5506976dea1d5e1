package repo

import (
	"context"
	"database/sql"
	"strings"

	"assetline/internal/domain"
)

const assetColumns = `id,user_id,project_id,folder_id,name,media_type,uri,metadata_json,status,created_at,updated_at`

func scanAsset(row scanner) (domain.Asset, error) {
	var a domain.Asset
	var project, folder, mediaType, uri, meta sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &project, &folder, &a.Name, &mediaType, &uri, &meta, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.ProjectID = stringPtr(project)
	a.FolderID = stringPtr(folder)
	a.MediaType = mediaType.String
	a.URI = uri.String
	a.MetadataJSON = stringPtr(meta)
	return a, nil
}

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO assets(`+assetColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, nullableStringPtr(a.ProjectID), nullableStringPtr(a.FolderID), a.Name, nullable(a.MediaType), nullable(a.URI),
		nullableStringPtr(a.MetadataJSON), a.Status, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetAsset returns the asset only when userID owns it.
func (r Repo) GetAsset(ctx context.Context, tx *sql.Tx, userID, id string) (domain.Asset, error) {
	return scanAsset(r.q(tx).QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=? AND user_id=?`, id, userID))
}

// GetAssetsByIDs returns owned assets for ids, keyed by id. Missing ids are absent.
func (r Repo) GetAssetsByIDs(ctx context.Context, tx *sql.Tx, userID string, ids []string) (map[string]domain.Asset, error) {
	res := make(map[string]domain.Asset, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE user_id=? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		res[a.ID] = a
	}
	return res, rows.Err()
}

type AssetFilters struct {
	UserID          string
	ProjectID       string
	FolderID        string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAssets(ctx context.Context, tx *sql.Tx, f AssetFilters) ([]domain.Asset, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.FolderID != "" {
		clauses = append(clauses, "folder_id=?")
		args = append(args, f.FolderID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	} else {
		clauses = append(clauses, "status<>'deleted'")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateAssetStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	return expectOne(r.q(tx).ExecContext(ctx, `UPDATE assets SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id))
}

// UpdateAssetMetadata rewrites the mutable descriptive fields of an asset.
func (r Repo) UpdateAssetMetadata(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	return expectOne(r.q(tx).ExecContext(ctx, `UPDATE assets SET name=?, media_type=?, uri=?, metadata_json=?, updated_at=? WHERE id=?`,
		a.Name, nullable(a.MediaType), nullable(a.URI), nullableStringPtr(a.MetadataJSON), a.UpdatedAt, a.ID))
}
