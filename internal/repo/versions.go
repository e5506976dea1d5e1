package repo

import (
	"context"
	"database/sql"

	"assetline/internal/domain"
)

// MaxVersion returns the highest recorded version of assetID, 0 when none.
func (r Repo) MaxVersion(ctx context.Context, tx *sql.Tx, assetID string) (int, error) {
	var v int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(version_number),0) FROM asset_versions WHERE asset_id=?`, assetID).Scan(&v)
	return v, err
}

func (r Repo) InsertVersion(ctx context.Context, tx *sql.Tx, v domain.AssetVersion) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO asset_versions(asset_id,version_number,task_id,notes,created_at) VALUES (?,?,?,?,?)`,
		v.AssetID, v.VersionNumber, nullableStringPtr(v.TaskID), nullableStringPtr(v.Notes), v.CreatedAt)
	return err
}

func (r Repo) ListVersions(ctx context.Context, tx *sql.Tx, assetID string) ([]domain.AssetVersion, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT asset_id,version_number,task_id,notes,created_at FROM asset_versions
WHERE asset_id=? ORDER BY version_number`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AssetVersion
	for rows.Next() {
		var v domain.AssetVersion
		var task, notes sql.NullString
		if err := rows.Scan(&v.AssetID, &v.VersionNumber, &task, &notes, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.TaskID = stringPtr(task)
		v.Notes = stringPtr(notes)
		res = append(res, v)
	}
	return res, rows.Err()
}
