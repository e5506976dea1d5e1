package repo

import (
	"context"
	"database/sql"

	"assetline/internal/domain"
)

const relationshipColumns = `id,parent_asset_id,child_asset_id,relationship_type,notes,created_at`

func scanRelationship(row scanner) (domain.Relationship, error) {
	var rel domain.Relationship
	var notes sql.NullString
	err := row.Scan(&rel.ID, &rel.ParentAssetID, &rel.ChildAssetID, &rel.RelationshipType, &notes, &rel.CreatedAt)
	if err == sql.ErrNoRows {
		return rel, ErrNotFound
	}
	if err != nil {
		return rel, err
	}
	rel.Notes = stringPtr(notes)
	return rel, nil
}

func (r Repo) InsertRelationship(ctx context.Context, tx *sql.Tx, rel domain.Relationship) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO asset_relationships(`+relationshipColumns+`) VALUES (?,?,?,?,?,?)`,
		rel.ID, rel.ParentAssetID, rel.ChildAssetID, rel.RelationshipType, nullableStringPtr(rel.Notes), rel.CreatedAt)
	return err
}

// GetRelationshipByPair looks up the edge for the ordered pair.
func (r Repo) GetRelationshipByPair(ctx context.Context, tx *sql.Tx, parentID, childID string) (domain.Relationship, error) {
	return scanRelationship(r.q(tx).QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM asset_relationships WHERE parent_asset_id=? AND child_asset_id=?`, parentID, childID))
}

func (r Repo) DeleteRelationship(ctx context.Context, tx *sql.Tx, id string) error {
	return expectOne(r.q(tx).ExecContext(ctx, `DELETE FROM asset_relationships WHERE id=?`, id))
}

// ChildIDs returns the direct children of assetID, skipping deleted assets.
func (r Repo) ChildIDs(ctx context.Context, tx *sql.Tx, assetID string) ([]string, error) {
	return r.listIDs(ctx, tx, `SELECT r.child_asset_id FROM asset_relationships r
JOIN assets a ON a.id = r.child_asset_id
WHERE r.parent_asset_id=? AND a.status<>'deleted'
ORDER BY r.created_at, r.child_asset_id`, assetID)
}

// ParentIDs returns the direct parents of assetID, skipping deleted assets.
func (r Repo) ParentIDs(ctx context.Context, tx *sql.Tx, assetID string) ([]string, error) {
	return r.listIDs(ctx, tx, `SELECT r.parent_asset_id FROM asset_relationships r
JOIN assets a ON a.id = r.parent_asset_id
WHERE r.child_asset_id=? AND a.status<>'deleted'
ORDER BY r.created_at, r.parent_asset_id`, assetID)
}

func (r Repo) listIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListRelationshipsForAsset returns every edge touching assetID.
func (r Repo) ListRelationshipsForAsset(ctx context.Context, tx *sql.Tx, assetID string) ([]domain.Relationship, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+relationshipColumns+` FROM asset_relationships
WHERE parent_asset_id=? OR child_asset_id=? ORDER BY created_at, id`, assetID, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rel)
	}
	return res, rows.Err()
}

// EdgeRow is a relationship together with the state of both endpoints.
type EdgeRow struct {
	domain.Relationship
	ParentUserID string
	ParentStatus string
	ChildUserID  string
	ChildStatus  string
}

// ListEdgesForUser returns every edge with at least one endpoint owned by userID.
func (r Repo) ListEdgesForUser(ctx context.Context, tx *sql.Tx, userID string) ([]EdgeRow, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT r.id,r.parent_asset_id,r.child_asset_id,r.relationship_type,r.notes,r.created_at,
COALESCE(p.user_id,''),COALESCE(p.status,''),COALESCE(c.user_id,''),COALESCE(c.status,'')
FROM asset_relationships r
LEFT JOIN assets p ON p.id = r.parent_asset_id
LEFT JOIN assets c ON c.id = r.child_asset_id
WHERE p.user_id=? OR c.user_id=?
ORDER BY r.created_at, r.id`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EdgeRow
	for rows.Next() {
		var e EdgeRow
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.ParentAssetID, &e.ChildAssetID, &e.RelationshipType, &notes, &e.CreatedAt,
			&e.ParentUserID, &e.ParentStatus, &e.ChildUserID, &e.ChildStatus); err != nil {
			return nil, err
		}
		e.Notes = stringPtr(notes)
		res = append(res, e)
	}
	return res, rows.Err()
}
