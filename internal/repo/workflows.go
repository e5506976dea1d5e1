package repo

import (
	"context"
	"database/sql"
	"strings"

	"assetline/internal/domain"
)

const workflowColumns = `id,user_id,name,status,priority,assigned_to,result_data_json,error_message,created_at,updated_at,completed_at`

func scanWorkflow(row scanner) (domain.Workflow, error) {
	var w domain.Workflow
	var assigned, result, errMsg, completed sql.NullString
	err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Status, &w.Priority, &assigned, &result, &errMsg, &w.CreatedAt, &w.UpdatedAt, &completed)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.AssignedTo = stringPtr(assigned)
	w.ResultDataJSON = stringPtr(result)
	w.ErrorMessage = stringPtr(errMsg)
	w.CompletedAt = stringPtr(completed)
	return w, nil
}

func (r Repo) InsertWorkflow(ctx context.Context, tx *sql.Tx, w domain.Workflow) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workflows(`+workflowColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.UserID, w.Name, w.Status, w.Priority, nullableStringPtr(w.AssignedTo), nullableStringPtr(w.ResultDataJSON),
		nullableStringPtr(w.ErrorMessage), w.CreatedAt, w.UpdatedAt, nullableStringPtr(w.CompletedAt))
	return err
}

// GetWorkflow returns the workflow only when userID owns it.
func (r Repo) GetWorkflow(ctx context.Context, tx *sql.Tx, userID, id string) (domain.Workflow, error) {
	return scanWorkflow(r.q(tx).QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id=? AND user_id=?`, id, userID))
}

// UpdateWorkflow persists every mutable column of w.
func (r Repo) UpdateWorkflow(ctx context.Context, tx *sql.Tx, w domain.Workflow) error {
	return expectOne(r.q(tx).ExecContext(ctx, `UPDATE workflows SET name=?, status=?, priority=?, assigned_to=?, result_data_json=?, error_message=?, updated_at=?, completed_at=? WHERE id=?`,
		w.Name, w.Status, w.Priority, nullableStringPtr(w.AssignedTo), nullableStringPtr(w.ResultDataJSON), nullableStringPtr(w.ErrorMessage),
		w.UpdatedAt, nullableStringPtr(w.CompletedAt), w.ID))
}

// DeleteWorkflow removes the workflow; its tasks go with it.
func (r Repo) DeleteWorkflow(ctx context.Context, tx *sql.Tx, id string) error {
	return expectOne(r.q(tx).ExecContext(ctx, `DELETE FROM workflows WHERE id=?`, id))
}

type WorkflowFilters struct {
	UserID          string
	Status          string
	AssignedTo      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListWorkflows(ctx context.Context, tx *sql.Tx, f WorkflowFilters) ([]domain.Workflow, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
