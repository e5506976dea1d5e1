package repo

import (
	"context"
	"database/sql"

	"assetline/internal/domain"
)

const taskColumns = `t.id,t.workflow_id,t.execution_order,t.task_type,t.status,t.assigned_to,t.produced_asset_id,t.error_message,t.created_at,t.started_at,t.completed_at`

func scanTask(row scanner) (domain.WorkflowTask, error) {
	var t domain.WorkflowTask
	var assigned, produced, errMsg, started, completed sql.NullString
	err := row.Scan(&t.ID, &t.WorkflowID, &t.ExecutionOrder, &t.TaskType, &t.Status, &assigned, &produced, &errMsg, &t.CreatedAt, &started, &completed)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.AssignedTo = stringPtr(assigned)
	t.ProducedAssetID = stringPtr(produced)
	t.ErrorMessage = stringPtr(errMsg)
	t.StartedAt = stringPtr(started)
	t.CompletedAt = stringPtr(completed)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.WorkflowTask) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workflow_tasks(id,workflow_id,execution_order,task_type,status,assigned_to,produced_asset_id,error_message,created_at,started_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkflowID, t.ExecutionOrder, t.TaskType, t.Status, nullableStringPtr(t.AssignedTo), nullableStringPtr(t.ProducedAssetID),
		nullableStringPtr(t.ErrorMessage), t.CreatedAt, nullableStringPtr(t.StartedAt), nullableStringPtr(t.CompletedAt))
	return err
}

// GetTask returns the task only when its workflow is owned by userID.
func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, userID, id string) (domain.WorkflowTask, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM workflow_tasks t
JOIN workflows w ON w.id = t.workflow_id
WHERE t.id=? AND w.user_id=?`, id, userID))
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.WorkflowTask) error {
	return expectOne(r.q(tx).ExecContext(ctx, `UPDATE workflow_tasks SET status=?, assigned_to=?, produced_asset_id=?, error_message=?, started_at=?, completed_at=? WHERE id=?`,
		t.Status, nullableStringPtr(t.AssignedTo), nullableStringPtr(t.ProducedAssetID), nullableStringPtr(t.ErrorMessage),
		nullableStringPtr(t.StartedAt), nullableStringPtr(t.CompletedAt), t.ID))
}

// ListTasks returns the tasks of a workflow in execution order.
func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, workflowID string) ([]domain.WorkflowTask, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskColumns+` FROM workflow_tasks t
WHERE t.workflow_id=? ORDER BY t.execution_order, t.created_at, t.id`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkflowTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// NextExecutionOrder returns one past the highest execution_order in the workflow.
func (r Repo) NextExecutionOrder(ctx context.Context, tx *sql.Tx, workflowID string) (int, error) {
	var v int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(execution_order),0)+1 FROM workflow_tasks WHERE workflow_id=?`, workflowID).Scan(&v)
	return v, err
}
