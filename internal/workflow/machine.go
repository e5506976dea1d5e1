package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetline/internal/apperr"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/relationship"
	"assetline/internal/repo"
)

// Machine applies workflow and task transitions on a caller's transaction.
type Machine struct {
	Repo          repo.Repo
	Events        events.Writer
	Relationships relationship.Service
	// DefaultPriority is used when a new workflow does not set one.
	DefaultPriority int
	Now             func() time.Time
}

func (m Machine) now() string {
	now := m.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

type NewTask struct {
	TaskType       string  `json:"task_type"`
	ExecutionOrder *int    `json:"execution_order,omitempty"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
}

type NewWorkflow struct {
	Name       string    `json:"name"`
	Priority   *int      `json:"priority,omitempty"`
	AssignedTo *string   `json:"assigned_to,omitempty"`
	Tasks      []NewTask `json:"tasks,omitempty"`
}

// GetOwned loads a workflow, reporting another user's workflow as missing.
func (m Machine) GetOwned(ctx context.Context, tx *sql.Tx, owner, id string) (domain.Workflow, error) {
	w, err := m.Repo.GetWorkflow(ctx, tx, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return w, apperr.NotFound("workflow %s not found", id)
	}
	return w, err
}

func (m Machine) getOwnedTask(ctx context.Context, tx *sql.Tx, owner, id string) (domain.WorkflowTask, error) {
	t, err := m.Repo.GetTask(ctx, tx, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, apperr.NotFound("task %s not found", id)
	}
	return t, err
}

func (m Machine) CreateWorkflow(ctx context.Context, tx *sql.Tx, owner, actor string, in NewWorkflow) (domain.Workflow, []domain.WorkflowTask, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Workflow{}, nil, apperr.Validation("workflow name is required")
	}
	for i, t := range in.Tasks {
		if strings.TrimSpace(t.TaskType) == "" {
			return domain.Workflow{}, nil, apperr.Validation("tasks[%d].task_type is required", i)
		}
	}
	ts := m.now()
	w := domain.Workflow{
		ID:         uuid.NewString(),
		UserID:     owner,
		Name:       name,
		Status:     domain.WorkflowPending,
		Priority:   m.DefaultPriority,
		AssignedTo: in.AssignedTo,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if in.Priority != nil {
		w.Priority = *in.Priority
	}
	if err := m.Repo.InsertWorkflow(ctx, tx, w); err != nil {
		return domain.Workflow{}, nil, err
	}
	if err := m.Events.Append(ctx, tx, events.WorkflowCreated, owner, "workflow", w.ID, actor, events.EventPayload{
		"name": w.Name, "status": w.Status, "tasks": len(in.Tasks),
	}); err != nil {
		return domain.Workflow{}, nil, err
	}
	tasks := make([]domain.WorkflowTask, 0, len(in.Tasks))
	for i, nt := range in.Tasks {
		order := i + 1
		if nt.ExecutionOrder != nil {
			order = *nt.ExecutionOrder
		}
		t, err := m.insertTask(ctx, tx, owner, actor, w.ID, order, nt, ts)
		if err != nil {
			return domain.Workflow{}, nil, err
		}
		tasks = append(tasks, t)
	}
	return w, tasks, nil
}

// AddTask appends a pending task. Terminal workflows accept no new tasks.
func (m Machine) AddTask(ctx context.Context, tx *sql.Tx, owner, actor, workflowID string, in NewTask) (domain.WorkflowTask, error) {
	if strings.TrimSpace(in.TaskType) == "" {
		return domain.WorkflowTask{}, apperr.Validation("task_type is required")
	}
	w, err := m.GetOwned(ctx, tx, owner, workflowID)
	if err != nil {
		return domain.WorkflowTask{}, err
	}
	if IsTerminalWorkflow(w.Status) {
		return domain.WorkflowTask{}, apperr.AlreadyTerminal("workflow %s is already %s", w.ID, w.Status)
	}
	var order int
	if in.ExecutionOrder != nil {
		order = *in.ExecutionOrder
	} else if order, err = m.Repo.NextExecutionOrder(ctx, tx, w.ID); err != nil {
		return domain.WorkflowTask{}, err
	}
	return m.insertTask(ctx, tx, owner, actor, w.ID, order, in, m.now())
}

func (m Machine) insertTask(ctx context.Context, tx *sql.Tx, owner, actor, workflowID string, order int, in NewTask, ts string) (domain.WorkflowTask, error) {
	t := domain.WorkflowTask{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		ExecutionOrder: order,
		TaskType:       strings.TrimSpace(in.TaskType),
		Status:         domain.TaskPending,
		AssignedTo:     in.AssignedTo,
		CreatedAt:      ts,
	}
	if err := m.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.WorkflowTask{}, err
	}
	if err := m.Events.Append(ctx, tx, events.TaskCreated, owner, "task", t.ID, actor, events.EventPayload{
		"workflow_id": workflowID, "task_type": t.TaskType, "execution_order": order,
	}); err != nil {
		return domain.WorkflowTask{}, err
	}
	return t, nil
}

func (m Machine) DeleteWorkflow(ctx context.Context, tx *sql.Tx, owner, actor, id string) error {
	w, err := m.GetOwned(ctx, tx, owner, id)
	if err != nil {
		return err
	}
	if err := m.Repo.DeleteWorkflow(ctx, tx, w.ID); err != nil {
		return err
	}
	return m.Events.Append(ctx, tx, events.WorkflowDeleted, owner, "workflow", w.ID, actor, events.EventPayload{"status": w.Status})
}

// TaskTransition requests a task status change. Derived may only accompany
// a transition into completed.
type TaskTransition struct {
	TaskID       string
	Status       string
	ErrorMessage *string
	AssignedTo   *string
	Derived      *relationship.DerivedAssetInput
}

type TaskTransitionResult struct {
	Task     domain.WorkflowTask              `json:"task"`
	Workflow domain.Workflow                  `json:"workflow"`
	Derived  *relationship.DerivedAssetResult `json:"derived,omitempty"`
}

// TransitionTask validates and applies a task transition. Starting a task
// moves a pending workflow to in_progress. Completing a task that declares
// a derived asset records the asset, its version and its edges first; if
// that fails the task is left untouched.
func (m Machine) TransitionTask(ctx context.Context, tx *sql.Tx, owner, actor string, in TaskTransition) (TaskTransitionResult, error) {
	if in.Derived != nil && in.Status != domain.TaskCompleted {
		return TaskTransitionResult{}, apperr.Validation("a derived asset can only be recorded when completing a task")
	}
	if in.ErrorMessage != nil && in.Status != domain.TaskFailed {
		return TaskTransitionResult{}, apperr.Validation("error_message is only accepted when failing a task")
	}
	t, err := m.getOwnedTask(ctx, tx, owner, in.TaskID)
	if err != nil {
		return TaskTransitionResult{}, err
	}
	w, err := m.GetOwned(ctx, tx, owner, t.WorkflowID)
	if err != nil {
		return TaskTransitionResult{}, err
	}
	if err := CheckTaskTransition(t.Status, in.Status); err != nil {
		return TaskTransitionResult{}, err
	}
	now := m.now()
	res := TaskTransitionResult{}

	if in.Status == domain.TaskInProgress {
		if IsTerminalWorkflow(w.Status) {
			return TaskTransitionResult{}, apperr.AlreadyTerminal("workflow %s is already %s", w.ID, w.Status)
		}
		if w.Status == domain.WorkflowPending {
			if err := m.setWorkflowStatus(ctx, tx, owner, actor, &w, domain.WorkflowInProgress, now, "task.started"); err != nil {
				return TaskTransitionResult{}, err
			}
		}
	}

	if in.Derived != nil {
		derived := *in.Derived
		derived.TaskID = &t.ID
		out, err := m.Relationships.RecordDerivedAsset(ctx, tx, owner, actor, derived)
		if err != nil {
			return TaskTransitionResult{}, err
		}
		t.ProducedAssetID = &out.Asset.ID
		res.Derived = &out
	}

	from := t.Status
	if in.AssignedTo != nil {
		t.AssignedTo = in.AssignedTo
	}
	ApplyTaskStatus(&t, in.Status, now, in.ErrorMessage)
	if err := m.Repo.UpdateTask(ctx, tx, t); err != nil {
		return TaskTransitionResult{}, err
	}
	payload := events.EventPayload{"workflow_id": t.WorkflowID, "from": from, "to": t.Status}
	if t.ProducedAssetID != nil {
		payload["produced_asset_id"] = *t.ProducedAssetID
	}
	if err := m.Events.Append(ctx, tx, events.TaskStatus, owner, "task", t.ID, actor, payload); err != nil {
		return TaskTransitionResult{}, err
	}
	res.Task = t
	res.Workflow = w
	return res, nil
}

// WorkflowTransition requests an explicit workflow status change.
// ResultDataJSON is accepted only on completion and ErrorMessage only on
// failure.
type WorkflowTransition struct {
	WorkflowID     string
	Status         string
	ResultDataJSON *string
	ErrorMessage   *string
}

func (m Machine) SetStatus(ctx context.Context, tx *sql.Tx, owner, actor string, in WorkflowTransition) (domain.Workflow, error) {
	if in.ResultDataJSON != nil && in.Status != domain.WorkflowCompleted {
		return domain.Workflow{}, apperr.Validation("result_data is only accepted when completing a workflow")
	}
	if in.ResultDataJSON != nil && !json.Valid([]byte(*in.ResultDataJSON)) {
		return domain.Workflow{}, apperr.Validation("result_data must be valid JSON")
	}
	if in.ErrorMessage != nil && in.Status != domain.WorkflowFailed {
		return domain.Workflow{}, apperr.Validation("error_message is only accepted when failing a workflow")
	}
	w, err := m.GetOwned(ctx, tx, owner, in.WorkflowID)
	if err != nil {
		return domain.Workflow{}, err
	}
	if err := CheckWorkflowTransition(w.Status, in.Status); err != nil {
		return domain.Workflow{}, err
	}
	if in.ResultDataJSON != nil {
		w.ResultDataJSON = in.ResultDataJSON
	}
	if in.ErrorMessage != nil {
		w.ErrorMessage = in.ErrorMessage
	}
	if err := m.setWorkflowStatus(ctx, tx, owner, actor, &w, in.Status, m.now(), "explicit"); err != nil {
		return domain.Workflow{}, err
	}
	return w, nil
}

// Recompute sets the stored status from the current tasks. changed is false
// when the workflow has no tasks or already holds the derived status.
func (m Machine) Recompute(ctx context.Context, tx *sql.Tx, owner, actor, workflowID string) (w domain.Workflow, changed bool, err error) {
	w, err = m.GetOwned(ctx, tx, owner, workflowID)
	if err != nil {
		return w, false, err
	}
	if IsTerminalWorkflow(w.Status) {
		return w, false, apperr.AlreadyTerminal("workflow %s is already %s", w.ID, w.Status)
	}
	tasks, err := m.Repo.ListTasks(ctx, tx, w.ID)
	if err != nil {
		return w, false, err
	}
	status, ok := Recompute(tasks)
	if !ok || status == w.Status {
		return w, false, nil
	}
	if err := m.setWorkflowStatus(ctx, tx, owner, actor, &w, status, m.now(), "recompute"); err != nil {
		return w, false, err
	}
	return w, true, nil
}

func (m Machine) setWorkflowStatus(ctx context.Context, tx *sql.Tx, owner, actor string, w *domain.Workflow, status, now, reason string) error {
	from := w.Status
	ApplyWorkflowStatus(w, status, now)
	if err := m.Repo.UpdateWorkflow(ctx, tx, *w); err != nil {
		return err
	}
	return m.Events.Append(ctx, tx, events.WorkflowStatus, owner, "workflow", w.ID, actor, events.EventPayload{
		"from": from, "to": status, "reason": reason,
	})
}
