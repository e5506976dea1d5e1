package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"assetline/internal/apperr"
	"assetline/internal/domain"
	"assetline/internal/lineage"
	"assetline/internal/progress"
	"assetline/internal/relationship"
	"assetline/internal/repo"
	"assetline/internal/workflow"
)

func (e Engine) CreateWorkflow(ctx context.Context, userID string, in workflow.NewWorkflow) (domain.Workflow, []domain.WorkflowTask, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Workflow{}, nil, err
	}
	var (
		w     domain.Workflow
		tasks []domain.WorkflowTask
	)
	err := e.write(ctx, "create workflow", nil, func(tx *sql.Tx) error {
		var err error
		w, tasks, err = e.Workflows.CreateWorkflow(ctx, tx, userID, userID, in)
		return err
	})
	if err != nil {
		return domain.Workflow{}, nil, err
	}
	e.Log.Info("workflow created", "user_id", userID, "workflow_id", w.ID, "tasks", len(tasks))
	return w, tasks, nil
}

// GetWorkflow returns an owned workflow and its tasks in execution order.
func (e Engine) GetWorkflow(ctx context.Context, userID, id string) (domain.Workflow, []domain.WorkflowTask, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Workflow{}, nil, err
	}
	var (
		w     domain.Workflow
		tasks []domain.WorkflowTask
	)
	err := e.read(ctx, "get workflow", func(tx *sql.Tx) error {
		var err error
		if w, err = e.Workflows.GetOwned(ctx, tx, userID, id); err != nil {
			return err
		}
		tasks, err = e.Repo.ListTasks(ctx, tx, w.ID)
		return err
	})
	if err != nil {
		return domain.Workflow{}, nil, err
	}
	return w, tasks, nil
}

func (e Engine) ListWorkflows(ctx context.Context, userID string, f repo.WorkflowFilters) ([]domain.Workflow, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	if f.Status != "" && !workflow.ValidWorkflowStatus(f.Status) {
		return nil, apperr.Validation("invalid workflow status %q", f.Status)
	}
	f.UserID = userID
	var res []domain.Workflow
	err := e.read(ctx, "list workflows", func(tx *sql.Tx) error {
		var err error
		res, err = e.Repo.ListWorkflows(ctx, tx, f)
		return err
	})
	return res, err
}

func (e Engine) DeleteWorkflow(ctx context.Context, userID, id string) error {
	if err := requireCaller(userID); err != nil {
		return err
	}
	return e.write(ctx, "delete workflow", []string{lineage.WorkflowKey(id)}, func(tx *sql.Tx) error {
		return e.Workflows.DeleteWorkflow(ctx, tx, userID, userID, id)
	})
}

func (e Engine) AddTask(ctx context.Context, userID, workflowID string, in workflow.NewTask) (domain.WorkflowTask, error) {
	if err := requireCaller(userID); err != nil {
		return domain.WorkflowTask{}, err
	}
	var t domain.WorkflowTask
	err := e.write(ctx, "add task", []string{lineage.WorkflowKey(workflowID)}, func(tx *sql.Tx) error {
		var err error
		t, err = e.Workflows.AddTask(ctx, tx, userID, userID, workflowID, in)
		return err
	})
	return t, err
}

// TaskUpdateOptions are parameters for a task status change.
type TaskUpdateOptions struct {
	TaskID       string
	Status       string
	ErrorMessage *string
	AssignedTo   *string
	// Derived declares the artifact produced by a completing task.
	Derived *relationship.DerivedAssetInput
	// ActorID is who performed the change; defaults to the owner.
	ActorID string
}

// UpdateTaskStatus applies one task transition. The workflow and every asset
// the derived artifact touches stay locked for the whole transaction.
func (e Engine) UpdateTaskStatus(ctx context.Context, userID string, opts TaskUpdateOptions) (workflow.TaskTransitionResult, error) {
	if err := requireCaller(userID); err != nil {
		return workflow.TaskTransitionResult{}, err
	}
	actor := opts.ActorID
	if actor == "" {
		actor = userID
	}
	keys := []string{"task:" + opts.TaskID}
	if t, err := e.Repo.GetTask(ctx, nil, userID, opts.TaskID); err == nil {
		keys = append(keys, lineage.WorkflowKey(t.WorkflowID))
	} else if !errors.Is(err, repo.ErrNotFound) {
		return workflow.TaskTransitionResult{}, e.normalize("update task", err)
	}
	if opts.Derived != nil {
		keys = append(keys, opts.Derived.LockKeys()...)
	}
	var res workflow.TaskTransitionResult
	err := e.write(ctx, "update task", keys, func(tx *sql.Tx) error {
		var err error
		res, err = e.Workflows.TransitionTask(ctx, tx, userID, actor, workflow.TaskTransition{
			TaskID:       opts.TaskID,
			Status:       opts.Status,
			ErrorMessage: opts.ErrorMessage,
			AssignedTo:   opts.AssignedTo,
			Derived:      opts.Derived,
		})
		return err
	})
	if err != nil {
		return workflow.TaskTransitionResult{}, err
	}
	e.Log.Debug("task transitioned", "user_id", userID, "task_id", res.Task.ID, "status", res.Task.Status)
	return res, nil
}

func (e Engine) SetWorkflowStatus(ctx context.Context, userID string, in workflow.WorkflowTransition) (domain.Workflow, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Workflow{}, err
	}
	var w domain.Workflow
	err := e.write(ctx, "set workflow status", []string{lineage.WorkflowKey(in.WorkflowID)}, func(tx *sql.Tx) error {
		var err error
		w, err = e.Workflows.SetStatus(ctx, tx, userID, userID, in)
		return err
	})
	return w, err
}

// RecomputeWorkflowStatus derives the stored status from the current tasks.
// It only runs when a caller asks for it.
func (e Engine) RecomputeWorkflowStatus(ctx context.Context, userID, workflowID string) (domain.Workflow, bool, error) {
	if err := requireCaller(userID); err != nil {
		return domain.Workflow{}, false, err
	}
	var (
		w       domain.Workflow
		changed bool
	)
	err := e.write(ctx, "recompute workflow", []string{lineage.WorkflowKey(workflowID)}, func(tx *sql.Tx) error {
		var err error
		w, changed, err = e.Workflows.Recompute(ctx, tx, userID, userID, workflowID)
		return err
	})
	return w, changed, err
}

// WorkflowStatusView is a workflow with its tasks and derived progress.
type WorkflowStatusView struct {
	Workflow   domain.Workflow       `json:"workflow"`
	Progress   domain.Progress       `json:"progress"`
	Tasks      []domain.WorkflowTask `json:"tasks"`
	ResultData json.RawMessage       `json:"result_data"`
}

// WorkflowStatus reads the workflow and its tasks from one snapshot and
// derives progress from those rows.
func (e Engine) WorkflowStatus(ctx context.Context, userID, workflowID string) (WorkflowStatusView, error) {
	w, tasks, err := e.GetWorkflow(ctx, userID, workflowID)
	if err != nil {
		return WorkflowStatusView{}, err
	}
	if tasks == nil {
		tasks = []domain.WorkflowTask{}
	}
	view := WorkflowStatusView{Workflow: w, Progress: progress.Compute(tasks), Tasks: tasks}
	if w.ResultDataJSON != nil {
		view.ResultData = json.RawMessage(*w.ResultDataJSON)
	}
	return view, nil
}
