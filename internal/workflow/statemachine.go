// Package workflow holds the workflow and task lifecycles.
package workflow

import (
	"assetline/internal/apperr"
	"assetline/internal/domain"
)

func IsTerminalWorkflow(status string) bool {
	switch status {
	case domain.WorkflowCompleted, domain.WorkflowFailed, domain.WorkflowCancelled:
		return true
	}
	return false
}

func IsTerminalTask(status string) bool {
	return status == domain.TaskCompleted || status == domain.TaskFailed
}

// ValidWorkflowStatus reports whether status is a known workflow status.
func ValidWorkflowStatus(status string) bool {
	switch status {
	case domain.WorkflowPending, domain.WorkflowInProgress, domain.WorkflowCompleted, domain.WorkflowFailed, domain.WorkflowCancelled:
		return true
	}
	return false
}

// ValidTaskStatus reports whether status is a known task status.
func ValidTaskStatus(status string) bool {
	switch status {
	case domain.TaskPending, domain.TaskInProgress, domain.TaskCompleted, domain.TaskFailed:
		return true
	}
	return false
}

// CheckTaskTransition enforces pending -> in_progress -> {completed, failed}.
func CheckTaskTransition(from, to string) error {
	if !ValidTaskStatus(to) {
		return apperr.Validation("invalid task status %q", to)
	}
	if IsTerminalTask(from) {
		return apperr.AlreadyTerminal("task is already %s", from)
	}
	switch {
	case from == domain.TaskPending && to == domain.TaskInProgress:
		return nil
	case from == domain.TaskInProgress && IsTerminalTask(to):
		return nil
	case from == domain.TaskPending && IsTerminalTask(to):
		return apperr.InvalidTransition("task must be in_progress before it can be %s", to)
	}
	return apperr.InvalidTransition("task cannot move from %s to %s", from, to)
}

// CheckWorkflowTransition enforces pending -> in_progress -> {completed,
// failed, cancelled}. A pending workflow may also be cancelled outright.
func CheckWorkflowTransition(from, to string) error {
	if !ValidWorkflowStatus(to) {
		return apperr.Validation("invalid workflow status %q", to)
	}
	if IsTerminalWorkflow(from) {
		return apperr.AlreadyTerminal("workflow is already %s", from)
	}
	switch {
	case from == domain.WorkflowPending && (to == domain.WorkflowInProgress || to == domain.WorkflowCancelled):
		return nil
	case from == domain.WorkflowInProgress && IsTerminalWorkflow(to):
		return nil
	case from == domain.WorkflowPending && IsTerminalWorkflow(to):
		return apperr.InvalidTransition("workflow must be in_progress before it can be %s", to)
	}
	return apperr.InvalidTransition("workflow cannot move from %s to %s", from, to)
}

// ApplyTaskStatus moves t to status and stamps started_at/completed_at.
// It does not validate; callers must pass CheckTaskTransition first, which
// guarantees a terminal status is only reached from in_progress.
func ApplyTaskStatus(t *domain.WorkflowTask, status, now string, errMsg *string) {
	t.Status = status
	switch {
	case status == domain.TaskInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case IsTerminalTask(status):
		done := now
		if t.StartedAt != nil && done < *t.StartedAt {
			done = *t.StartedAt
		}
		if t.CompletedAt == nil {
			t.CompletedAt = &done
		}
	}
	if status == domain.TaskFailed {
		t.ErrorMessage = errMsg
	}
}

// ApplyWorkflowStatus moves w to status. completed_at is stamped once, on
// the first terminal entry.
func ApplyWorkflowStatus(w *domain.Workflow, status, now string) {
	w.Status = status
	w.UpdatedAt = now
	if IsTerminalWorkflow(status) && w.CompletedAt == nil {
		w.CompletedAt = &now
	}
}

// Recompute derives a workflow status from its tasks: completed when every
// task completed, failed when any failed and none are still open, otherwise
// in_progress. ok is false for an empty task list.
func Recompute(tasks []domain.WorkflowTask) (status string, ok bool) {
	if len(tasks) == 0 {
		return "", false
	}
	var completed, failed, open int
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskCompleted:
			completed++
		case domain.TaskFailed:
			failed++
		default:
			open++
		}
	}
	switch {
	case completed == len(tasks):
		return domain.WorkflowCompleted, true
	case failed > 0 && open == 0:
		return domain.WorkflowFailed, true
	default:
		return domain.WorkflowInProgress, true
	}
}
