package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetline/internal/apperr"
	"assetline/internal/domain"
)

func TestCheckTaskTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     error
	}{
		{domain.TaskPending, domain.TaskInProgress, nil},
		{domain.TaskInProgress, domain.TaskCompleted, nil},
		{domain.TaskInProgress, domain.TaskFailed, nil},
		{domain.TaskPending, domain.TaskCompleted, apperr.ErrInvalidTransition},
		{domain.TaskPending, domain.TaskFailed, apperr.ErrInvalidTransition},
		{domain.TaskInProgress, domain.TaskPending, apperr.ErrInvalidTransition},
		{domain.TaskInProgress, domain.TaskInProgress, apperr.ErrInvalidTransition},
		{domain.TaskCompleted, domain.TaskFailed, apperr.ErrAlreadyTerminal},
		{domain.TaskFailed, domain.TaskInProgress, apperr.ErrAlreadyTerminal},
		{domain.TaskCompleted, domain.TaskCompleted, apperr.ErrAlreadyTerminal},
		{domain.TaskPending, "done", apperr.ErrValidation},
	}
	for _, tc := range cases {
		err := CheckTaskTransition(tc.from, tc.to)
		if tc.want == nil {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		assert.ErrorIs(t, err, tc.want, "%s -> %s", tc.from, tc.to)
	}
}

func TestCheckWorkflowTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     error
	}{
		{domain.WorkflowPending, domain.WorkflowInProgress, nil},
		{domain.WorkflowPending, domain.WorkflowCancelled, nil},
		{domain.WorkflowInProgress, domain.WorkflowCompleted, nil},
		{domain.WorkflowInProgress, domain.WorkflowFailed, nil},
		{domain.WorkflowInProgress, domain.WorkflowCancelled, nil},
		{domain.WorkflowPending, domain.WorkflowCompleted, apperr.ErrInvalidTransition},
		{domain.WorkflowInProgress, domain.WorkflowPending, apperr.ErrInvalidTransition},
		{domain.WorkflowCompleted, domain.WorkflowCompleted, apperr.ErrAlreadyTerminal},
		{domain.WorkflowCancelled, domain.WorkflowInProgress, apperr.ErrAlreadyTerminal},
		{domain.WorkflowFailed, domain.WorkflowCompleted, apperr.ErrAlreadyTerminal},
		{domain.WorkflowPending, "paused", apperr.ErrValidation},
	}
	for _, tc := range cases {
		err := CheckWorkflowTransition(tc.from, tc.to)
		if tc.want == nil {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		assert.ErrorIs(t, err, tc.want, "%s -> %s", tc.from, tc.to)
	}
}

func TestApplyTaskStatusStampsOnce(t *testing.T) {
	task := domain.WorkflowTask{Status: domain.TaskPending}
	ApplyTaskStatus(&task, domain.TaskInProgress, "2026-01-01T10:00:00Z", nil)
	require.NotNil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	msg := "gpu out of memory"
	ApplyTaskStatus(&task, domain.TaskFailed, "2026-01-01T09:00:00Z", &msg)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, "2026-01-01T10:00:00Z", *task.StartedAt)
	// a clock that went backwards never yields completed_at < started_at
	assert.Equal(t, "2026-01-01T10:00:00Z", *task.CompletedAt)
	assert.Equal(t, &msg, task.ErrorMessage)
}

func TestApplyTaskStatusLeavesStartedAtToTheStart(t *testing.T) {
	task := domain.WorkflowTask{Status: domain.TaskPending}
	require.ErrorIs(t, CheckTaskTransition(task.Status, domain.TaskCompleted), apperr.ErrInvalidTransition)

	ApplyTaskStatus(&task, domain.TaskCompleted, "2026-01-01T10:00:00Z", nil)
	assert.Nil(t, task.StartedAt)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, "2026-01-01T10:00:00Z", *task.CompletedAt)
}

func TestApplyWorkflowStatusStampsCompletedAtOnce(t *testing.T) {
	w := domain.Workflow{Status: domain.WorkflowInProgress}
	ApplyWorkflowStatus(&w, domain.WorkflowCompleted, "2026-01-01T10:00:00Z")
	require.NotNil(t, w.CompletedAt)
	ApplyWorkflowStatus(&w, domain.WorkflowCompleted, "2026-01-01T11:00:00Z")
	assert.Equal(t, "2026-01-01T10:00:00Z", *w.CompletedAt)
	assert.Equal(t, "2026-01-01T11:00:00Z", w.UpdatedAt)
}

func TestRecompute(t *testing.T) {
	mk := func(statuses ...string) []domain.WorkflowTask {
		out := make([]domain.WorkflowTask, len(statuses))
		for i, s := range statuses {
			out[i].Status = s
		}
		return out
	}
	_, ok := Recompute(nil)
	assert.False(t, ok)

	cases := []struct {
		tasks []domain.WorkflowTask
		want  string
	}{
		{mk(domain.TaskCompleted, domain.TaskCompleted), domain.WorkflowCompleted},
		{mk(domain.TaskCompleted, domain.TaskFailed), domain.WorkflowFailed},
		{mk(domain.TaskFailed, domain.TaskInProgress), domain.WorkflowInProgress},
		{mk(domain.TaskFailed, domain.TaskPending), domain.WorkflowInProgress},
		{mk(domain.TaskPending), domain.WorkflowInProgress},
	}
	for _, tc := range cases {
		got, ok := Recompute(tc.tasks)
		require.True(t, ok)
		assert.Equal(t, tc.want, got)
	}
}
