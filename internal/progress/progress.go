// Package progress derives workflow progress from task rows. Nothing is
// cached; every call recounts.
package progress

import "assetline/internal/domain"

// Compute counts tasks by status. pending absorbs every task that is not
// completed, failed or in_progress, so the counts always sum to the total.
func Compute(tasks []domain.WorkflowTask) domain.Progress {
	p := domain.Progress{TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskCompleted:
			p.Completed++
		case domain.TaskFailed:
			p.Failed++
		case domain.TaskInProgress:
			p.InProgress++
		}
	}
	p.Pending = p.TotalTasks - p.Completed - p.Failed - p.InProgress
	p.Percentage = Percentage(p.Completed, p.TotalTasks)
	return p
}

// Percentage returns round(100*completed/total) with halves rounded up, or 0
// when total is 0.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}
