package progress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"assetline/internal/domain"
)

func tasks(statuses ...string) []domain.WorkflowTask {
	out := make([]domain.WorkflowTask, len(statuses))
	for i, s := range statuses {
		out[i] = domain.WorkflowTask{Status: s}
	}
	return out
}

func TestComputeMixedWorkflow(t *testing.T) {
	p := Compute(tasks(domain.TaskCompleted, domain.TaskCompleted, domain.TaskFailed, domain.TaskPending))
	assert.Equal(t, domain.Progress{Percentage: 50, TotalTasks: 4, Completed: 2, Failed: 1, Pending: 1}, p)
}

func TestComputeEmpty(t *testing.T) {
	assert.Equal(t, domain.Progress{}, Compute(nil))
}

func TestPercentageRounding(t *testing.T) {
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 17, Percentage(1, 6))
	assert.Equal(t, 13, Percentage(1, 8)) // 12.5 rounds up
	assert.Equal(t, 100, Percentage(7, 7))
	assert.Equal(t, 0, Percentage(0, 0))
}

func TestCountsAlwaysSumToTotal(t *testing.T) {
	all := []string{domain.TaskPending, domain.TaskInProgress, domain.TaskCompleted, domain.TaskFailed}
	for n := 0; n <= 12; n++ {
		statuses := make([]string, n)
		for i := range statuses {
			statuses[i] = all[(i*7+n)%len(all)]
		}
		p := Compute(tasks(statuses...))
		assert.Equal(t, p.TotalTasks, p.Completed+p.InProgress+p.Failed+p.Pending)
		if n > 0 {
			want := int(math.Floor(100*float64(p.Completed)/float64(n) + 0.5))
			assert.Equal(t, want, p.Percentage)
		}
	}
}
