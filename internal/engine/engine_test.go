package engine_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"assetline/internal/apperr"
	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lineage"
	"assetline/internal/migrate"
	"assetline/internal/relationship"
	"assetline/internal/repo"
	"assetline/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))
	eng := engine.New(conn, config.Default(), nil).
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) })
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) asset(t *testing.T, owner, name string) domain.Asset {
	t.Helper()
	a, v, err := env.Engine.CreateAsset(env.Ctx, owner, lineage.NewAsset{Name: name})
	require.NoError(t, err)
	require.Equal(t, 1, v.VersionNumber)
	return a
}

func (env testEnv) relate(owner string, parent, child domain.Asset) (domain.Relationship, error) {
	return env.Engine.CreateRelationship(env.Ctx, owner, relationship.CreateInput{
		ParentAssetID: parent.ID, ChildAssetID: child.ID, RelationshipType: domain.RelDerivedFrom,
	})
}

func (env testEnv) setTask(t *testing.T, owner, taskID, status string) {
	t.Helper()
	_, err := env.Engine.UpdateTaskStatus(env.Ctx, owner, engine.TaskUpdateOptions{TaskID: taskID, Status: status})
	require.NoError(t, err)
}

func TestWorkflowStatusProgressScenario(t *testing.T) {
	env := newTestEnv(t)
	w, tasks, err := env.Engine.CreateWorkflow(env.Ctx, "u1", workflow.NewWorkflow{
		Name:  "campaign",
		Tasks: []workflow.NewTask{{TaskType: "a"}, {TaskType: "b"}, {TaskType: "c"}, {TaskType: "d"}},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	for _, task := range tasks[:3] {
		env.setTask(t, "u1", task.ID, domain.TaskInProgress)
	}
	env.setTask(t, "u1", tasks[0].ID, domain.TaskCompleted)
	env.setTask(t, "u1", tasks[1].ID, domain.TaskCompleted)
	env.setTask(t, "u1", tasks[2].ID, domain.TaskFailed)

	view, err := env.Engine.WorkflowStatus(env.Ctx, "u1", w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Progress{Percentage: 50, TotalTasks: 4, Completed: 2, Failed: 1, Pending: 1, InProgress: 0}, view.Progress)
	assert.Len(t, view.Tasks, 4)
	assert.Nil(t, view.ResultData)
	assert.Equal(t, domain.WorkflowInProgress, view.Workflow.Status)
}

func TestWorkflowOfAnotherUserIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	w, _, err := env.Engine.CreateWorkflow(env.Ctx, "u1", workflow.NewWorkflow{Name: "private"})
	require.NoError(t, err)

	_, err = env.Engine.WorkflowStatus(env.Ctx, "u2", w.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.Engine.WorkflowStatus(env.Ctx, "u1", "no-such-workflow")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.Engine.SetWorkflowStatus(env.Ctx, "u2", workflow.WorkflowTransition{WorkflowID: w.ID, Status: domain.WorkflowCancelled})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.Engine.WorkflowStatus(env.Ctx, "", w.ID)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestRelationshipScenarios(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "u1", "A")
	b := env.asset(t, "u1", "B")

	rel, err := env.relate("u1", a, b)
	require.NoError(t, err)
	assert.Equal(t, a.ID, rel.ParentAssetID)

	_, err = env.relate("u1", b, a)
	require.ErrorIs(t, err, apperr.ErrCycle)

	_, err = env.relate("u1", a, b)
	require.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = env.relate("u1", a, a)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.relate("u2", a, b)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	rels, err := env.Engine.ListAssetRelationships(env.Ctx, "u1", b.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)

	deleted, err := env.Engine.DeleteRelationship(env.Ctx, "u1", a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, rel.ID, deleted.ID)
	_, err = env.Engine.DeleteRelationship(env.Ctx, "u1", a.ID, b.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.Engine.DeleteRelationship(env.Ctx, "u1", "", b.ID)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDeletedAssetsLeaveTheGraph(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "u1", "A")
	b := env.asset(t, "u1", "B")
	c := env.asset(t, "u1", "C")
	_, err := env.relate("u1", a, b)
	require.NoError(t, err)
	_, err = env.relate("u1", b, c)
	require.NoError(t, err)

	desc, err := env.Engine.Descendants(env.Ctx, "u1", a.ID, 0)
	require.NoError(t, err)
	assert.Len(t, desc, 2)

	_, err = env.Engine.SetAssetStatus(env.Ctx, "u1", b.ID, domain.AssetDeleted)
	require.NoError(t, err)
	desc, err = env.Engine.Descendants(env.Ctx, "u1", a.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, desc)

	_, err = env.Engine.GetAsset(env.Ctx, "u1", b.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.Engine.SetAssetStatus(env.Ctx, "u1", b.ID, domain.AssetActive)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	listed, err := env.Engine.ListAssets(env.Ctx, "u1", repo.AssetFilters{})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	report, err := env.Engine.AuditLineage(env.Ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, report.Dangling, 2)
}

func TestAssetMetadataUpdate(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "u1", "draft")
	name := "final"
	meta := `{"seed":42}`
	updated, err := env.Engine.UpdateAssetMetadata(env.Ctx, "u1", a.ID, engine.AssetPatch{Name: &name, MetadataJSON: &meta})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Name)
	require.NotNil(t, updated.MetadataJSON)

	bad := "nope"
	_, err = env.Engine.UpdateAssetMetadata(env.Ctx, "u1", a.ID, engine.AssetPatch{MetadataJSON: &bad})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = env.Engine.UpdateAssetMetadata(env.Ctx, "u2", a.ID, engine.AssetPatch{Name: &name})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentVersionsAreGapless(t *testing.T) {
	env := newTestEnv(t)
	a := env.asset(t, "u1", "shared")

	const producers = 16
	got := make([]int, producers)
	var g errgroup.Group
	for i := 0; i < producers; i++ {
		i := i
		g.Go(func() error {
			v, err := env.Engine.RecordAssetVersion(env.Ctx, "u1", a.ID, nil)
			if err != nil {
				return err
			}
			got[i] = v.VersionNumber
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Ints(got)
	for i, v := range got {
		assert.Equal(t, i+2, v)
	}
	versions, err := env.Engine.ListVersions(env.Ctx, "u1", a.ID)
	require.NoError(t, err)
	require.Len(t, versions, producers+1)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
}

func TestConcurrentOppositeEdgesNeverFormCycle(t *testing.T) {
	for round := 0; round < 5; round++ {
		env := newTestEnv(t)
		a := env.asset(t, "u1", "A")
		b := env.asset(t, "u1", "B")

		errs := make([]error, 2)
		var g errgroup.Group
		g.Go(func() error { _, errs[0] = env.relate("u1", a, b); return nil })
		g.Go(func() error { _, errs[1] = env.relate("u1", b, a); return nil })
		require.NoError(t, g.Wait())

		var ok, cycles int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.KindCycle:
				cycles++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, cycles)

		report, err := env.Engine.AuditLineage(env.Ctx, "u1")
		require.NoError(t, err)
		assert.True(t, report.OK())
	}
}

func TestConcurrentTasksProducingSameAsset(t *testing.T) {
	env := newTestEnv(t)
	parent := env.asset(t, "u1", "prompt")
	target := env.asset(t, "u1", "render")
	_, tasks, err := env.Engine.CreateWorkflow(env.Ctx, "u1", workflow.NewWorkflow{
		Name:  "variants",
		Tasks: []workflow.NewTask{{TaskType: "gen"}, {TaskType: "gen"}, {TaskType: "gen"}, {TaskType: "gen"}},
	})
	require.NoError(t, err)
	for _, task := range tasks {
		env.setTask(t, "u1", task.ID, domain.TaskInProgress)
	}

	var g errgroup.Group
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			_, err := env.Engine.UpdateTaskStatus(env.Ctx, "u1", engine.TaskUpdateOptions{
				TaskID: task.ID,
				Status: domain.TaskCompleted,
				Derived: &relationship.DerivedAssetInput{
					ParentAssetIDs: []string{parent.ID},
					AssetID:        target.ID,
				},
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	versions, err := env.Engine.ListVersions(env.Ctx, "u1", target.ID)
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
	rels, err := env.Engine.ListAssetRelationships(env.Ctx, "u1", target.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestAtomicArtifactRecording(t *testing.T) {
	env := newTestEnv(t)
	parent := env.asset(t, "u1", "source")
	foreign := env.asset(t, "u2", "not mine")
	w, tasks, err := env.Engine.CreateWorkflow(env.Ctx, "u1", workflow.NewWorkflow{
		Name: "one", Tasks: []workflow.NewTask{{TaskType: "gen"}},
	})
	require.NoError(t, err)
	env.setTask(t, "u1", tasks[0].ID, domain.TaskInProgress)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, "u1", engine.TaskUpdateOptions{
		TaskID: tasks[0].ID,
		Status: domain.TaskCompleted,
		Derived: &relationship.DerivedAssetInput{
			ParentAssetIDs: []string{parent.ID, foreign.ID},
			Asset:          lineage.NewAsset{Name: "out.png"},
		},
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	view, err := env.Engine.WorkflowStatus(env.Ctx, "u1", w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, view.Tasks[0].Status)
	assert.Nil(t, view.Tasks[0].ProducedAssetID)

	listed, err := env.Engine.ListAssets(env.Ctx, "u1", repo.AssetFilters{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	desc, err := env.Engine.Descendants(env.Ctx, "u1", parent.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, desc)

	res, err := env.Engine.UpdateTaskStatus(env.Ctx, "u1", engine.TaskUpdateOptions{
		TaskID: tasks[0].ID,
		Status: domain.TaskCompleted,
		Derived: &relationship.DerivedAssetInput{
			ParentAssetIDs: []string{parent.ID},
			Asset:          lineage.NewAsset{Name: "out.png"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Derived)
	anc, err := env.Engine.Ancestors(env.Ctx, "u1", res.Derived.Asset.ID, 0)
	require.NoError(t, err)
	require.Len(t, anc, 1)
	assert.Equal(t, parent.ID, anc[0].ID)
}

func TestRecomputeAndCompleteWorkflow(t *testing.T) {
	env := newTestEnv(t)
	w, tasks, err := env.Engine.CreateWorkflow(env.Ctx, "u1", workflow.NewWorkflow{
		Name: "two", Tasks: []workflow.NewTask{{TaskType: "a"}, {TaskType: "b"}},
	})
	require.NoError(t, err)

	_, changed, err := env.Engine.RecomputeWorkflowStatus(env.Ctx, "u1", w.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	for _, task := range tasks {
		env.setTask(t, "u1", task.ID, domain.TaskInProgress)
		env.setTask(t, "u1", task.ID, domain.TaskCompleted)
	}
	out, changed, err := env.Engine.RecomputeWorkflowStatus(env.Ctx, "u1", w.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.WorkflowCompleted, out.Status)
	require.NotNil(t, out.CompletedAt)

	_, err = env.Engine.SetWorkflowStatus(env.Ctx, "u1", workflow.WorkflowTransition{WorkflowID: w.ID, Status: domain.WorkflowCancelled})
	require.ErrorIs(t, err, apperr.ErrAlreadyTerminal)

	evts, err := env.Engine.ListEvents(env.Ctx, "u1", repo.EventFilters{EntityKind: "workflow", EntityID: w.ID})
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	evts, err = env.Engine.ListEvents(env.Ctx, "u2", repo.EventFilters{})
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	key, plain, err := env.Engine.CreateAPIKey(env.Ctx, "u1", "ci")
	require.NoError(t, err)
	assert.NotEqual(t, plain, key.KeyHash)

	owner, err := env.Engine.ResolveAPIKey(env.Ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	_, err = env.Engine.ResolveAPIKey(env.Ctx, "al_wrong")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	require.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, "u2", key.ID), apperr.ErrNotFound)
	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, "u1", key.ID))
	_, err = env.Engine.ResolveAPIKey(env.Ctx, plain)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
