package lineage

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetline/internal/apperr"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/migrate"
	"assetline/internal/repo"
)

type testEnv struct {
	db    *sql.DB
	store Store
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return testEnv{db: conn, store: Store{Repo: repo.Repo{DB: conn}, Now: func() time.Time { return now }}}
}

func (e testEnv) asset(t *testing.T, owner, id string) {
	t.Helper()
	ts := "2026-01-02T03:04:05Z"
	require.NoError(t, e.store.Repo.InsertAsset(context.Background(), nil, domain.Asset{
		ID: id, UserID: owner, Name: id, Status: domain.AssetActive, CreatedAt: ts, UpdatedAt: ts,
	}))
}

// link creates parent -> child in its own transaction.
func (e testEnv) link(t *testing.T, owner, parent, child string) (domain.Relationship, error) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	rel, err := e.store.CreateRelationship(ctx, tx, owner, NewRelationship{
		ParentAssetID: parent, ChildAssetID: child, RelationshipType: domain.RelDerivedFrom,
	})
	if err != nil {
		return rel, err
	}
	require.NoError(t, tx.Commit())
	return rel, nil
}

func (e testEnv) edgeCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT count(*) FROM asset_relationships`).Scan(&n))
	return n
}

func TestCreateRelationshipRejectsSelfLoop(t *testing.T) {
	env := newTestEnv(t)
	env.asset(t, "u1", "a")
	_, err := env.link(t, "u1", "a", "a")
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, env.edgeCount(t))
}

func TestCreateRelationshipDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.asset(t, "u1", "a")
	env.asset(t, "u1", "b")
	rel, err := env.link(t, "u1", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a", rel.ParentAssetID)
	assert.Equal(t, "2026-01-02T03:04:05Z", rel.CreatedAt)

	_, err = env.link(t, "u1", "a", "b")
	require.ErrorIs(t, err, apperr.ErrDuplicate)
	assert.Equal(t, 1, env.edgeCount(t))
}

func TestCreateRelationshipRejectsCycles(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		env.asset(t, "u1", id)
	}
	_, err := env.link(t, "u1", "a", "b")
	require.NoError(t, err)
	_, err = env.link(t, "u1", "b", "a")
	require.ErrorIs(t, err, apperr.ErrCycle)

	_, err = env.link(t, "u1", "b", "c")
	require.NoError(t, err)
	_, err = env.link(t, "u1", "c", "d")
	require.NoError(t, err)
	_, err = env.link(t, "u1", "d", "a")
	require.ErrorIs(t, err, apperr.ErrCycle)

	// a shortcut that keeps the graph acyclic is fine
	_, err = env.link(t, "u1", "a", "d")
	require.NoError(t, err)
	assert.Equal(t, 4, env.edgeCount(t))

	report, err := env.store.Audit(context.Background(), nil, "u1")
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 4, report.Edges)
}

func TestCreateRelationshipEndpointsMustBeOwnedAndActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.asset(t, "u1", "a")
	env.asset(t, "u2", "foreign")
	env.asset(t, "u1", "archived")
	require.NoError(t, env.store.Repo.UpdateAssetStatus(ctx, nil, "archived", domain.AssetArchived, "2026-01-02T03:04:05Z"))

	_, err := env.link(t, "u1", "a", "foreign")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.link(t, "u1", "missing", "a")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.link(t, "u1", "a", "archived")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, env.edgeCount(t))
}

func TestDeleteRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.asset(t, "u1", "a")
	env.asset(t, "u1", "b")
	_, err := env.link(t, "u1", "a", "b")
	require.NoError(t, err)

	_, err = env.store.DeleteRelationship(ctx, nil, "u2", "a", "b")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	rel, err := env.store.DeleteRelationship(ctx, nil, "u1", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", rel.ChildAssetID)

	_, err = env.store.DeleteRelationship(ctx, nil, "u1", "a", "b")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// the reverse edge is legal once the original is gone
	_, err = env.link(t, "u1", "b", "a")
	require.NoError(t, err)
}

func TestTraversalOverDiamond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"root", "left", "right", "leaf"} {
		env.asset(t, "u1", id)
	}
	for _, e := range [][2]string{{"root", "left"}, {"root", "right"}, {"left", "leaf"}, {"right", "leaf"}} {
		_, err := env.link(t, "u1", e[0], e[1])
		require.NoError(t, err)
	}

	anc, err := env.store.Ancestors(ctx, nil, "u1", "leaf", 0)
	require.NoError(t, err)
	require.Len(t, anc, 3)
	depths := map[string]int{}
	for _, n := range anc {
		depths[n.ID] = n.Depth
	}
	assert.Equal(t, map[string]int{"left": 1, "right": 1, "root": 2}, depths)

	desc, err := env.store.Descendants(ctx, nil, "u1", "root", 1)
	require.NoError(t, err)
	require.Len(t, desc, 2)

	_, err = env.store.Ancestors(ctx, nil, "u2", "leaf", 0)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// deleted assets drop out of traversal
	require.NoError(t, env.store.Repo.UpdateAssetStatus(ctx, nil, "left", domain.AssetDeleted, "2026-01-02T03:04:05Z"))
	anc, err = env.store.Ancestors(ctx, nil, "u1", "leaf", 0)
	require.NoError(t, err)
	assert.Len(t, anc, 2)

	report, err := env.store.Audit(ctx, nil, "u1")
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Len(t, report.Dangling, 2)
	assert.Empty(t, report.Cycles)
}

func TestStoreMaxDepthCapsTraversal(t *testing.T) {
	env := newTestEnv(t)
	env.store.MaxDepth = 2
	ctx := context.Background()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		env.asset(t, "u1", id)
	}
	for i := 0; i+1 < len(ids); i++ {
		_, err := env.link(t, "u1", ids[i], ids[i+1])
		require.NoError(t, err)
	}
	desc, err := env.store.Descendants(ctx, nil, "u1", "a", 10)
	require.NoError(t, err)
	assert.Len(t, desc, 2)
}

func TestNextVersionIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.asset(t, "u1", "a")
	for want := 1; want <= 3; want++ {
		v, err := env.store.NextVersion(ctx, nil, "a", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, want, v.VersionNumber)
	}
	versions, err := env.store.Repo.ListVersions(ctx, nil, "a")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[2].VersionNumber)
}

func TestFindCycles(t *testing.T) {
	cycles := findCycles(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"x": {"y"},
	})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycles[0])
	assert.Empty(t, findCycles(map[string][]string{"a": {"b", "c"}, "b": {"c"}}))
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(AssetKey("a"), WorkflowKey("w"), AssetKey("a"))
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.held())
}
