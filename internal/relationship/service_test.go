package relationship

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetline/internal/apperr"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/lineage"
	"assetline/internal/migrate"
	"assetline/internal/repo"
)

func newTestService(t *testing.T) (*sql.DB, Service) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return conn, Service{
		Store:  lineage.Store{Repo: repo.Repo{DB: conn}, Now: clock},
		Events: events.Writer{Now: clock},
	}
}

func newAsset(t *testing.T, conn *sql.DB, svc Service, owner, name string) domain.Asset {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	a, v, err := svc.Store.CreateAsset(ctx, tx, owner, lineage.NewAsset{Name: name}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, v.VersionNumber)
	require.NoError(t, tx.Commit())
	return a
}

func count(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM `+table).Scan(&n))
	return n
}

func TestValidate(t *testing.T) {
	svc := Service{}
	cases := []struct {
		name string
		in   CreateInput
		ok   bool
	}{
		{"ok", CreateInput{ParentAssetID: "a", ChildAssetID: "b", RelationshipType: domain.RelVariantOf}, true},
		{"missing parent", CreateInput{ChildAssetID: "b", RelationshipType: domain.RelDerivedFrom}, false},
		{"missing type", CreateInput{ParentAssetID: "a", ChildAssetID: "b"}, false},
		{"unknown type", CreateInput{ParentAssetID: "a", ChildAssetID: "b", RelationshipType: "sibling_of"}, false},
		{"self loop", CreateInput{ParentAssetID: "a", ChildAssetID: " a ", RelationshipType: domain.RelDerivedFrom}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Validate(tc.in)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	custom := Service{Types: []string{"sibling_of"}}
	require.NoError(t, custom.Validate(CreateInput{ParentAssetID: "a", ChildAssetID: "b", RelationshipType: "sibling_of"}))
	require.Error(t, custom.Validate(CreateInput{ParentAssetID: "a", ChildAssetID: "b", RelationshipType: domain.RelDerivedFrom}))
}

func TestCreateAndDeleteAppendEvents(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()
	a := newAsset(t, conn, svc, "u1", "a")
	b := newAsset(t, conn, svc, "u1", "b")

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	rel, err := svc.Create(ctx, tx, "u1", "u1", CreateInput{ParentAssetID: a.ID, ChildAssetID: b.ID, RelationshipType: domain.RelDerivedFrom})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, domain.RelDerivedFrom, rel.RelationshipType)

	tx, err = conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = svc.Delete(ctx, tx, "u1", "u1", a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	evts, err := svc.Store.Repo.ListEvents(ctx, nil, repo.EventFilters{UserID: "u1", EntityKind: "relationship"})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, events.RelationshipDeleted, evts[0].Type)
	assert.Equal(t, events.RelationshipCreated, evts[1].Type)
}

func TestRecordDerivedAssetNew(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()
	p1 := newAsset(t, conn, svc, "u1", "prompt")
	p2 := newAsset(t, conn, svc, "u1", "style")

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	res, err := svc.RecordDerivedAsset(ctx, tx, "u1", "worker-1", DerivedAssetInput{
		ParentAssetIDs: []string{p1.ID, p2.ID},
		Asset:          lineage.NewAsset{Name: "render.png", MediaType: "image/png"},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, domain.AssetActive, res.Asset.Status)
	assert.Equal(t, 1, res.Version.VersionNumber)
	require.Len(t, res.Relationships, 2)
	for _, rel := range res.Relationships {
		assert.Equal(t, res.Asset.ID, rel.ChildAssetID)
		assert.Equal(t, domain.RelDerivedFrom, rel.RelationshipType)
	}
	assert.Equal(t, 2, count(t, conn, "asset_relationships"))
}

func TestRecordDerivedAssetIsAllOrNothing(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()
	parent := newAsset(t, conn, svc, "u1", "parent")
	foreign := newAsset(t, conn, svc, "u2", "foreign")
	assetsBefore := count(t, conn, "assets")
	versionsBefore := count(t, conn, "asset_versions")

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = svc.RecordDerivedAsset(ctx, tx, "u1", "u1", DerivedAssetInput{
		ParentAssetIDs: []string{parent.ID, foreign.ID},
		Asset:          lineage.NewAsset{Name: "out"},
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, assetsBefore, count(t, conn, "assets"))
	assert.Equal(t, versionsBefore, count(t, conn, "asset_versions"))
	assert.Equal(t, 0, count(t, conn, "asset_relationships"))
}

func TestRecordDerivedAssetExistingTarget(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()
	parent := newAsset(t, conn, svc, "u1", "parent")
	target := newAsset(t, conn, svc, "u1", "target")

	for want := 2; want <= 3; want++ {
		tx, err := conn.BeginTx(ctx, nil)
		require.NoError(t, err)
		res, err := svc.RecordDerivedAsset(ctx, tx, "u1", "u1", DerivedAssetInput{
			ParentAssetIDs: []string{parent.ID},
			AssetID:        target.ID,
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		assert.Equal(t, want, res.Version.VersionNumber)
		require.Len(t, res.Relationships, 1)
	}
	assert.Equal(t, 1, count(t, conn, "asset_relationships"))
}

func TestRecordDerivedAssetValidation(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()
	parent := newAsset(t, conn, svc, "u1", "parent")

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = svc.RecordDerivedAsset(ctx, tx, "u1", "u1", DerivedAssetInput{
		ParentAssetIDs: []string{parent.ID, parent.ID},
		Asset:          lineage.NewAsset{Name: "out"},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.RecordDerivedAsset(ctx, tx, "u1", "u1", DerivedAssetInput{
		ParentAssetIDs: []string{parent.ID},
		Asset:          lineage.NewAsset{},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	bad := "{not json"
	_, err = svc.RecordDerivedAsset(ctx, tx, "u1", "u1", DerivedAssetInput{
		Asset: lineage.NewAsset{Name: "out", MetadataJSON: &bad},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	// an existing asset cannot be derived from itself
	_, err = svc.RecordDerivedAsset(ctx, tx, "u1", "u1", DerivedAssetInput{
		ParentAssetIDs: []string{parent.ID},
		AssetID:        parent.ID,
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
}
