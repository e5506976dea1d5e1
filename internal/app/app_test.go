package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetline/internal/config"
	"assetline/internal/lineage"
	"assetline/internal/migrate"
)

func TestOpenWithDefaults(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, t.TempDir(), Options{Quiet: true})
	require.NoError(t, err)
	defer rt.Close()

	v, err := migrate.CurrentVersion(ctx, rt.DB)
	require.NoError(t, err)
	latest, err := migrate.Latest()
	require.NoError(t, err)
	assert.Equal(t, latest, v)
	assert.Equal(t, config.Default().Lineage.MaxTraversalDepth, rt.Engine.Lineage.MaxDepth)

	a, _, err := rt.Engine.CreateAsset(ctx, "u1", lineage.NewAsset{Name: "logo.svg"})
	require.NoError(t, err)
	got, err := rt.Engine.GetAsset(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "logo.svg", got.Name)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	ws := t.TempDir()
	yml := "lineage:\n  max_traversal_depth: 3\n  relationship_types:\n    remix_of:\n      description: remix\n"
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(yml), 0o644))

	rt, err := Open(context.Background(), ws, Options{Quiet: true})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 3, rt.Engine.Lineage.MaxDepth)
	assert.Equal(t, []string{"remix_of"}, rt.Engine.Relationships.Types)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("log:\n  mode: loud\n"), 0o644))
	_, err := Open(context.Background(), ws, Options{Quiet: true})
	require.Error(t, err)
}
