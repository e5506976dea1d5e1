package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, 64, cfg.Lineage.MaxTraversalDepth)
	assert.Equal(t, []string{"component_of", "derived_from", "variant_of"}, cfg.RelationshipTypes())
}

func TestFromYAMLOverridesAndFallsBack(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9000
workflows:
  default_priority: 3
`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, 3, cfg.Workflows.DefaultPriority)
	assert.Len(t, cfg.RelationshipTypes(), 3)

	cfg, err = FromYAML([]byte(`
lineage:
  relationship_types:
    remix_of:
      description: "remix"
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"remix_of"}, cfg.RelationshipTypes())
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	_, err := FromYAML([]byte("server: ["))
	require.Error(t, err)
	_, err = FromYAML([]byte("server:\n  base_path: v1\n"))
	require.Error(t, err)
	_, err = FromYAML([]byte("log:\n  mode: verbose\n"))
	require.Error(t, err)
	_, err = FromYAML([]byte("lineage:\n  max_traversal_depth: -1\n"))
	require.Error(t, err)
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetline.yml"), []byte("auth:\n  allow_dev_header: true\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Auth.AllowDevHeader)
}
