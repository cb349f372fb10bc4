package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUARRY_DATA_DIR", dir)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.ServerURL)
	assert.Equal(t, filepath.Join(dir, "quarry.db"), c.DBPath)
	assert.Empty(t, c.APIKey)
}

func TestTOMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUARRY_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
server_url = "https://runs.example.com"
api_key = "from-file"
hooks_file = "/etc/quarry/hooks.lua"
`), 0644))

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "https://runs.example.com", c.ServerURL)
	assert.Equal(t, "from-file", c.APIKey)
	assert.Equal(t, "/etc/quarry/hooks.lua", c.HooksFile)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUARRY_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
api_key = "from-file"
`), 0644))
	t.Setenv("QUARRY_API_KEY", "from-env")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.APIKey)
}
