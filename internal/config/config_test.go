package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dawnsearch.toml")
	body := `
data_dir = "/var/lib/dawnsearch"
udp = false
trackers = ["tracker.example:7230"]
debug = 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/dawnsearch", cfg.DataDir)
	assert.False(t, cfg.UDP)
	assert.Equal(t, []string{"tracker.example:7230"}, cfg.Trackers)
	assert.Equal(t, 2, cfg.Debug)
	assert.True(t, cfg.Web) // untouched default
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dawnsearch.toml")
	require.NoError(t, os.WriteFile(path, []byte(`data_dir = "/file"`), 0o644))

	t.Setenv("DAWNSEARCH_DATA_DIR", "/env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env", cfg.DataDir)
}

func TestValidateRejectsAllServicesDisabled(t *testing.T) {
	cfg := Default()
	cfg.Web = false
	cfg.UDP = false
	cfg.IndexCC = false
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDebugOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Debug = 4
	assert.Error(t, cfg.Validate())
}
