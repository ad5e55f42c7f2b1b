package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
[translate]
output = "build/out.dex"
inputs = ["classes", "/abs/lib.jar"]
max_errors = 3

[cf]
position_info = "none"
optimize = false

[cache]
enabled = true
dir = ".cache"
`)
	cfg, err := loadConfigFile(p)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.True(t, cfg.defined("translate", "output"))
	assert.True(t, cfg.defined("cf", "optimize"))
	assert.False(t, cfg.defined("cf", "strict_name_check"))
	assert.False(t, cfg.defined("translate", "jobs"))
	assert.Equal(t, filepath.Join(dir, "build/out.dex"), cfg.path(cfg.Translate.Output))
	assert.Equal(t, "/abs/lib.jar", cfg.path(cfg.Translate.Inputs[1]))
	assert.Equal(t, "-", cfg.path("-"))
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "[cf]\nparams_high = true\n")
	_, err := loadConfigFile(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cf.params_high")
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "[translate\n")
	_, err := loadConfigFile(p)
	assert.ErrorContains(t, err, "failed to parse TOML")
}

func TestFindConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[translate]\njobs = 2\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := loadConfig(nested)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 2, cfg.Translate.Jobs)
	assert.Equal(t, root, cfg.Root)
}

func TestLoadConfigMissing(t *testing.T) {
	cfg, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
