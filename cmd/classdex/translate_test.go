package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdex/internal/dexfile"
	"classdex/internal/driver"
	"classdex/internal/ropper"
)

func TestResolveSettingsDefaults(t *testing.T) {
	cmd := newTranslateCmd()
	s, err := resolveSettings(cmd, nil, []string{"in.jar"})
	require.NoError(t, err)

	assert.Equal(t, []string{"in.jar"}, s.inputs)
	assert.Equal(t, defaultOutput, s.output)
	assert.Equal(t, driver.DefaultMaxErrors, s.maxErrors)
	assert.True(t, s.cf.Optimize)
	assert.True(t, s.cf.StrictNameCheck)
	assert.Equal(t, ropper.PositionLines, s.cf.PositionInfo)
	assert.False(t, s.cache)
}

func TestResolveSettingsLayers(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfigFile(writeConfig(t, dir, `
[translate]
inputs = ["classes"]
output = "out.jar"
jobs = 4

[cf]
optimize = false
strict_name_check = false
position_info = "important"

[cache]
dir = "cache"
`))
	require.NoError(t, err)

	cmd := newTranslateCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"-j", "2", "--positions", "none"}))
	s, err := resolveSettings(cmd, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "classes")}, s.inputs)
	assert.Equal(t, filepath.Join(dir, "out.jar"), s.output)
	assert.Equal(t, 2, s.jobs, "flag wins over file")
	assert.False(t, s.cf.Optimize)
	assert.False(t, s.cf.StrictNameCheck)
	assert.Equal(t, ropper.PositionNone, s.cf.PositionInfo)
	assert.Equal(t, filepath.Join(dir, "cache"), s.cacheDir)
	assert.False(t, s.cache, "a directory alone does not enable the cache")

	require.NoError(t, cmd.Flags().Parse([]string{"--no-optimize=false", "--cache-dir", "elsewhere", "extra"}))
	s, err = resolveSettings(cmd, cfg, cmd.Flags().Args())
	require.NoError(t, err)
	assert.True(t, s.cf.Optimize)
	assert.True(t, s.cache)
	assert.Equal(t, "elsewhere", s.cacheDir)
	assert.Equal(t, []string{"extra"}, s.inputs)
}

func TestResolveSettingsErrors(t *testing.T) {
	_, err := resolveSettings(newTranslateCmd(), nil, nil)
	assert.ErrorContains(t, err, "no inputs")

	cmd := newTranslateCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--positions", "all"}))
	_, err = resolveSettings(cmd, nil, []string{"x"})
	assert.ErrorContains(t, err, "--positions")
}

func TestTranslateCommand(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir)
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	rootCmd.SetArgs([]string{"translate", "--ui", "off", "--color", "off", "-o", "out.dex", "."})
	require.NoError(t, rootCmd.Execute(), stderr.String())

	assert.Contains(t, stderr.String(), "wrote out.dex: 1 classes")
	b, err := os.ReadFile(filepath.Join(dir, "out.dex"))
	require.NoError(t, err)
	d, err := dexfile.Read(b)
	require.NoError(t, err)
	require.Len(t, d.Classes, 1)
	assert.Equal(t, "Lp/A;", d.Classes[0].Class.Descriptor)
	assert.Equal(t, "A.java", d.Classes[0].SourceFile)
}
