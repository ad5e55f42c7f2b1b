package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const configFileName = "classdex.toml"

// projectConfig is classdex.toml. Unset keys leave the built-in defaults in
// place; flags given on the command line win over both.
type projectConfig struct {
	Translate translateConfig `toml:"translate"`
	Cf        cfConfig        `toml:"cf"`
	Cache     cacheConfig     `toml:"cache"`

	// Root is the directory holding the file; relative paths are resolved
	// against it.
	Root string `toml:"-"`
	meta toml.MetaData
}

type translateConfig struct {
	Output      string   `toml:"output"`
	Inputs      []string `toml:"inputs"`
	Jobs        int      `toml:"jobs"`
	MaxErrors   int      `toml:"max_errors"`
	CoreLibrary bool     `toml:"core_library"`
}

type cfConfig struct {
	PositionInfo    string `toml:"position_info"`
	LocalInfo       bool   `toml:"local_info"`
	StrictNameCheck bool   `toml:"strict_name_check"`
	Optimize        bool   `toml:"optimize"`
}

type cacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// defined reports whether the file set key, e.g. defined("cf", "optimize").
func (c *projectConfig) defined(key ...string) bool {
	return c != nil && c.meta.IsDefined(key...)
}

// path resolves a path from the file against its directory.
func (c *projectConfig) path(p string) string {
	if p == "" || p == "-" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// loadConfig finds classdex.toml at or above startDir. A missing file is
// not an error and yields nil.
func loadConfig(startDir string) (*projectConfig, error) {
	path, ok, err := findConfig(startDir)
	if err != nil || !ok {
		return nil, err
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) (*projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if cfg.Translate.Jobs < 0 {
		return nil, fmt.Errorf("%s: [translate].jobs must not be negative", path)
	}
	cfg.meta = meta
	cfg.Root = filepath.Dir(path)
	return &cfg, nil
}
