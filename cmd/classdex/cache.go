package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classdex/internal/driver"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the class translation cache",
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached class translation",
	Args:  cobra.NoArgs,
	RunE:  runCacheClean,
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the cache directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := cacheDir(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().String("cache-dir", "", "class cache directory (default: user cache dir)")
	cacheCmd.AddCommand(cacheCleanCmd, cachePathCmd)
}

// cacheDir resolves the directory from --cache-dir, then [cache].dir, then
// the user cache directory.
func cacheDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		return dir, nil
	}
	cfg, err := loadConfig(".")
	if err != nil {
		return "", err
	}
	if cfg != nil && cfg.Cache.Dir != "" {
		return cfg.path(cfg.Cache.Dir), nil
	}
	return driver.DefaultCacheDir()
}

func runCacheClean(cmd *cobra.Command, _ []string) error {
	dir, err := cacheDir(cmd)
	if err != nil {
		return err
	}
	c, err := driver.OpenCache(dir)
	if err != nil {
		return err
	}
	if err := c.Clean(); err != nil {
		return fmt.Errorf("failed to clean %q: %w", dir, err)
	}
	if quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet"); !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
	}
	return nil
}
