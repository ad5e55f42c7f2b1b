package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"classdex/internal/buildpipeline"
	"classdex/internal/diagfmt"
	"classdex/internal/driver"
	"classdex/internal/ropper"
	"classdex/internal/translate"
)

const defaultOutput = "classes.dex"

var translateCmd = newTranslateCmd()

func newTranslateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [flags] <input>...",
		Short: "Translate class files, directories and archives into one .dex",
		Long: `Translate every .class file found in the inputs into a single container.
Inputs may be class files, directories or .jar/.zip/.apk archives. When no
inputs are given, [translate].inputs from classdex.toml is used.`,
		RunE: runTranslate,
	}
	f := cmd.Flags()
	f.StringP("output", "o", defaultOutput, "output .dex, archive, directory, or - for stdout")
	f.IntP("jobs", "j", 0, "parallel translation jobs (0 = GOMAXPROCS)")
	f.Int("max-errors", driver.DefaultMaxErrors, "abort after this many failed classes (negative = never)")
	f.Bool("core-library", false, "allow classes in java.* and javax.* core packages")
	f.String("positions", ropper.PositionLines.String(), "line number info to keep (none|lines|important)")
	f.Bool("local-info", false, "keep parameter names from LocalVariableTable")
	f.Bool("no-strict", false, "do not require class names to match their paths")
	f.Bool("no-optimize", false, "encode bytecode without the SSA round trip")
	f.Bool("cache", false, "reuse translations from the class cache")
	f.String("cache-dir", "", "class cache directory (default: user cache dir)")
	f.String("ui", "auto", "progress view (auto|on|off)")
	f.String("format", "pretty", "diagnostics format (pretty|json)")
	return cmd
}

// translateSettings is the resolved configuration of one translate run.
type translateSettings struct {
	inputs      []string
	output      string
	jobs        int
	maxErrors   int
	coreLibrary bool
	cf          translate.CfOptions
	cache       bool
	cacheDir    string
}

func defaultSettings() translateSettings {
	cf := translate.DefaultOptions()
	cf.Optimize = true
	return translateSettings{
		output:    defaultOutput,
		maxErrors: driver.DefaultMaxErrors,
		cf:        cf,
	}
}

// resolveSettings layers classdex.toml over the defaults and the flags the
// user set over both.
func resolveSettings(cmd *cobra.Command, cfg *projectConfig, args []string) (translateSettings, error) {
	s := defaultSettings()

	if cfg != nil {
		t := cfg.Translate
		for _, in := range t.Inputs {
			s.inputs = append(s.inputs, cfg.path(in))
		}
		if cfg.defined("translate", "output") {
			s.output = cfg.path(t.Output)
		}
		if cfg.defined("translate", "jobs") {
			s.jobs = t.Jobs
		}
		if cfg.defined("translate", "max_errors") {
			s.maxErrors = t.MaxErrors
		}
		s.coreLibrary = t.CoreLibrary
		if cfg.defined("cf", "position_info") {
			p, err := ropper.ParsePositionInfo(cfg.Cf.PositionInfo)
			if err != nil {
				return s, fmt.Errorf("%s: [cf].position_info: %w", configFileName, err)
			}
			s.cf.PositionInfo = p
		}
		s.cf.LocalInfo = cfg.Cf.LocalInfo
		if cfg.defined("cf", "strict_name_check") {
			s.cf.StrictNameCheck = cfg.Cf.StrictNameCheck
		}
		if cfg.defined("cf", "optimize") {
			s.cf.Optimize = cfg.Cf.Optimize
		}
		s.cache = cfg.Cache.Enabled
		if cfg.Cache.Dir != "" {
			s.cacheDir = cfg.path(cfg.Cache.Dir)
		}
	}

	f := cmd.Flags()
	if len(args) > 0 {
		s.inputs = args
	}
	var err error
	if f.Changed("output") {
		s.output, _ = f.GetString("output")
	}
	if f.Changed("jobs") {
		s.jobs, _ = f.GetInt("jobs")
	}
	if f.Changed("max-errors") {
		s.maxErrors, _ = f.GetInt("max-errors")
	}
	if f.Changed("core-library") {
		s.coreLibrary, _ = f.GetBool("core-library")
	}
	if f.Changed("positions") {
		v, _ := f.GetString("positions")
		if s.cf.PositionInfo, err = ropper.ParsePositionInfo(v); err != nil {
			return s, fmt.Errorf("--positions: %w", err)
		}
	}
	if f.Changed("local-info") {
		s.cf.LocalInfo, _ = f.GetBool("local-info")
	}
	if f.Changed("no-strict") {
		v, _ := f.GetBool("no-strict")
		s.cf.StrictNameCheck = !v
	}
	if f.Changed("no-optimize") {
		v, _ := f.GetBool("no-optimize")
		s.cf.Optimize = !v
	}
	if f.Changed("cache") {
		s.cache, _ = f.GetBool("cache")
	}
	if f.Changed("cache-dir") {
		s.cacheDir, _ = f.GetString("cache-dir")
		s.cache = true
	}

	if len(s.inputs) == 0 {
		return s, errors.New("no inputs given and no [translate].inputs in " + configFileName)
	}
	if s.jobs < 0 {
		return s, errors.New("--jobs must not be negative")
	}
	return s, nil
}

func runTranslate(cmd *cobra.Command, args []string) error {
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}
	s, err := resolveSettings(cmd, cfg, args)
	if err != nil {
		return err
	}

	pf := cmd.Root().PersistentFlags()
	quiet, _ := pf.GetBool("quiet")
	timings, _ := pf.GetBool("timings")
	maxDiag, _ := pf.GetInt("max-diagnostics")
	uiValue, _ := cmd.Flags().GetString("ui")
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	colorOn, err := useColor(cmd, os.Stderr)
	if err != nil {
		return err
	}

	opts := driver.Options{
		Inputs:         s.inputs,
		Output:         s.output,
		Jobs:           s.jobs,
		MaxErrors:      s.maxErrors,
		CoreLibrary:    s.coreLibrary,
		Cf:             s.cf,
		MaxDiagnostics: maxDiag,
		// The JSON report carries timings as a diagnostic; pretty output
		// prints its own table.
		Timings: timings && format == "json",
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
	}
	if s.cache {
		dir := s.cacheDir
		if dir == "" {
			if dir, err = driver.DefaultCacheDir(); err != nil {
				return err
			}
		}
		if opts.Cache, err = driver.OpenCache(dir); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *driver.Result
	if shouldUseTUI(mode, s.output, quiet) {
		res, err = runWithUI(ctx, "classdex → "+buildpipeline.DisplayName(s.output, "."), opts)
	} else {
		res, err = driver.Run(ctx, opts)
	}
	if res == nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	if format == "json" {
		if jerr := diagfmt.JSON(stderr, res.Bag, diagfmt.JSONOpts{IncludeNotes: true, Max: maxDiag}); jerr != nil {
			return jerr
		}
	} else {
		diagfmt.Pretty(stderr, res.Bag, diagfmt.PrettyOpts{Color: colorOn, ShowNotes: true, Max: maxDiag})
		if timings {
			printPhaseTimings(stderr, res.Report)
		}
	}
	if err == nil && !quiet && s.output != "-" {
		printSummary(stderr, s.output, res)
	}
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted")
	}
	return err
}

func printSummary(w io.Writer, output string, res *driver.Result) {
	fmt.Fprintf(w, "wrote %s: %d classes", output, res.Classes)
	if res.Cached > 0 {
		fmt.Fprintf(w, " (%d cached)", res.Cached)
	}
	fmt.Fprintf(w, ", %d bytes\n", res.Bytes)
}
