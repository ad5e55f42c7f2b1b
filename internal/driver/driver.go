// Package driver runs a whole translation: it discovers class inputs,
// translates them in parallel, applies the results to one container in
// input order and writes the output.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"classdex/internal/buildpipeline"
	"classdex/internal/diag"
	"classdex/internal/dexfile"
	"classdex/internal/observ"
	"classdex/internal/trace"
	"classdex/internal/translate"
)

// DefaultMaxErrors is the number of failed classes that aborts a run.
const DefaultMaxErrors = 10

var (
	// ErrTooManyErrors aborts a run once MaxErrors classes have failed.
	ErrTooManyErrors = errors.New("too many errors")
	// ErrClassErrors reports a completed run in which some classes failed;
	// no output is written.
	ErrClassErrors = errors.New("translation failed")
	ErrNoInputs    = errors.New("no class files to translate")
)

// Options configures Run.
type Options struct {
	Inputs []string
	// Output is a .dex path, an archive, a directory or "-".
	Output string
	// Jobs bounds parallel translation; <= 0 uses GOMAXPROCS.
	Jobs int
	// MaxErrors is the abort threshold; 0 means DefaultMaxErrors and a
	// negative value disables it.
	MaxErrors   int
	CoreLibrary bool
	Cf          translate.CfOptions
	// Cache, when set, is consulted before translating a class.
	Cache *Cache
	// MaxDiagnostics caps the diagnostics kept; 0 keeps all.
	MaxDiagnostics int
	Timings        bool
	Progress       buildpipeline.ProgressSink
	OnPhase        PhaseObserver
	// Stdout receives the container for Output "-"; Stderr receives the
	// trace ring after an internal error. Both default to the process
	// streams.
	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) jobs() int {
	if o.Jobs > 0 {
		return o.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

func (o *Options) maxErrors() int {
	if o.MaxErrors == 0 {
		return DefaultMaxErrors
	}
	return o.MaxErrors
}

// Result summarises a run. It is returned even when Run fails.
type Result struct {
	Bag *diag.Bag
	// Classes counts classes added to the container, Cached those of them
	// served from the cache.
	Classes int
	Cached  int
	Failed  int
	// Bytes is the container size; zero when nothing was written.
	Bytes  int
	Report observ.Report
}

// Run translates opts.Inputs into opts.Output.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	r := &run{
		opts:  opts,
		tr:    translate.New(opts.Cf),
		file:  dexfile.NewFile(),
		timer: observ.NewTimer(),
		res:   &Result{Bag: diag.NewBag(opts.MaxDiagnostics)},
	}
	span, ctx := trace.Start(ctx, trace.ScopeDriver, "translate")
	err := r.execute(ctx)
	r.res.Report = r.timer.Report()
	if opts.Timings {
		appendTimingDiagnostic(r.res.Bag, timingPayload{
			Classes: r.res.Classes,
			TotalMS: r.res.Report.TotalMS,
			Phases:  r.res.Report.Phases,
		})
	}
	span.WithExtra("classes", fmt.Sprint(r.res.Classes)).WithExtra("failed", fmt.Sprint(r.res.Failed))
	span.End(errDetail(err))
	return r.res, err
}

type run struct {
	opts  Options
	tr    *translate.CfTranslator
	file  *dexfile.File
	timer *observ.Timer
	res   *Result
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// phase runs fn as a timed, traced phase.
func (r *run) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	if r.opts.OnPhase != nil {
		r.opts.OnPhase(PhaseEvent{Name: name, Status: PhaseStart})
	}
	start := time.Now()
	span, ctx := trace.Start(ctx, trace.ScopePhase, name)
	err := r.timer.Time(name, func() error { return fn(ctx) })
	span.End(errDetail(err))
	if r.opts.OnPhase != nil {
		r.opts.OnPhase(PhaseEvent{Name: name, Status: PhaseEnd, Elapsed: time.Since(start)})
	}
	return err
}

func (r *run) execute(ctx context.Context) error {
	if _, err := ClassifyOutput(r.opts.Output); err != nil {
		return err
	}
	var inputs *Inputs
	err := r.phase(ctx, PhaseDiscover, func(context.Context) error {
		var err error
		inputs, err = Discover(r.opts.Inputs)
		return err
	})
	if err != nil {
		r.res.Bag.Add(diag.NewError(diag.InputRead, "", err.Error()))
		return err
	}
	defer inputs.Close()
	if len(inputs.Classes) == 0 {
		return ErrNoInputs
	}
	names := make([]string, len(inputs.Classes))
	for i, in := range inputs.Classes {
		names[i] = in.Name
	}
	buildpipeline.EmitQueued(r.opts.Progress, names)

	if err := r.phase(ctx, PhaseTranslate, func(ctx context.Context) error {
		return r.translateAll(ctx, inputs.Classes)
	}); err != nil {
		return err
	}
	if r.res.Failed > 0 {
		return fmt.Errorf("%w: %d of %d classes", ErrClassErrors, r.res.Failed, len(inputs.Classes))
	}

	return r.phase(ctx, PhaseWrite, func(context.Context) error {
		out, err := r.file.Bytes()
		if err != nil {
			r.res.Bag.Add(diag.NewError(diag.TransContainer, r.opts.Output, err.Error()))
			return err
		}
		if err := writeOutput(r.opts.Output, out, inputs.Resources, r.opts.Stdout); err != nil {
			return err
		}
		r.res.Bytes = len(out)
		return nil
	})
}
