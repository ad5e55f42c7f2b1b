package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"classdex/internal/buildpipeline"
	"classdex/internal/classfile"
	"classdex/internal/diag"
	"classdex/internal/dexfile"
	"classdex/internal/trace"
	"classdex/internal/translate"
)

var errRead = errors.New("read")

// outcome is the result of translating one input. Workers fill it; only the
// consumer looks at it.
type outcome struct {
	in       Input
	def      *dexfile.ClassDef
	cached   bool
	cacheErr error
	err      error
	elapsed  time.Duration
}

// translateAll translates classes on a bounded worker pool and applies the
// results to the container from a single consumer, in input order.
func (r *run) translateAll(ctx context.Context, classes []Input) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := min(r.opts.jobs(), len(classes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	// One future per input, queued in input order. The buffer bounds how
	// many finished results may wait for the consumer.
	queue := make(chan chan outcome, 2*jobs)
	go func() {
		defer close(queue)
		for _, in := range classes {
			fut := make(chan outcome, 1)
			select {
			case queue <- fut:
			case <-gctx.Done():
				return
			}
			g.Go(func() error {
				fut <- r.translateOne(gctx, in)
				return nil
			})
		}
	}()

	err := r.consume(ctx, queue)
	cancel()
	// Drain so the producer sees the cancellation and stops calling Go
	// before Wait.
	for range queue {
	}
	_ = g.Wait()
	return err
}

func (r *run) consume(ctx context.Context, queue <-chan chan outcome) error {
	for fut := range queue {
		if err := r.apply(ctx, <-fut); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// apply adds one outcome to the container and the diagnostics. A non-nil
// return aborts the run.
func (r *run) apply(ctx context.Context, o outcome) error {
	if o.cacheErr != nil {
		r.res.Bag.Add(diag.New(diag.SevWarning, diag.ObsCache, o.in.Name, o.cacheErr.Error()))
	}
	if o.err == nil {
		o.err = r.file.Add(o.def)
	}
	evt := buildpipeline.Event{File: o.in.Name, Stage: buildpipeline.StageTranslate, Status: buildpipeline.StatusDone, Elapsed: o.elapsed}
	if o.err == nil {
		r.res.Classes++
		if o.cached {
			r.res.Cached++
			evt.Status = buildpipeline.StatusCached
		}
		buildpipeline.Emit(r.opts.Progress, evt)
		return nil
	}
	evt.Status, evt.Err = buildpipeline.StatusError, o.err
	buildpipeline.Emit(r.opts.Progress, evt)

	switch {
	case errors.Is(o.err, context.Canceled), errors.Is(o.err, context.DeadlineExceeded):
		return o.err
	case translate.IsInternal(o.err):
		r.res.Failed++
		r.res.Bag.Add(newDiagnostic(diag.InternalConverter, o.in.Name, o.err))
		if ring := trace.Ring(trace.FromContext(ctx)); ring != nil {
			_ = ring.Dump(r.opts.Stderr, trace.FormatText)
		}
		return o.err
	case errors.Is(o.err, ErrCoreClass):
		r.res.Failed++
		r.res.Bag.Add(newDiagnostic(diag.InputCoreClass, o.in.Name, o.err).
			WithNote("use --core-library only when building the core library itself"))
		return o.err
	}
	r.res.Failed++
	r.res.Bag.Add(newDiagnostic(codeFor(o.err), o.in.Name, o.err))
	if limit := r.opts.maxErrors(); limit > 0 && r.res.Failed >= limit {
		return fmt.Errorf("%w: %d classes failed", ErrTooManyErrors, r.res.Failed)
	}
	return nil
}

// newDiagnostic keeps the first line of err as the message and any context
// trail as notes.
func newDiagnostic(code diag.Code, input string, err error) diag.Diagnostic {
	lines := strings.Split(err.Error(), "\n")
	d := diag.NewError(code, input, lines[0])
	for _, l := range lines[1:] {
		d = d.WithNote(l)
	}
	return d
}

func codeFor(err error) diag.Code {
	var pe *classfile.ParseError
	switch {
	case errors.Is(err, errRead):
		return diag.InputRead
	case errors.Is(err, dexfile.ErrDuplicateClass):
		return diag.InputDuplicate
	case errors.Is(err, classfile.ErrNameMismatch):
		return diag.ParseNameMismatch
	case classfile.IsUnsupported(err):
		return diag.ParseUnsupported
	case errors.As(err, &pe):
		return diag.ParseMalformed
	case translate.IsUnsupported(err):
		return diag.TransUnsupported
	}
	return diag.TransMalformed
}

func (r *run) translateOne(ctx context.Context, in Input) (o outcome) {
	start := time.Now()
	o.in = in
	defer func() { o.elapsed = time.Since(start) }()
	buildpipeline.Emit(r.opts.Progress, buildpipeline.Event{File: in.Name, Stage: buildpipeline.StageTranslate, Status: buildpipeline.StatusWorking})

	if o.err = ctx.Err(); o.err != nil {
		return o
	}
	if o.err = checkClassName(in.ClassPath, r.opts.CoreLibrary); o.err != nil {
		return o
	}
	data, err := in.Read()
	if err != nil {
		o.err = fmt.Errorf("%w: %w", errRead, err)
		return o
	}

	cache := r.opts.Cache
	var key Digest
	if cache != nil {
		if key, err = Fingerprint(r.opts.Cf, in.ClassPath, data); err != nil {
			o.cacheErr, cache = err, nil
		} else if p, ok, err := cache.Get(key); err != nil {
			o.cacheErr = err
		} else if ok {
			def, err := p.ClassDef()
			if err == nil {
				o.def, o.cached = def, true
				return o
			}
			o.cacheErr = err
		}
	}

	if o.def, o.err = r.tr.Translate(ctx, in.ClassPath, data); o.err != nil || cache == nil {
		return o
	}
	p, err := newPayload(o.def)
	if err == nil {
		err = cache.Put(key, p)
	}
	if err != nil && o.cacheErr == nil {
		o.cacheErr = err
	}
	return o
}
