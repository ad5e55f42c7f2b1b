// Package trace records what the translator is doing: run and phase
// boundaries, every class, and every method conversion.
//
// A Tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span, ctx := trace.Start(ctx, trace.ScopeClass, "class:"+name)
//	defer span.End("")
//
// Levels pick how deep the record goes: phase keeps driver and phase spans,
// detail adds classes, debug adds methods. The error level records nothing
// while running; a ring tracer is dumped when the run dies of an internal
// error.
//
// Storage is either a stream (text or NDJSON written as events happen), a
// ring buffer of the last N events, or both.
package trace
