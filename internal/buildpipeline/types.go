// Package buildpipeline carries translation progress from the driver to
// whoever displays it.
package buildpipeline

import "time"

// Stage is a step an input goes through.
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageParse     Stage = "parse"
	StageTranslate Stage = "translate"
	StageWrite     Stage = "write"
)

// Status is the state of an input within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	// StatusCached marks an input served from the translation cache.
	StatusCached Status = "cached"
	StatusError  Status = "error"
)

// Finished reports whether s is terminal for an input.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusCached || s == StatusError
}

// Event reports progress for one input, or for the whole run when File is
// empty.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Timings holds per-stage durations summed over a run.
type Timings struct {
	stages map[Stage]time.Duration
}

// Add accumulates dur into stage.
func (t *Timings) Add(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] += dur
}

func (t Timings) Has(stage Stage) bool {
	_, ok := t.stages[stage]
	return ok
}

func (t Timings) Duration(stage Stage) time.Duration { return t.stages[stage] }

// Sum totals the given stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += t.stages[s]
	}
	return total
}
