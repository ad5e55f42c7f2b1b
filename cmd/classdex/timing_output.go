package main

import (
	"fmt"
	"io"
	"time"

	"classdex/internal/buildpipeline"
	"classdex/internal/observ"
)

func stageTimings(r observ.Report) buildpipeline.Timings {
	var t buildpipeline.Timings
	for _, p := range r.Phases {
		t.Add(buildpipeline.Stage(p.Name), time.Duration(p.DurationMS*float64(time.Millisecond)))
	}
	return t
}

func printPhaseTimings(out io.Writer, r observ.Report) {
	t := stageTimings(r)
	for _, row := range []struct {
		stage buildpipeline.Stage
		label string
	}{
		{buildpipeline.StageDiscover, "discovered"},
		{buildpipeline.StageTranslate, "translated"},
		{buildpipeline.StageWrite, "wrote"},
	} {
		if t.Has(row.stage) {
			fmt.Fprintf(out, "%s %.1f ms\n", row.label, toMillis(t.Duration(row.stage)))
		}
	}
	fmt.Fprintf(out, "total %.1f ms\n", r.TotalMS)
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
