package ui

import (
	"strings"
	"testing"

	"classdex/internal/buildpipeline"
)

func TestProgressModelTracksInputs(t *testing.T) {
	m := NewProgressModel("translate", []string{"a/A.class"}, nil).(*progressModel)
	m.apply(buildpipeline.Event{File: "a/A.class", Stage: buildpipeline.StageTranslate, Status: buildpipeline.StatusWorking})
	m.apply(buildpipeline.Event{File: "b/B.class", Stage: buildpipeline.StageDiscover, Status: buildpipeline.StatusQueued})
	m.apply(buildpipeline.Event{File: "a/A.class", Stage: buildpipeline.StageWrite, Status: buildpipeline.StatusDone})
	m.apply(buildpipeline.Event{Stage: buildpipeline.StageWrite})

	view := m.View()
	for _, want := range []string{"translate (writing)", "done a/A.class", "queued b/B.class", "2 classes: 1 translated, 0 cached, 0 failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("com/example/VeryLongName.class", 10); got != "com/exa..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
