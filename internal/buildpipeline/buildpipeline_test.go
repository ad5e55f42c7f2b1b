package buildpipeline

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDisplayName(t *testing.T) {
	base := t.TempDir()
	cases := []struct {
		in, want string
	}{
		{filepath.Join(base, "a", "B.class"), "a/B.class"},
		{filepath.Join(base, "lib.jar") + "!x/Y.class", "lib.jar!x/Y.class"},
		{"/elsewhere/C.class", "/elsewhere/C.class"},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.in, base); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSinksAndTimings(t *testing.T) {
	var got []Event
	EmitQueued(FuncSink(func(e Event) { got = append(got, e) }), []string{"a", "b"})
	Emit(nil, Event{})
	if len(got) != 2 || got[1].File != "b" || got[0].Status != StatusQueued {
		t.Fatalf("events = %+v", got)
	}

	var tm Timings
	tm.Add(StageParse, time.Millisecond)
	tm.Add(StageParse, time.Millisecond)
	tm.Add(StageWrite, time.Second)
	if tm.Duration(StageParse) != 2*time.Millisecond || !tm.Has(StageWrite) || tm.Has(StageDiscover) {
		t.Fatalf("timings = %+v", tm)
	}
	if tm.Sum(StageParse, StageWrite) != time.Second+2*time.Millisecond {
		t.Fatal("sum")
	}
	if !StatusCached.Finished() || StatusWorking.Finished() {
		t.Fatal("Finished")
	}
}
