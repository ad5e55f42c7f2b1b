package observ

import (
	"errors"
	"strings"
	"testing"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	idx := tm.Begin("discover")
	tm.End(idx, "3 inputs")
	tm.End(42, "ignored")
	err := tm.Time("write", func() error { return errors.New("disk full") })
	if err == nil {
		t.Fatal("Time should return fn's error")
	}

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Note != "3 inputs" || r.Phases[1].Note != "failed" {
		t.Fatalf("report = %+v", r)
	}
	s := tm.Summary()
	if !strings.Contains(s, "discover") || !strings.Contains(s, "total") {
		t.Fatalf("summary:\n%s", s)
	}
}

func TestEmptyTimer(t *testing.T) {
	if r := NewTimer().Report(); r.Phases != nil || r.TotalMS != 0 {
		t.Fatalf("report = %+v", r)
	}
}
