package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLevelScopes(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeDriver, false},
		{LevelPhase, ScopePhase, true},
		{LevelPhase, ScopeClass, false},
		{LevelDetail, ScopeClass, true},
		{LevelDetail, ScopeMethod, false},
		{LevelDebug, ScopeMethod, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
}

func TestRingWrapsAround(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d"} {
		r.Emit(&Event{Kind: KindPoint, Scope: ScopeClass, Name: name})
	}
	var got []string
	for _, ev := range r.Snapshot() {
		got = append(got, ev.Name)
	}
	if strings.Join(got, "") != "bcd" {
		t.Fatalf("snapshot = %v, want [b c d]", got)
	}
}

func TestStartNestsSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)
	ctx := WithTracer(context.Background(), tr)

	run, ctx := Start(ctx, ScopeDriver, "translate")
	class, cctx := Start(ctx, ScopeClass, "class:a/B")
	method, mctx := Start(cctx, ScopeMethod, "method:f")
	if method.ID() != 0 || mctx != cctx {
		t.Fatal("method span should be inert at detail level")
	}
	if CurrentSpan(cctx) != class.ID() || class.parentID != run.ID() {
		t.Fatalf("class span %d parent %d, run %d", class.ID(), class.parentID, run.ID())
	}
	class.WithExtra("methods", "2").End("ok")
	run.End("")

	out := buf.String()
	for _, want := range []string{"→ translate", "    → class:a/B", "← class:a/B (ok) {methods=2}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestNewPicksFormat(t *testing.T) {
	tr, err := New(Config{Level: LevelPhase, Mode: ModeBoth, Output: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	if Ring(tr) == nil {
		t.Fatal("both mode should carry a ring")
	}
	if tr, _ := New(Config{Level: LevelOff}); tr.Enabled() {
		t.Fatal("off level should give the nop tracer")
	}
}
