package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"classdex/internal/diag"
)

func sampleBag() *diag.Bag {
	b := diag.NewBag(0)
	b.Add(diag.NewError(diag.ParseMalformed, "lib.jar!a/A.class", "truncated class file").
		WithNote("...while parsing cst 0003 at offset 0000000e"))
	b.Add(diag.New(diag.SevWarning, diag.InputSkipped, "res/x.txt", "not a class"))
	return b
}

func TestPretty(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, sampleBag(), PrettyOpts{ShowNotes: true, PathMode: PathModeBasename})
	want := strings.Join([]string{
		"A.class: ERROR CLS1001: truncated class file",
		"    ...while parsing cst 0003 at offset 0000000e",
		"x.txt: WARNING IN3004: not a class",
		"1 error(s), 1 warning(s)",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(), JSONOpts{Max: 1}); err != nil {
		t.Fatal(err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 2 || len(out.Diagnostics) != 1 || out.Diagnostics[0].Input != "lib.jar!a/A.class" {
		t.Fatalf("output = %+v", out)
	}
	if out.Diagnostics[0].Notes != nil {
		t.Fatal("notes should be omitted")
	}
}
