package diagfmt

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/fatih/color"

	"classdex/internal/diag"
)

func displayName(input string, mode PathMode) string {
	if input == "" {
		return "<run>"
	}
	if mode == PathModeBasename {
		if i := strings.LastIndexByte(input, '!'); i >= 0 {
			return path.Base(input[i+1:])
		}
		return path.Base(input)
	}
	return input
}

func severityColor(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return color.New(color.FgRed, color.Bold)
	case diag.SevWarning:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.FgCyan)
}

// Pretty prints one "<input>: SEV CODE: message" line per diagnostic, notes
// indented beneath, then a count line. Call bag.Sort first for stable
// output.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) {
	items := bag.Items()
	if opts.Max > 0 && len(items) > opts.Max {
		items = items[:opts.Max]
	}
	paint := func(c *color.Color, s string) string {
		if !opts.Color {
			return s
		}
		c.EnableColor()
		return c.Sprint(s)
	}
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)
	for _, d := range items {
		fmt.Fprintf(w, "%s: %s %s: %s\n",
			paint(bold, displayName(d.Input, opts.PathMode)),
			paint(severityColor(d.Severity), d.Severity.String()),
			d.Code.ID(),
			d.Message)
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(w, "    %s\n", paint(faint, n))
		}
	}
	hidden := len(bag.Items()) - len(items) + bag.Dropped()
	errs, warns := bag.Count(diag.SevError), bag.Count(diag.SevWarning)-bag.Count(diag.SevError)
	if errs+warns == 0 && hidden == 0 {
		return
	}
	fmt.Fprintf(w, "%d error(s), %d warning(s)", errs, warns)
	if hidden > 0 {
		fmt.Fprintf(w, ", %d more not shown", hidden)
	}
	fmt.Fprintln(w)
}
