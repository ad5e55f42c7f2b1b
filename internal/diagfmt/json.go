package diagfmt

import (
	"encoding/json"
	"io"

	"classdex/internal/diag"
)

// DiagnosticJSON is one diagnostic in the JSON report.
type DiagnosticJSON struct {
	Severity string   `json:"severity"`
	Code     string   `json:"code"`
	Title    string   `json:"title"`
	Input    string   `json:"input,omitempty"`
	Message  string   `json:"message"`
	Notes    []string `json:"notes,omitempty"`
}

// DiagnosticsOutput is the root of the JSON report.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
	Dropped     int              `json:"dropped,omitempty"`
}

// BuildOutput converts bag to its JSON form.
func BuildOutput(bag *diag.Bag, opts JSONOpts) DiagnosticsOutput {
	items := bag.Items()
	if opts.Max > 0 && len(items) > opts.Max {
		items = items[:opts.Max]
	}
	out := DiagnosticsOutput{
		Diagnostics: make([]DiagnosticJSON, 0, len(items)),
		Count:       bag.Len(),
		Dropped:     bag.Dropped(),
	}
	for _, d := range items {
		j := DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Title:    d.Code.Title(),
			Message:  d.Message,
		}
		if d.Input != "" {
			j.Input = displayName(d.Input, opts.PathMode)
		}
		if opts.IncludeNotes {
			j.Notes = d.Notes
		}
		out.Diagnostics = append(out.Diagnostics, j)
	}
	return out
}

// JSON writes the indented JSON report.
func JSON(w io.Writer, bag *diag.Bag, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildOutput(bag, opts))
}
