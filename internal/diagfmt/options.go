// Package diagfmt renders a diag.Bag for the terminal or as JSON.
package diagfmt

// PathMode picks how input names are shown.
type PathMode uint8

const (
	// PathModeAuto shows names as the driver recorded them.
	PathModeAuto PathMode = iota
	PathModeBasename
)

// PrettyOpts configures Pretty.
type PrettyOpts struct {
	Color     bool
	PathMode  PathMode
	ShowNotes bool
	// Max stops after this many diagnostics; 0 shows all.
	Max int
}

// JSONOpts configures JSON.
type JSONOpts struct {
	PathMode     PathMode
	IncludeNotes bool
	Max          int
}
