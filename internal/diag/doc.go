// Package diag is the per-input diagnostic model the driver fills while
// translating and the CLI renders afterwards.
//
// A Diagnostic names the input it concerns (a class file path, or
// "archive.jar!pkg/A.class" for archive entries), a Severity, a stable Code
// and a one-line message. Longer error text, such as a class file parse
// trail, goes into Notes one line each.
//
// Producers report through a Reporter; the driver owns a Bag behind a
// BagReporter and caps how many errors it keeps. Rendering lives in
// internal/diagfmt.
package diag
