package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// Kind separates corrupt input from input that uses features the translator
// does not lower.
type Kind uint8

const (
	KindMalformed Kind = iota
	KindUnsupported
)

func (k Kind) String() string {
	if k == KindUnsupported {
		return "unsupported"
	}
	return "malformed"
}

// ErrNameMismatch is wrapped by the parse error for a class whose name does
// not match its path under the strict name check.
var ErrNameMismatch = errors.New("class name does not match path")

// ParseError is a class file parse failure. Context grows with one frame per
// enclosing structure as the error unwinds, innermost first.
type ParseError struct {
	Kind    Kind
	Msg     string
	Context []string
	Err     error
}

func (e *ParseError) Error() string {
	if len(e.Context) == 0 {
		return e.Msg
	}
	return e.Msg + "\n" + strings.Join(e.Context, "\n")
}

func (e *ParseError) Unwrap() error { return e.Err }

// AddContext appends a frame to the trail.
func (e *ParseError) AddContext(frame string) {
	e.Context = append(e.Context, frame)
}

func malformed(format string, args ...any) *ParseError {
	return &ParseError{Kind: KindMalformed, Msg: fmt.Sprintf(format, args...)}
}

func unsupported(format string, args ...any) *ParseError {
	return &ParseError{Kind: KindUnsupported, Msg: fmt.Sprintf(format, args...)}
}

// asParseError converts any error into a *ParseError, preserving existing
// trails. Foreign errors become malformed-input errors that wrap the cause.
func asParseError(err error) *ParseError {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return &ParseError{Kind: KindMalformed, Msg: err.Error(), Err: err}
}

// withContext converts err and adds a formatted frame. A nil err stays nil.
func withContext(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	pe := asParseError(err)
	pe.AddContext(fmt.Sprintf(format, args...))
	return pe
}

// IsUnsupported reports whether err is a parse error for an unsupported construct.
func IsUnsupported(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Kind == KindUnsupported
}
