package translate

import (
	"errors"
	"fmt"

	"classdex/internal/classfile"
	"classdex/internal/dexcode"
	"classdex/internal/ropper"
	"classdex/internal/ssa"
	"classdex/internal/ssa/back"
)

// ErrUnsupported marks a construct this translator does not handle.
var ErrUnsupported = errors.New("unsupported")

// Error attributes a failure to a class and, when known, a member.
type Error struct {
	Class  string
	Member string
	Err    error
}

func (e *Error) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.Class, e.Member, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnsupported reports whether err stems from input the translator
// recognises but cannot express, as opposed to a malformed class.
func IsUnsupported(err error) bool {
	if errors.Is(err, ErrUnsupported) || errors.Is(err, dexcode.ErrUnsupported) || classfile.IsUnsupported(err) {
		return true
	}
	var re *ropper.Error
	return errors.As(err, &re) && re.Unsupported
}

// IsInternal reports whether err is a converter consistency failure. Those
// point at a defect rather than at the input.
func IsInternal(err error) bool {
	var be *back.InternalError
	var se *ssa.InternalError
	return errors.As(err, &be) || errors.As(err, &se)
}
