package translate

import (
	"classdex/internal/ropper"
)

// CfOptions controls how one class file is translated.
type CfOptions struct {
	// PositionInfo selects which source lines survive into the debug info.
	PositionInfo ropper.PositionInfo
	// LocalInfo keeps parameter names from LocalVariableTable.
	LocalInfo bool
	// StrictNameCheck requires the class name to match the input path.
	StrictNameCheck bool
	// Optimize routes every method through SSA form and register
	// allocation; otherwise the lowered register form is encoded as is.
	Optimize bool
	// ParamsHigh keeps incoming parameters in the top registers after
	// allocation. Only used when Optimize is set.
	ParamsHigh bool
}

// DefaultOptions returns the library defaults. The command line turns
// Optimize on.
func DefaultOptions() CfOptions {
	return CfOptions{
		PositionInfo:    ropper.PositionLines,
		StrictNameCheck: true,
		ParamsHigh:      true,
	}
}
