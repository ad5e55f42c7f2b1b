package diag

import "fmt"

// Code identifies a kind of diagnostic. The thousands digit picks the
// family: 1 class file parsing, 2 translation, 3 inputs, 6 observability,
// 9 internal.
type Code uint16

const (
	UnknownCode Code = 0

	ParseMalformed    Code = 1001
	ParseUnsupported  Code = 1002
	ParseNameMismatch Code = 1003

	TransUnsupported Code = 2001
	TransMalformed   Code = 2002
	TransContainer   Code = 2003

	InputRead      Code = 3001
	InputCoreClass Code = 3002
	InputDuplicate Code = 3003
	InputSkipped   Code = 3004

	ObsTimings Code = 6001
	ObsCache   Code = 6002

	InternalConverter Code = 9001
)

var codeDescription = map[Code]string{
	UnknownCode:       "unknown error",
	ParseMalformed:    "malformed class file",
	ParseUnsupported:  "unsupported class file construct",
	ParseNameMismatch: "class name does not match its path",
	TransUnsupported:  "unsupported bytecode",
	TransMalformed:    "malformed bytecode",
	TransContainer:    "class rejected by the output container",
	InputRead:         "input could not be read",
	InputCoreClass:    "core library class outside --core-library",
	InputDuplicate:    "class defined more than once",
	InputSkipped:      "input skipped",
	ObsTimings:        "timings",
	ObsCache:          "translation cache",
	InternalConverter: "internal converter error",
}

// ID is the stable short form, for example "CLS1001".
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("CLS%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("TRN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("IN%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	case ic >= 9000:
		return fmt.Sprintf("INT%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	if desc, ok := codeDescription[c]; ok {
		return desc
	}
	return codeDescription[UnknownCode]
}

func (c Code) String() string { return fmt.Sprintf("[%s]: %s", c.ID(), c.Title()) }
