package dexcode

import (
	"slices"

	"fortio.org/safecast"

	"classdex/internal/leb128"
)

const (
	dbgEndSequence = 0x00
	dbgAdvancePC   = 0x01
	dbgAdvanceLine = 0x02
	// dbgFirstSpecial+4 emits a position entry without moving the address
	// or the line.
	dbgFirstSpecial = 0x0a
	dbgLineBase     = -4
)

// DebugInfo encodes the line table and parameter names as a
// debug_info_item for a method with paramCount declared parameters. It
// returns nil when there is nothing to record.
func (c *Code) DebugInfo(paramCount int, idx Indexer) ([]byte, error) {
	named := slices.ContainsFunc(c.ParamNames, func(n string) bool { return n != "" })
	if len(c.positions) == 0 && !named {
		return nil, nil
	}
	line := 1
	if len(c.positions) > 0 {
		line = c.positions[0].Line
	}
	start, err := safecast.Conv[uint32](line)
	if err != nil {
		return nil, err
	}
	n, err := safecast.Conv[uint32](paramCount)
	if err != nil {
		return nil, err
	}
	out := leb128.AppendUnsigned(nil, start)
	out = leb128.AppendUnsigned(out, n)
	for i := range paramCount {
		// name_idx+1; zero means no name.
		var name uint32
		if i < len(c.ParamNames) && c.ParamNames[i] != "" {
			si, err := idx.StringIndex(c.ParamNames[i])
			if err != nil {
				return nil, err
			}
			if name, err = safecast.Conv[uint32](si + 1); err != nil {
				return nil, err
			}
		}
		out = leb128.AppendUnsigned(out, name)
	}
	addr := 0
	for _, p := range c.positions {
		if d := p.Address - addr; d > 0 {
			du, err := safecast.Conv[uint32](d)
			if err != nil {
				return nil, err
			}
			out = leb128.AppendUnsigned(append(out, dbgAdvancePC), du)
		}
		if d := p.Line - line; d != 0 {
			ds, err := safecast.Conv[int32](d)
			if err != nil {
				return nil, err
			}
			out = leb128.AppendSigned(append(out, dbgAdvanceLine), ds)
		}
		out = append(out, dbgFirstSpecial-dbgLineBase)
		addr, line = p.Address, p.Line
	}
	return append(out, dbgEndSequence), nil
}
