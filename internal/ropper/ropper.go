// Package ropper lowers stack-machine bytecode into register form. Locals
// live in registers [0, maxLocals) and the operand stack above them, one
// register per stack word.
package ropper

import (
	"fmt"
	"slices"

	"classdex/internal/attrib"
	"classdex/internal/bytestream"
	"classdex/internal/cst"
	"classdex/internal/rop"
)

// PositionInfo selects which instructions keep their source position.
type PositionInfo uint8

const (
	PositionNone PositionInfo = iota
	PositionLines
	// PositionImportant keeps positions only where an instruction can throw
	// or leaves the method.
	PositionImportant
)

// ParsePositionInfo maps a config spelling to a PositionInfo.
func ParsePositionInfo(s string) (PositionInfo, error) {
	switch s {
	case "none":
		return PositionNone, nil
	case "", "lines":
		return PositionLines, nil
	case "important":
		return PositionImportant, nil
	}
	return PositionNone, fmt.Errorf("unknown position info %q", s)
}

func (p PositionInfo) String() string {
	switch p {
	case PositionNone:
		return "none"
	case PositionImportant:
		return "important"
	}
	return "lines"
}

// Options controls lowering.
type Options struct {
	Positions PositionInfo
}

// Error is a bytecode problem at a code offset.
type Error struct {
	Offset      int
	Msg         string
	Unsupported bool
}

func (e *Error) Error() string { return fmt.Sprintf("bytecode %04x: %s", e.Offset, e.Msg) }

func malformedf(pc int, format string, args ...any) error {
	return &Error{Offset: pc, Msg: fmt.Sprintf(format, args...)}
}

func unsupportedf(pc int, format string, args ...any) error {
	return &Error{Offset: pc, Msg: fmt.Sprintf(format, args...), Unsupported: true}
}

// Method is what lowering needs to know about the method being converted.
type Method struct {
	Class    cst.Type
	Ref      cst.MethodRef
	IsStatic bool
	Code     *attrib.Code
}

// Result is a lowered method.
type Result struct {
	Rop        *rop.Method
	ParamWidth int
}

// Convert lowers one method body.
func Convert(m Method, pool cst.Pool, opts Options) (*Result, error) {
	if len(m.Code.Catches) > 0 {
		return nil, unsupportedf(m.Code.Catches[0].HandlerPC, "exception handlers")
	}
	proto, err := m.Ref.Prototype()
	if err != nil {
		return nil, err
	}
	insns, leaders, err := scan(m.Code.Bytecode)
	if err != nil {
		return nil, err
	}
	t := &translator{
		m:         m,
		proto:     proto,
		pool:      pool,
		opts:      opts,
		code:      m.Code.Bytecode,
		insns:     insns,
		leaders:   leaders,
		maxLocals: m.Code.MaxLocals,
		maxStack:  m.Code.MaxStack,
		lines:     slices.Clone(m.Code.LineNumbers()),
		entries:   map[int][]cst.Type{},
		blocks:    map[int]*rop.BasicBlock{},
	}
	slices.SortStableFunc(t.lines, func(a, b attrib.LineNumber) int { return a.StartPC - b.StartPC })
	return t.run()
}

type translator struct {
	m         Method
	proto     cst.Prototype
	pool      cst.Pool
	opts      Options
	code      bytestream.Array
	insns     map[int]insnInfo
	leaders   []int
	maxLocals int
	maxStack  int
	lines     []attrib.LineNumber

	// entries holds the operand stack types on entry to each visited block.
	entries map[int][]cst.Type
	blocks  map[int]*rop.BasicBlock

	usesReturnBlock bool
}

func (t *translator) entryLabel() int  { return t.code.Len() }
func (t *translator) returnLabel() int { return t.code.Len() + 1 }
func (t *translator) returnReg() int   { return t.maxLocals + t.maxStack }

func (t *translator) run() (*Result, error) {
	entry, width, err := t.paramBlock()
	if err != nil {
		return nil, err
	}
	t.entries[0] = nil
	work := []int{0}
	for len(work) > 0 {
		pc := work[0]
		work = work[1:]
		b, exit, err := t.translateBlock(pc, slices.Clone(t.entries[pc]))
		if err != nil {
			return nil, err
		}
		t.blocks[pc] = b
		for _, s := range b.Successors {
			if s == t.returnLabel() {
				continue
			}
			prev, seen := t.entries[s]
			if !seen {
				t.entries[s] = exit
				work = append(work, s)
				continue
			}
			if words(prev) != words(exit) {
				return nil, malformedf(s, "stack height mismatch: %d vs %d words", words(prev), words(exit))
			}
		}
	}

	blocks := []*rop.BasicBlock{entry}
	for _, pc := range t.leaders {
		if b, ok := t.blocks[pc]; ok {
			blocks = append(blocks, b)
		}
	}
	if t.usesReturnBlock {
		blocks = append(blocks, t.returnBlock())
	}
	list, err := rop.NewBasicBlockList(blocks)
	if err != nil {
		return nil, err
	}
	return &Result{Rop: rop.NewMethod(list, entry.Label), ParamWidth: width}, nil
}

// paramBlock loads the receiver and parameters into their local slots and
// jumps to the first bytecode block.
func (t *translator) paramBlock() (*rop.BasicBlock, int, error) {
	var insns rop.InsnList
	slot := 0
	load := func(typ cst.Type) {
		res := rop.Spec(slot, typ)
		insns = append(insns, &rop.Insn{
			Op: rop.OpMoveParam, Pos: rop.NoPosition, Result: &res,
			Constant: cst.Integer{Value: int32(slot)}, //nolint:gosec // bounded by max_locals
			Type:     typ,
		})
		slot += typ.Category()
	}
	if !t.m.IsStatic {
		load(t.m.Class)
	}
	for _, p := range t.proto.Params {
		load(p)
	}
	if slot > t.maxLocals {
		return nil, 0, malformedf(0, "parameters need %d slots, max_locals is %d", slot, t.maxLocals)
	}
	insns = append(insns, rop.NewGoto(rop.NoPosition))
	return &rop.BasicBlock{Label: t.entryLabel(), Insns: insns, Successors: []int{0}, Primary: 0}, slot, nil
}

func (t *translator) returnBlock() *rop.BasicBlock {
	insn := &rop.Insn{Op: rop.OpReturn, Pos: rop.NoPosition, Type: t.proto.Return}
	if t.proto.Return != cst.TypeVoid {
		insn.Sources = rop.RegisterSpecList{rop.Spec(t.returnReg(), t.proto.Return)}
	}
	return &rop.BasicBlock{Label: t.returnLabel(), Insns: rop.InsnList{insn}, Primary: -1}
}

func (t *translator) isLeader(pc int) bool {
	_, ok := slices.BinarySearch(t.leaders, pc)
	return ok
}

func (t *translator) position(pc int, important bool) rop.SourcePosition {
	switch t.opts.Positions {
	case PositionNone:
		return rop.NoPosition
	case PositionImportant:
		if !important {
			return rop.NoPosition
		}
	}
	line := -1
	for _, l := range t.lines {
		if l.StartPC > pc {
			break
		}
		line = l.Line
	}
	return rop.SourcePosition{Address: pc, Line: line}
}

func words(stack []cst.Type) int {
	n := 0
	for _, s := range stack {
		n += s.Category()
	}
	return n
}
