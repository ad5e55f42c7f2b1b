package rop

import (
	"strings"

	"classdex/internal/cst"
)

// SourcePosition is the original bytecode address and line of an instruction.
type SourcePosition struct {
	Address int
	Line    int
}

// NoPosition is used for synthesised instructions.
var NoPosition = SourcePosition{Address: -1, Line: -1}

// Insn is one register-form instruction. Insns are treated as immutable once
// they are in a block; rewriting produces copies.
type Insn struct {
	Op       Opcode
	Pos      SourcePosition
	Result   *RegisterSpec
	Sources  RegisterSpecList
	Constant cst.Constant
	// Type is the operand type for arithmetic, moves and comparisons.
	Type cst.Type
}

// Branching is shorthand for i.Op.Branching().
func (i *Insn) Branching() Branching { return i.Op.Branching() }

// WithRegisters returns a copy with every register passed through m.
func (i *Insn) WithRegisters(m RegisterMapper) *Insn {
	out := *i
	if i.Result != nil {
		r := m.Map(*i.Result)
		out.Result = &r
	}
	out.Sources = MapList(m, i.Sources)
	return &out
}

// WithSources returns a copy with new sources.
func (i *Insn) WithSources(sources RegisterSpecList) *Insn {
	out := *i
	out.Sources = sources
	return &out
}

// ContentEquals compares everything but identity.
func (i *Insn) ContentEquals(o *Insn) bool {
	if i.Op != o.Op || i.Pos != o.Pos || i.Type != o.Type {
		return false
	}
	if (i.Result == nil) != (o.Result == nil) || (i.Result != nil && *i.Result != *o.Result) {
		return false
	}
	if !i.Sources.Equal(o.Sources) {
		return false
	}
	return cst.Equal(i.Constant, o.Constant)
}

func (i *Insn) String() string {
	var sb strings.Builder
	if i.Result != nil {
		sb.WriteString(i.Result.String())
		sb.WriteString(" <- ")
	}
	sb.WriteString(i.Op.String())
	if i.Type.Descriptor != "" {
		sb.WriteString("-")
		sb.WriteString(i.Type.Descriptor)
	}
	for n, s := range i.Sources {
		if n == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(s.String())
	}
	if i.Constant != nil {
		sb.WriteString(" ")
		sb.WriteString(i.Constant.String())
	}
	return sb.String()
}

// RegCount returns one past the highest register slot i touches.
func (i *Insn) RegCount() int {
	n := 0
	if i.Result != nil {
		n = i.Result.NextReg()
	}
	for _, s := range i.Sources {
		n = max(n, s.NextReg())
	}
	return n
}

// NewMove returns a move of src into dst.
func NewMove(dst, src RegisterSpec) *Insn { return NewMoveAt(dst, src, NoPosition) }

// NewMoveAt is NewMove with a source position.
func NewMoveAt(dst, src RegisterSpec, pos SourcePosition) *Insn {
	return &Insn{Op: OpMove, Pos: pos, Result: &dst, Sources: RegisterSpecList{src}, Type: dst.Type}
}

// NewGoto returns an unconditional branch.
func NewGoto(pos SourcePosition) *Insn {
	return &Insn{Op: OpGoto, Pos: pos}
}

// InsnList is an ordered instruction list.
type InsnList []*Insn

// Last returns the final instruction, or nil.
func (l InsnList) Last() *Insn {
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}

// ContentEquals compares two lists element-wise by content.
func (l InsnList) ContentEquals(o InsnList) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if !l[i].ContentEquals(o[i]) {
			return false
		}
	}
	return true
}

// WithRegisters maps every instruction through m.
func (l InsnList) WithRegisters(m RegisterMapper) InsnList {
	out := make(InsnList, len(l))
	for i, insn := range l {
		out[i] = insn.WithRegisters(m)
	}
	return out
}
