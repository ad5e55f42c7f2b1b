// Package dexcode encodes register-form methods as register-VM code units.
// Only fixed-width formats are emitted, so instruction sizes and branch
// offsets never depend on the final constant indices.
package dexcode

import (
	"errors"
	"fmt"
	"strings"

	"classdex/internal/cst"
	"classdex/internal/rop"
)

// ErrUnsupported marks a method the fixed-format encoder cannot express, such
// as a register number too large for the only available format.
var ErrUnsupported = errors.New("not encodable")

// Indexer resolves constants to their final id table indices.
type Indexer interface {
	StringIndex(s string) (int, error)
	TypeIndex(t cst.Type) (int, error)
	FieldIndex(f cst.FieldRef) (int, error)
	MethodIndex(m cst.MemberRef) (int, error)
}

// Position maps a code address (in code units) to a source line.
type Position struct {
	Address int
	Line    int
}

type insn struct {
	op     uint8
	format format
	regs   []int
	lit    int64
	ref    cst.Constant
	target int
	addr   int
}

// Code is an encoded method body awaiting index resolution.
type Code struct {
	RegistersSize int
	InsSize       int
	OutsSize      int
	// ParamNames holds one entry per declared parameter for the debug info;
	// an empty name is written as absent.
	ParamNames []string

	insns     []insn
	size      int
	labels    map[int]int
	positions []Position
}

// Size is the instruction count in 16-bit code units.
func (c *Code) Size() int { return c.size }

// Positions returns one entry per line change, in address order.
func (c *Code) Positions() []Position { return c.positions }

// Refs lists the constants the code refers to, in instruction order.
func (c *Code) Refs() []cst.Constant {
	var out []cst.Constant
	for _, in := range c.insns {
		if in.ref != nil {
			out = append(out, in.ref)
		}
	}
	for _, n := range c.ParamNames {
		if n != "" {
			out = append(out, cst.String{Value: n})
		}
	}
	return out
}

type encoder struct {
	m        *rop.Method
	code     *Code
	regCount int
	params   int
	shift    int
	lastLine int
}

// Encode lays out the blocks of m and encodes every instruction. paramWidth
// is the number of incoming argument words, which occupy the top registers.
func Encode(m *rop.Method, paramWidth int) (*Code, error) {
	if m.Blocks.LabelToBlock(m.FirstLabel) == nil {
		return nil, fmt.Errorf("missing entry block %d", m.FirstLabel)
	}
	e := &encoder{
		m:        m,
		code:     &Code{labels: map[int]int{}},
		regCount: max(m.RegCount(), paramWidth),
		params:   paramWidth,
		lastLine: -1,
	}
	e.scanInvokes()
	e.code.RegistersSize = e.regCount + e.shift
	e.code.InsSize = paramWidth
	if e.code.RegistersSize > 0xffff {
		return nil, fmt.Errorf("%w: %d registers", ErrUnsupported, e.code.RegistersSize)
	}

	order := e.order()
	for i, b := range order {
		next := -1
		if i+1 < len(order) {
			next = order[i+1].Label
		}
		e.code.labels[b.Label] = e.code.size
		if err := e.block(b, next); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.Label, err)
		}
	}
	return e.code, nil
}

// scanInvokes sizes the outgoing argument area and the scratch range used to
// gather arguments that are not already in consecutive registers.
func (e *encoder) scanInvokes() {
	e.m.Blocks.ForEachInsn(func(in *rop.Insn) {
		if !in.Op.IsInvoke() {
			return
		}
		w := in.Sources.WordCount()
		e.code.OutsSize = max(e.code.OutsSize, w)
		if !consecutive(in.Sources) {
			e.shift = max(e.shift, w)
		}
	})
}

func consecutive(args rop.RegisterSpecList) bool {
	for i := 1; i < len(args); i++ {
		if args[i].Reg != args[i-1].NextReg() {
			return false
		}
	}
	return true
}

// order places the entry first and then follows preferred successors, so
// most gotos become fall-throughs.
func (e *encoder) order() []*rop.BasicBlock {
	l := e.m.Blocks
	placed := make(map[int]bool, l.Len())
	out := make([]*rop.BasicBlock, 0, l.Len())
	starts := append([]*rop.BasicBlock{l.LabelToBlock(e.m.FirstLabel)}, l.Blocks()...)
	for _, b := range starts {
		for b != nil && !placed[b.Label] {
			placed[b.Label] = true
			out = append(out, b)
			b = l.PreferredSuccessorOf(b)
		}
	}
	return out
}

func (e *encoder) r(s rop.RegisterSpec) int { return s.Reg + e.shift }

func (e *encoder) emit(in insn, pos rop.SourcePosition) error {
	for _, r := range in.regs {
		if r >= regLimit[in.format] {
			return fmt.Errorf("%w: register v%d in %s", ErrUnsupported, r, opNames[in.op])
		}
	}
	in.addr = e.code.size
	if pos.Line >= 0 && pos.Line != e.lastLine {
		e.code.positions = append(e.code.positions, Position{Address: in.addr, Line: pos.Line})
		e.lastLine = pos.Line
	}
	e.code.insns = append(e.code.insns, in)
	e.code.size += units[in.format]
	return nil
}

func (e *encoder) block(b *rop.BasicBlock, next int) error {
	for _, in := range b.Insns {
		if err := e.insn(b, in); err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
	}
	switch b.LastInsn().Branching() {
	case rop.BranchGoto, rop.BranchIf:
		fall := b.Primary
		if fall < 0 && len(b.Successors) == 1 {
			fall = b.Successors[0]
		}
		if fall != next {
			return e.emit(insn{op: opGoto32, format: f30t, target: fall}, rop.NoPosition)
		}
	}
	return nil
}

func (e *encoder) insn(b *rop.BasicBlock, in *rop.Insn) error {
	pos := in.Pos
	switch in.Op {
	case rop.OpNop, rop.OpGoto:
		return nil

	case rop.OpMoveParam:
		slot, ok := in.Constant.(cst.Integer)
		if !ok {
			return fmt.Errorf("move-param without slot")
		}
		from := e.regCount - e.params + int(slot.Value) + e.shift
		if to := e.r(*in.Result); to != from {
			return e.emit(insn{op: moveOp(in.Result.Type), format: f32x, regs: []int{to, from}}, pos)
		}
		return nil

	case rop.OpMove:
		to, from := e.r(*in.Result), e.r(in.Sources[0])
		if to == from {
			return nil
		}
		return e.emit(insn{op: moveOp(in.Result.Type), format: f32x, regs: []int{to, from}}, pos)

	case rop.OpMoveResult:
		op := uint8(opMoveResult)
		switch t := in.Result.Type; {
		case t.Category() == 2:
			op = opMoveResultWide
		case t.IsReference():
			op = opMoveResultObj
		}
		return e.emit(insn{op: op, format: f11x, regs: []int{e.r(*in.Result)}}, pos)

	case rop.OpConst:
		return e.constant(in)

	case rop.OpAdd, rop.OpSub, rop.OpMul, rop.OpAnd, rop.OpOr, rop.OpXor, rop.OpShl, rop.OpShr, rop.OpUshr:
		return e.binop(in)

	case rop.OpNeg:
		op := uint8(opNegInt)
		if in.Type.Category() == 2 {
			op = opNegLong
		}
		return e.emit(insn{op: op, format: f12x, regs: []int{e.r(*in.Result), e.r(in.Sources[0])}}, pos)

	case rop.OpConv:
		var op uint8
		switch {
		case intLike(in.Sources[0].Type) && in.Result.Type == cst.TypeLong:
			op = opIntToLong
		case in.Sources[0].Type == cst.TypeLong && intLike(in.Result.Type):
			op = opLongToInt
		default:
			return fmt.Errorf("%w: conversion %s to %s", ErrUnsupported, in.Sources[0].Type, in.Result.Type)
		}
		return e.emit(insn{op: op, format: f12x, regs: []int{e.r(*in.Result), e.r(in.Sources[0])}}, pos)

	case rop.OpIfEq, rop.OpIfNe, rop.OpIfLt, rop.OpIfGe, rop.OpIfGt, rop.OpIfLe:
		delta := uint8(in.Op - rop.OpIfEq)
		target := b.SecondarySuccessor()
		if len(in.Sources) == 1 {
			return e.emit(insn{op: opIfEqz + delta, format: f21t, regs: []int{e.r(in.Sources[0])}, target: target}, pos)
		}
		return e.emit(insn{op: opIfEq + delta, format: f22t, regs: []int{e.r(in.Sources[0]), e.r(in.Sources[1])}, target: target}, pos)

	case rop.OpReturn:
		if len(in.Sources) == 0 {
			return e.emit(insn{op: opReturnVoid, format: f10x}, pos)
		}
		op := uint8(opReturn)
		switch t := in.Sources[0].Type; {
		case t.Category() == 2:
			op = opReturnWide
		case t.IsReference():
			op = opReturnObject
		}
		return e.emit(insn{op: op, format: f11x, regs: []int{e.r(in.Sources[0])}}, pos)

	case rop.OpThrow:
		return e.emit(insn{op: opThrow, format: f11x, regs: []int{e.r(in.Sources[0])}}, pos)

	case rop.OpGetStatic:
		ref := in.Constant.(cst.FieldRef)
		return e.emit(insn{op: opSget + variant(ref.Type()), format: f21c, regs: []int{e.r(*in.Result)}, ref: ref}, pos)
	case rop.OpPutStatic:
		ref := in.Constant.(cst.FieldRef)
		return e.emit(insn{op: opSput + variant(ref.Type()), format: f21c, regs: []int{e.r(in.Sources[0])}, ref: ref}, pos)
	case rop.OpGetField:
		ref := in.Constant.(cst.FieldRef)
		return e.emit(insn{op: opIget + variant(ref.Type()), format: f22c, regs: []int{e.r(*in.Result), e.r(in.Sources[0])}, ref: ref}, pos)
	case rop.OpPutField:
		ref := in.Constant.(cst.FieldRef)
		return e.emit(insn{op: opIput + variant(ref.Type()), format: f22c, regs: []int{e.r(in.Sources[0]), e.r(in.Sources[1])}, ref: ref}, pos)

	case rop.OpInvokeStatic, rop.OpInvokeVirtual, rop.OpInvokeDirect, rop.OpInvokeSuper, rop.OpInvokeInterface:
		return e.invoke(in)

	case rop.OpNewInstance:
		return e.emit(insn{op: opNewInstance, format: f21c, regs: []int{e.r(*in.Result)}, ref: in.Constant}, pos)

	case rop.OpCheckCast:
		to, from := e.r(*in.Result), e.r(in.Sources[0])
		if to != from {
			if err := e.emit(insn{op: opMoveObject16, format: f32x, regs: []int{to, from}}, pos); err != nil {
				return err
			}
		}
		return e.emit(insn{op: opCheckCast, format: f21c, regs: []int{to}, ref: in.Constant}, pos)

	case rop.OpArrayLength:
		return e.emit(insn{op: opArrayLength, format: f12x, regs: []int{e.r(*in.Result), e.r(in.Sources[0])}}, pos)
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, in.Op)
}

func (e *encoder) constant(in *rop.Insn) error {
	dst := []int{e.r(*in.Result)}
	switch c := in.Constant.(type) {
	case cst.String:
		return e.emit(insn{op: opConstString32, format: f31c, regs: dst, ref: c}, in.Pos)
	case cst.Long, cst.Double:
		return e.emit(insn{op: opConstWide, format: f51l, regs: dst, lit: c.(cst.Literal).Bits()}, in.Pos)
	case cst.Literal:
		return e.emit(insn{op: opConst, format: f31i, regs: dst, lit: int64(int32(c.Bits()))}, in.Pos) //nolint:gosec // raw 32-bit pattern
	}
	return fmt.Errorf("%w: constant %v", ErrUnsupported, in.Constant)
}

func (e *encoder) binop(in *rop.Insn) error {
	res := e.r(*in.Result)
	if in.Constant != nil {
		lit, ok := in.Constant.(cst.Integer)
		if in.Op != rop.OpAdd || !ok {
			return fmt.Errorf("%w: %s with a literal", ErrUnsupported, in.Op)
		}
		src := e.r(in.Sources[0])
		if lit.Value >= -128 && lit.Value <= 127 {
			return e.emit(insn{op: opAddIntLit8, format: f22b, regs: []int{res, src}, lit: int64(lit.Value)}, in.Pos)
		}
		if lit.Value < -32768 || lit.Value > 32767 {
			return fmt.Errorf("%w: literal %d", ErrUnsupported, lit.Value)
		}
		return e.emit(insn{op: opAddIntLit16, format: f22s, regs: []int{res, src}, lit: int64(lit.Value)}, in.Pos)
	}
	op, ok := binop(in.Op, in.Type)
	if !ok {
		return fmt.Errorf("%w: %s of %s", ErrUnsupported, in.Op, in.Type)
	}
	return e.emit(insn{op: op, format: f23x, regs: []int{res, e.r(in.Sources[0]), e.r(in.Sources[1])}}, in.Pos)
}

func (e *encoder) invoke(in *rop.Insn) error {
	op := map[rop.Opcode]uint8{
		rop.OpInvokeStatic:    opInvokeStaticR,
		rop.OpInvokeVirtual:   opInvokeVirtualR,
		rop.OpInvokeDirect:    opInvokeDirectR,
		rop.OpInvokeSuper:     opInvokeSuperR,
		rop.OpInvokeInterface: opInvokeIfaceR,
	}[in.Op]
	args := in.Sources
	width := args.WordCount()
	if width > 0xff {
		return fmt.Errorf("%w: %d argument words", ErrUnsupported, width)
	}
	first := 0
	switch {
	case len(args) == 0:
	case consecutive(args):
		first = e.r(args[0])
	default:
		at := 0
		for _, a := range args {
			if err := e.emit(insn{op: moveOp(a.Type), format: f32x, regs: []int{at, e.r(a)}}, in.Pos); err != nil {
				return err
			}
			at += a.Category()
		}
	}
	return e.emit(insn{op: op, format: f3rc, regs: []int{first}, lit: int64(width), ref: in.Constant}, in.Pos)
}

func moveOp(t cst.Type) uint8 {
	switch {
	case t.Category() == 2:
		return opMoveWide16
	case t.IsReference():
		return opMoveObject16
	}
	return opMove16
}

func intLike(t cst.Type) bool {
	switch t {
	case cst.TypeInt, cst.TypeBoolean, cst.TypeByte, cst.TypeChar, cst.TypeShort:
		return true
	}
	return false
}

// variant selects the typed member of the get/put families.
func variant(t cst.Type) uint8 {
	switch {
	case t.Category() == 2:
		return 1
	case t.IsReference():
		return 2
	case t == cst.TypeBoolean:
		return 3
	case t == cst.TypeByte:
		return 4
	case t == cst.TypeChar:
		return 5
	case t == cst.TypeShort:
		return 6
	}
	return 0
}

func binop(op rop.Opcode, t cst.Type) (uint8, bool) {
	offsets := map[rop.Opcode]uint8{
		rop.OpAdd: 0, rop.OpSub: 1, rop.OpMul: 2,
		rop.OpAnd: 5, rop.OpOr: 6, rop.OpXor: 7,
		rop.OpShl: 8, rop.OpShr: 9, rop.OpUshr: 10,
	}
	off, ok := offsets[op]
	if !ok {
		return 0, false
	}
	switch {
	case intLike(t):
		return opAddInt + off, true
	case t == cst.TypeLong:
		return opAddLong + off, true
	case off > 2:
		return 0, false
	case t == cst.TypeFloat:
		return opAddFloat + off, true
	case t == cst.TypeDouble:
		return opAddDouble + off, true
	}
	return 0, false
}

// Units resolves constant references through idx and returns the
// instruction stream.
func (c *Code) Units(idx Indexer) ([]uint16, error) {
	out := make([]uint16, 0, c.size)
	for _, in := range c.insns {
		ref, err := resolve(in.ref, idx)
		if err != nil {
			return nil, fmt.Errorf("%04x %s: %w", in.addr, opNames[in.op], err)
		}
		if ref > 0xffff && in.format != f31c {
			return nil, fmt.Errorf("%04x %s: %w: index %d", in.addr, opNames[in.op], ErrUnsupported, ref)
		}
		off := 0
		if in.format == f21t || in.format == f22t || in.format == f30t {
			dest, ok := c.labels[in.target]
			if !ok {
				return nil, fmt.Errorf("%04x %s: unknown target block %d", in.addr, opNames[in.op], in.target)
			}
			off = dest - in.addr
			if in.format != f30t && (off < -32768 || off > 32767) {
				return nil, fmt.Errorf("%04x %s: %w: branch offset %d", in.addr, opNames[in.op], ErrUnsupported, off)
			}
		}
		out = in.encode(out, ref, off)
	}
	return out, nil
}

func resolve(ref cst.Constant, idx Indexer) (int, error) {
	switch c := ref.(type) {
	case nil:
		return 0, nil
	case cst.String:
		return idx.StringIndex(c.Value)
	case cst.Type:
		return idx.TypeIndex(c)
	case cst.FieldRef:
		return idx.FieldIndex(c)
	case cst.MemberRef:
		return idx.MethodIndex(c)
	}
	return 0, fmt.Errorf("unexpected constant %s", ref.Kind())
}

func (in insn) encode(out []uint16, ref, off int) []uint16 {
	op := uint16(in.op)
	reg := func(i int) uint16 { return uint16(in.regs[i]) } //nolint:gosec // checked against regLimit
	switch in.format {
	case f10x:
		return append(out, op)
	case f11x:
		return append(out, op|reg(0)<<8)
	case f12x:
		return append(out, op|reg(0)<<8|reg(1)<<12)
	case f21c:
		return append(out, op|reg(0)<<8, uint16(ref))
	case f21t:
		return append(out, op|reg(0)<<8, uint16(off))
	case f22b:
		return append(out, op|reg(0)<<8, reg(1)|uint16(uint8(in.lit))<<8)
	case f22c:
		return append(out, op|reg(0)<<8|reg(1)<<12, uint16(ref))
	case f22s:
		return append(out, op|reg(0)<<8|reg(1)<<12, uint16(in.lit))
	case f22t:
		return append(out, op|reg(0)<<8|reg(1)<<12, uint16(off))
	case f23x:
		return append(out, op|reg(0)<<8, reg(1)|reg(2)<<8)
	case f30t:
		return append(out, op, uint16(off), uint16(off>>16))
	case f31c:
		return append(out, op|reg(0)<<8, uint16(ref), uint16(ref>>16))
	case f31i:
		return append(out, op|reg(0)<<8, uint16(in.lit), uint16(in.lit>>16))
	case f32x:
		return append(out, op, reg(0), reg(1))
	case f3rc:
		return append(out, op|uint16(in.lit)<<8, uint16(ref), reg(0))
	case f51l:
		return append(out, op|reg(0)<<8, uint16(in.lit), uint16(in.lit>>16), uint16(in.lit>>32), uint16(in.lit>>48))
	}
	return out
}

func (c *Code) String() string {
	var sb strings.Builder
	for _, in := range c.insns {
		fmt.Fprintf(&sb, "%04x: %s", in.addr, opNames[in.op])
		for i, r := range in.regs {
			sep := ", "
			if i == 0 {
				sep = " "
			}
			fmt.Fprintf(&sb, "%sv%d", sep, r)
		}
		switch in.format {
		case f21t, f22t, f30t:
			fmt.Fprintf(&sb, " -> %04x", c.labels[in.target])
		case f22b, f22s, f31i, f51l:
			fmt.Fprintf(&sb, " #%d", in.lit)
		case f3rc:
			fmt.Fprintf(&sb, " {%d}", in.lit)
		}
		if in.ref != nil {
			fmt.Fprintf(&sb, " %s", in.ref)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
