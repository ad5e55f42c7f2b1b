// Package ssa holds the static single assignment form of a register-form
// method: construction from rop, and the block utilities the back end uses
// to leave SSA again.
package ssa

import (
	"errors"
	"fmt"
	"slices"

	"classdex/internal/rop"
)

// InternalError reports a broken SSA invariant. It indicates a converter
// defect, never bad input.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "ssa: " + e.Msg }

// ErrUndefinedRegister reports a register read on a path that never writes
// it. Unverifiable bytecode produces it.
var ErrUndefinedRegister = errors.New("register read before it is written")

func internalf(format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// Insn is a normal instruction or, when Op is rop.OpPhi, a phi whose
// Sources[i] flows in from block PhiPreds[i].
type Insn struct {
	rop.Insn
	PhiPreds []int
}

// IsPhi reports whether i is a phi.
func (i *Insn) IsPhi() bool { return i.Op == rop.OpPhi }

// IsMove reports whether i is a plain register move.
func (i *Insn) IsMove() bool { return i.Op == rop.OpMove && len(i.Sources) == 1 }

// IsParam reports whether i loads an incoming parameter.
func (i *Insn) IsParam() bool { return i.Op == rop.OpMoveParam }

// ToRop returns the register-form instruction.
func (i *Insn) ToRop() *rop.Insn {
	out := i.Insn
	return &out
}

func newNormal(insn *rop.Insn) *Insn { return &Insn{Insn: *insn} }

// BasicBlock is one SSA block. Phis always precede normal instructions.
type BasicBlock struct {
	Index     int
	RopLabel  int
	Insns     []*Insn
	Preds     []int
	Succs     []int
	Primary   int
	Reachable bool

	movesFromPhisAtEnd       int
	movesFromPhisAtBeginning int
}

// Phis returns the leading phi instructions.
func (b *BasicBlock) Phis() []*Insn {
	n := 0
	for n < len(b.Insns) && b.Insns[n].IsPhi() {
		n++
	}
	return b.Insns[:n]
}

// Normal returns the instructions after the phis.
func (b *BasicBlock) Normal() []*Insn { return b.Insns[len(b.Phis()):] }

// Last returns the final instruction, or nil.
func (b *BasicBlock) Last() *Insn {
	if len(b.Insns) == 0 {
		return nil
	}
	return b.Insns[len(b.Insns)-1]
}

// RemovePhis drops every phi from the block.
func (b *BasicBlock) RemovePhis() { b.Insns = slices.Clone(b.Normal()) }

// Method is an SSA method body.
type Method struct {
	Blocks     []*BasicBlock
	EntryIndex int
	// ExitIndex is the virtual exit block that every return and throw block
	// feeds, or -1 when the method never leaves.
	ExitIndex  int
	RegCount   int
	ParamWidth int
	IsStatic   bool

	spareRegisterBase      int
	borrowedSpareRegisters int
}

// Entry returns the entry block.
func (m *Method) Entry() *BasicBlock { return m.Blocks[m.EntryIndex] }

// Exit returns the virtual exit block, or nil.
func (m *Method) Exit() *BasicBlock {
	if m.ExitIndex < 0 {
		return nil
	}
	return m.Blocks[m.ExitIndex]
}

// PrimarySuccessor returns b's primary successor block, or nil.
func (m *Method) PrimarySuccessor(b *BasicBlock) *BasicBlock {
	if b.Primary < 0 {
		return nil
	}
	return m.Blocks[b.Primary]
}

// RopLabels translates block indices into rop labels.
func (m *Method) RopLabels(indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = m.Blocks[idx].RopLabel
	}
	return out
}

// ForEachInsn visits every instruction in block order.
func (m *Method) ForEachInsn(fn func(*BasicBlock, *Insn)) {
	for _, b := range m.Blocks {
		for _, insn := range b.Insns {
			fn(b, insn)
		}
	}
}

// PhiCount counts the phis left in the method.
func (m *Method) PhiCount() int {
	n := 0
	for _, b := range m.Blocks {
		n += len(b.Phis())
	}
	return n
}

// MapRegisters renumbers every register through mapper and adopts its count.
func (m *Method) MapRegisters(mapper rop.RegisterMapper) {
	for _, b := range m.Blocks {
		for i, insn := range b.Insns {
			mapped := &Insn{Insn: *insn.Insn.WithRegisters(mapper), PhiPreds: insn.PhiPreds}
			b.Insns[i] = mapped
		}
	}
	m.RegCount = mapper.NewRegisterCount()
	m.borrowedSpareRegisters = 0
}

// BorrowSpareRegister reserves category fresh slots above every allocated
// register and returns the first.
func (m *Method) BorrowSpareRegister(category int) int {
	if m.borrowedSpareRegisters == 0 {
		m.spareRegisterBase = m.RegCount
	}
	reg := m.spareRegisterBase + m.borrowedSpareRegisters
	m.borrowedSpareRegisters += category
	m.RegCount = max(m.RegCount, reg+category)
	return reg
}

// ComputeReachability marks every block reachable from the entry.
func (m *Method) ComputeReachability() {
	for _, b := range m.Blocks {
		b.Reachable = false
	}
	m.ForEachBlockDepthFirst(func(b, _ *BasicBlock) { b.Reachable = true })
}

// ForEachBlockDepthFirst visits blocks reachable from the entry in depth-first
// preorder, passing the block it was reached from (nil for the entry).
func (m *Method) ForEachBlockDepthFirst(visit func(b, parent *BasicBlock)) {
	seen := make([]bool, len(m.Blocks))
	var walk func(b, parent *BasicBlock)
	walk = func(b, parent *BasicBlock) {
		if seen[b.Index] {
			return
		}
		seen[b.Index] = true
		visit(b, parent)
		for _, s := range b.Succs {
			walk(m.Blocks[s], b)
		}
	}
	walk(m.Entry(), nil)
}

// ReplaceSuccessor redirects b's edges to oldIdx so they go to newIdx,
// keeping predecessor lists in step.
func (m *Method) ReplaceSuccessor(b *BasicBlock, oldIdx, newIdx int) {
	if oldIdx == newIdx {
		return
	}
	for i, s := range b.Succs {
		if s == oldIdx {
			b.Succs[i] = newIdx
		}
	}
	if b.Primary == oldIdx {
		b.Primary = newIdx
	}
	old := m.Blocks[oldIdx]
	old.Preds = slices.DeleteFunc(old.Preds, func(p int) bool { return p == b.Index })
	nb := m.Blocks[newIdx]
	if !slices.Contains(nb.Preds, b.Index) {
		nb.Preds = append(nb.Preds, b.Index)
	}
}

func (m *Method) addBlock(ropLabel int) *BasicBlock {
	b := &BasicBlock{Index: len(m.Blocks), RopLabel: ropLabel, Primary: -1}
	m.Blocks = append(m.Blocks, b)
	return b
}
