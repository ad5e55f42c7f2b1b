package rop

import (
	"fmt"
	"slices"
)

// BasicBlock is a labelled straight-line instruction run. Every block ends in
// a branching instruction; Primary is -1 when there is no preferred successor.
type BasicBlock struct {
	Label      int
	Insns      InsnList
	Successors []int
	Primary    int
}

// LastInsn returns the block's branch.
func (b *BasicBlock) LastInsn() *Insn { return b.Insns.Last() }

// HasSuccessor reports whether label is a successor of b.
func (b *BasicBlock) HasSuccessor(label int) bool { return slices.Contains(b.Successors, label) }

// SecondarySuccessor returns the successor that is not primary, for a block
// with exactly two successors.
func (b *BasicBlock) SecondarySuccessor() int {
	if len(b.Successors) != 2 {
		return -1
	}
	if b.Successors[0] == b.Primary {
		return b.Successors[1]
	}
	return b.Successors[0]
}

// Clone returns a copy with independent instruction and successor slices.
func (b *BasicBlock) Clone() *BasicBlock {
	return &BasicBlock{
		Label:      b.Label,
		Insns:      slices.Clone(b.Insns),
		Successors: slices.Clone(b.Successors),
		Primary:    b.Primary,
	}
}

// BasicBlockList is the ordered block list of one method.
type BasicBlockList struct {
	blocks  []*BasicBlock
	byLabel map[int]int
}

// NewBasicBlockList indexes blocks by label.
func NewBasicBlockList(blocks []*BasicBlock) (*BasicBlockList, error) {
	l := &BasicBlockList{blocks: blocks, byLabel: make(map[int]int, len(blocks))}
	for i, b := range blocks {
		if _, dup := l.byLabel[b.Label]; dup {
			return nil, fmt.Errorf("duplicate block label %d", b.Label)
		}
		l.byLabel[b.Label] = i
	}
	return l, nil
}

func (l *BasicBlockList) Len() int              { return len(l.blocks) }
func (l *BasicBlockList) At(i int) *BasicBlock  { return l.blocks[i] }
func (l *BasicBlockList) Blocks() []*BasicBlock { return l.blocks }
func (l *BasicBlockList) IndexOfLabel(label int) int {
	if i, ok := l.byLabel[label]; ok {
		return i
	}
	return -1
}

// LabelToBlock returns the block with the given label, or nil.
func (l *BasicBlockList) LabelToBlock(label int) *BasicBlock {
	if i := l.IndexOfLabel(label); i >= 0 {
		return l.blocks[i]
	}
	return nil
}

// RegCount is one past the highest register slot used by any instruction.
func (l *BasicBlockList) RegCount() int {
	n := 0
	l.ForEachInsn(func(insn *Insn) { n = max(n, insn.RegCount()) })
	return n
}

// InstructionCount counts every instruction.
func (l *BasicBlockList) InstructionCount() int {
	n := 0
	for _, b := range l.blocks {
		n += len(b.Insns)
	}
	return n
}

// EffectiveInstructionCount counts instructions other than nops.
func (l *BasicBlockList) EffectiveInstructionCount() int {
	n := 0
	l.ForEachInsn(func(insn *Insn) {
		if insn.Op != OpNop {
			n++
		}
	})
	return n
}

// ForEachInsn visits every instruction in block order.
func (l *BasicBlockList) ForEachInsn(fn func(*Insn)) {
	for _, b := range l.blocks {
		for _, insn := range b.Insns {
			fn(insn)
		}
	}
}

// PreferredSuccessorOf returns the only successor, the primary successor, or
// the first successor, in that order of preference.
func (l *BasicBlockList) PreferredSuccessorOf(b *BasicBlock) *BasicBlock {
	switch len(b.Successors) {
	case 0:
		return nil
	case 1:
		return l.LabelToBlock(b.Successors[0])
	}
	if b.Primary >= 0 {
		return l.LabelToBlock(b.Primary)
	}
	return l.LabelToBlock(b.Successors[0])
}

// MutableCopy deep-copies the list so blocks can be rewritten.
func (l *BasicBlockList) MutableCopy() *BasicBlockList {
	blocks := make([]*BasicBlock, len(l.blocks))
	for i, b := range l.blocks {
		blocks[i] = b.Clone()
	}
	out, _ := NewBasicBlockList(blocks)
	return out
}

// WithRegisters returns a copy with every instruction mapped through m.
func (l *BasicBlockList) WithRegisters(m RegisterMapper) *BasicBlockList {
	out := l.MutableCopy()
	for _, b := range out.blocks {
		b.Insns = b.Insns.WithRegisters(m)
	}
	return out
}
