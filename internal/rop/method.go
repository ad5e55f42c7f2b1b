// Package rop is the flat register-form representation that methods are
// lowered to before code emission.
package rop

import (
	"errors"
	"fmt"
	"strings"
)

// Method is a register-form method body.
type Method struct {
	Blocks     *BasicBlockList
	FirstLabel int
	preds      map[int][]int
}

// NewMethod wraps a block list with its entry label.
func NewMethod(blocks *BasicBlockList, firstLabel int) *Method {
	return &Method{Blocks: blocks, FirstLabel: firstLabel}
}

// Predecessors returns the labels of blocks that branch to label, in block order.
func (m *Method) Predecessors(label int) []int {
	if m.preds == nil {
		m.preds = make(map[int][]int)
		for _, b := range m.Blocks.Blocks() {
			for _, s := range b.Successors {
				m.preds[s] = append(m.preds[s], b.Label)
			}
		}
	}
	return m.preds[label]
}

// RegCount is the number of registers the method uses.
func (m *Method) RegCount() int { return m.Blocks.RegCount() }

func (m *Method) String() string {
	var sb strings.Builder
	for _, b := range m.Blocks.Blocks() {
		fmt.Fprintf(&sb, "block %d succ=%v primary=%d\n", b.Label, b.Successors, b.Primary)
		for _, insn := range b.Insns {
			sb.WriteString("  ")
			sb.WriteString(insn.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Validate checks the structural invariants of a finished method: every
// block ends in a branch whose kind matches its successor count, every
// successor exists, and no phi survives.
func Validate(m *Method) error {
	if m == nil || m.Blocks == nil {
		return errors.New("nil method")
	}
	var errs []error
	if m.Blocks.LabelToBlock(m.FirstLabel) == nil {
		errs = append(errs, fmt.Errorf("entry block %d missing", m.FirstLabel))
	}
	for _, b := range m.Blocks.Blocks() {
		if err := validateBlock(m.Blocks, b); err != nil {
			errs = append(errs, fmt.Errorf("block %d: %w", b.Label, err))
		}
	}
	return errors.Join(errs...)
}

func validateBlock(l *BasicBlockList, b *BasicBlock) error {
	var errs []error
	last := b.LastInsn()
	if last == nil {
		return errors.New("empty block")
	}
	for i, insn := range b.Insns {
		if insn.Op == OpPhi {
			errs = append(errs, fmt.Errorf("insn %d: phi in register form", i))
		}
		if i < len(b.Insns)-1 && insn.Branching() != BranchNone {
			errs = append(errs, fmt.Errorf("insn %d: branch before end of block", i))
		}
	}
	for _, s := range b.Successors {
		if l.LabelToBlock(s) == nil {
			errs = append(errs, fmt.Errorf("successor %d missing", s))
		}
	}
	if b.Primary >= 0 && !b.HasSuccessor(b.Primary) {
		errs = append(errs, fmt.Errorf("primary %d is not a successor", b.Primary))
	}
	switch last.Branching() {
	case BranchNone:
		errs = append(errs, fmt.Errorf("block ends in non-branch %s", last.Op))
	case BranchGoto:
		if len(b.Successors) != 1 {
			errs = append(errs, fmt.Errorf("goto with %d successors", len(b.Successors)))
		}
	case BranchIf:
		if len(b.Successors) != 2 || b.Primary < 0 {
			errs = append(errs, fmt.Errorf("if with %d successors, primary %d", len(b.Successors), b.Primary))
		}
	case BranchReturn, BranchThrow:
		if len(b.Successors) != 0 {
			errs = append(errs, fmt.Errorf("%s with %d successors", last.Op, len(b.Successors)))
		}
	}
	return errors.Join(errs...)
}
