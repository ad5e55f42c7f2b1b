package ssa

import (
	"slices"

	"classdex/internal/rop"
)

// AddMoveToEnd appends result <- source on the way out of b. A block that
// ends in a bare goto gets the move just before the goto; any other block
// passes it to the start of its single successor.
func (m *Method) AddMoveToEnd(b *BasicBlock, result, source rop.RegisterSpec) error {
	if len(b.Succs) > 1 {
		return internalf("block %d: cannot add move to end of block with %d successors", b.RopLabel, len(b.Succs))
	}
	if result.Reg == source.Reg {
		return nil
	}
	last := b.Last()
	if last == nil {
		return internalf("block %d: empty block", b.RopLabel)
	}
	if last.Result != nil || len(last.Sources) > 0 {
		if len(b.Succs) == 0 {
			return internalf("block %d: no successor for move", b.RopLabel)
		}
		m.AddMoveToBeginning(m.Blocks[b.Succs[0]], result, source)
		return nil
	}
	move := newNormal(rop.NewMove(result, source))
	b.Insns = slices.Insert(b.Insns, len(b.Insns)-1, move)
	b.movesFromPhisAtEnd++
	return nil
}

// AddMoveToBeginning inserts result <- source after b's phis.
func (m *Method) AddMoveToBeginning(b *BasicBlock, result, source rop.RegisterSpec) {
	if result.Reg == source.Reg {
		return
	}
	move := newNormal(rop.NewMove(result, source))
	b.Insns = slices.Insert(b.Insns, len(b.Phis())+b.movesFromPhisAtBeginning, move)
	b.movesFromPhisAtBeginning++
}

// ScheduleMovesFromPhis orders the parallel moves that phi removal put in b,
// both the batch after its phis and the batch before its final goto, so that
// no move clobbers a register a later move of the same batch still reads. A
// cycle is broken by copying one source into a spare register.
func (m *Method) ScheduleMovesFromPhis(b *BasicBlock) error {
	n, err := m.scheduleMoves(b, len(b.Phis()), b.movesFromPhisAtBeginning)
	if err != nil {
		return err
	}
	b.movesFromPhisAtBeginning = n
	end := len(b.Insns) - 1
	if n, err = m.scheduleMoves(b, end-b.movesFromPhisAtEnd, b.movesFromPhisAtEnd); err != nil {
		return err
	}
	b.movesFromPhisAtEnd = n
	return nil
}

// scheduleMoves reorders the n moves at b.Insns[start:] and returns how many
// instructions replace them.
func (m *Method) scheduleMoves(b *BasicBlock, start, n int) (int, error) {
	if n < 2 {
		return n, nil
	}
	end := start + n
	remaining := slices.Clone(b.Insns[start:end])
	scheduled := make([]*Insn, 0, n+1)

	clobbers := func(mv *Insn, self int) bool {
		for i, other := range remaining {
			if i != self && mv.Result.Overlaps(other.Sources[0]) {
				return true
			}
		}
		return false
	}

	for budget := 2*n + 2; len(remaining) > 0; budget-- {
		if budget == 0 {
			return 0, internalf("block %d: could not schedule %d moves", b.RopLabel, len(remaining))
		}
		progress := false
		for i := 0; i < len(remaining); {
			if clobbers(remaining[i], i) {
				i++
				continue
			}
			scheduled = append(scheduled, remaining[i])
			remaining = slices.Delete(remaining, i, i+1)
			progress = true
		}
		if progress || len(remaining) == 0 {
			continue
		}
		mv := remaining[0]
		src := mv.Sources[0]
		tmp := src.WithReg(m.BorrowSpareRegister(src.Category()))
		scheduled = append(scheduled, newNormal(rop.NewMove(tmp, src)))
		remaining[0] = newNormal(rop.NewMove(*mv.Result, tmp))
	}

	b.Insns = slices.Replace(b.Insns, start, end, scheduled...)
	return len(scheduled), nil
}
