package back

import (
	"slices"

	"classdex/internal/rop"
)

// CombineIdenticalBlocks merges predecessors of a common block that hold
// the same instructions and have that block as their only successor. Every
// predecessor of a merged-away block is repointed at the survivor. A merge
// that leaves a successor without its block is an *InternalError.
func CombineIdenticalBlocks(m *rop.Method) (*rop.Method, error) {
	blocks := m.Blocks
	out := blocks.MutableCopy()
	deleted := map[int]bool{}

	for _, b := range blocks.Blocks() {
		if deleted[b.Label] {
			continue
		}
		preds := m.Predecessors(b.Label)
		for i, iLabel := range preds {
			ib := blocks.LabelToBlock(iLabel)
			if deleted[iLabel] || len(ib.Successors) > 1 || ib.Insns[0].Op == rop.OpMoveResult {
				continue
			}
			var merge []int
			for _, jLabel := range preds[i+1:] {
				jb := blocks.LabelToBlock(jLabel)
				if deleted[jLabel] || jLabel == m.FirstLabel || len(jb.Successors) != 1 {
					continue
				}
				if ib.Insns.ContentEquals(jb.Insns) {
					merge = append(merge, jLabel)
					deleted[jLabel] = true
				}
			}
			for _, beta := range merge {
				for _, p := range m.Predecessors(beta) {
					replaceSuccessor(out.LabelToBlock(p), beta, iLabel)
				}
			}
		}
	}
	if len(deleted) == 0 {
		return m, nil
	}

	kept := slices.DeleteFunc(slices.Clone(out.Blocks()), func(b *rop.BasicBlock) bool { return deleted[b.Label] })
	list, err := rop.NewBasicBlockList(kept)
	if err != nil {
		return nil, wrapInternal(StageBlocksMerged, err)
	}
	for _, b := range kept {
		for _, s := range b.Successors {
			if list.LabelToBlock(s) == nil {
				return nil, internalf(StageBlocksMerged, "block %d: successor %d missing after merge", b.Label, s)
			}
		}
	}
	return rop.NewMethod(list, m.FirstLabel), nil
}

func replaceSuccessor(b *rop.BasicBlock, oldLabel, newLabel int) {
	for i, s := range b.Successors {
		if s == oldLabel {
			b.Successors[i] = newLabel
		}
	}
	if b.Primary == oldLabel {
		b.Primary = newLabel
	}
}
