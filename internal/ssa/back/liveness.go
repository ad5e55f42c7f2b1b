package back

import (
	"classdex/internal/ssa"
)

// blockLiveness holds use/def/in/out sets for one block. Phi results count
// as definitions of their own block; phi sources are live out of the
// predecessor they arrive from, not live into the phi's block.
type blockLiveness struct {
	use regSet
	def regSet
	in  regSet
	out regSet
}

// Liveness is the result of the block-level dataflow over an SSA method.
type Liveness struct {
	blocks []blockLiveness
}

// LiveIn returns the registers live on entry to block, after its phis.
func (l *Liveness) LiveIn(block int) []int { return l.blocks[block].in.sorted() }

// LiveOut returns the registers live on exit from block.
func (l *Liveness) LiveOut(block int) []int { return l.blocks[block].out.sorted() }

// AnalyzeLiveness runs the back-to-front fixpoint: a register is live out of
// a block if it is live into a successor or feeds one of that successor's
// phis along this edge; live-in is live-out minus defined, plus used.
func AnalyzeLiveness(m *ssa.Method) *Liveness {
	info := make([]blockLiveness, len(m.Blocks))
	for i, b := range m.Blocks {
		info[i].use, info[i].def = computeBlockUseDef(b)
		info[i].in = regSet{}
		info[i].out = regSet{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(m.Blocks) - 1; i >= 0; i-- {
			out := regSet{}
			for _, s := range m.Blocks[i].Succs {
				unionSet(out, info[s].in)
				unionSet(out, phiSourcesFrom(m.Blocks[s], i))
			}
			in := cloneSet(info[i].use)
			for r := range out {
				if !info[i].def.has(r) {
					in.add(r)
				}
			}
			if !setEqual(out, info[i].out) || !setEqual(in, info[i].in) {
				info[i].out = out
				info[i].in = in
				changed = true
			}
		}
	}
	return &Liveness{blocks: info}
}

func computeBlockUseDef(b *ssa.BasicBlock) (use, def regSet) {
	use = regSet{}
	def = regSet{}
	for _, phi := range b.Phis() {
		def.add(phi.Result.Reg)
	}
	for _, insn := range b.Normal() {
		for _, s := range insn.Sources {
			if !def.has(s.Reg) {
				use.add(s.Reg)
			}
		}
		if insn.Result != nil {
			def.add(insn.Result.Reg)
		}
	}
	return use, def
}

// phiSourcesFrom collects the phi operands of b that arrive from pred.
func phiSourcesFrom(b *ssa.BasicBlock, pred int) regSet {
	out := regSet{}
	for _, phi := range b.Phis() {
		for i, p := range phi.PhiPreds {
			if p == pred {
				out.add(phi.Sources[i].Reg)
			}
		}
	}
	return out
}
