package ssa

import (
	"fmt"
	"slices"

	"classdex/internal/cst"
	"classdex/internal/rop"
)

// FromRop converts a register-form method into SSA form. paramWidth is the
// number of slots taken by the incoming parameters, receiver included.
//
// Construction splits critical edges with goto blocks, routes every return
// and throw block into one virtual exit block, and places pruned phis on the
// dominance frontiers before renaming along the dominator tree.
func FromRop(rm *rop.Method, paramWidth int, isStatic bool) (*Method, error) {
	m := &Method{ExitIndex: -1, ParamWidth: paramWidth, IsStatic: isStatic}
	if err := m.copyBlocks(rm); err != nil {
		return nil, err
	}
	if len(m.Entry().Preds) != 0 {
		return nil, internalf("entry block %d has predecessors", m.Entry().RopLabel)
	}
	m.splitCriticalEdges()
	m.makeExitBlock()

	idom := dominators(m)
	df := dominanceFrontiers(m, idom)
	phiOrig := m.placePhis(df)
	r := &renamer{m: m, children: domChildren(m, idom), phiOrig: phiOrig, stacks: map[int][]rop.RegisterSpec{}}
	if err := r.rename(m.EntryIndex); err != nil {
		return nil, err
	}
	if err := resolvePhiTypes(m); err != nil {
		return nil, err
	}
	m.RegCount = r.next
	m.ComputeReachability()
	return m, nil
}

func (m *Method) maxRopLabel() int {
	n := -1
	for _, b := range m.Blocks {
		n = max(n, b.RopLabel)
	}
	return n
}

func (m *Method) copyBlocks(rm *rop.Method) error {
	reachable := map[int]bool{}
	var visit func(label int)
	visit = func(label int) {
		if reachable[label] {
			return
		}
		reachable[label] = true
		if b := rm.Blocks.LabelToBlock(label); b != nil {
			for _, s := range b.Successors {
				visit(s)
			}
		}
	}
	visit(rm.FirstLabel)

	index := map[int]int{}
	for _, rb := range rm.Blocks.Blocks() {
		if !reachable[rb.Label] {
			continue
		}
		b := m.addBlock(rb.Label)
		index[rb.Label] = b.Index
		for _, insn := range rb.Insns {
			if insn.Op == rop.OpPhi {
				return internalf("phi in register-form block %d", rb.Label)
			}
			b.Insns = append(b.Insns, newNormal(insn))
		}
	}
	entry, ok := index[rm.FirstLabel]
	if !ok {
		return internalf("entry block %d missing", rm.FirstLabel)
	}
	m.EntryIndex = entry
	for _, rb := range rm.Blocks.Blocks() {
		bi, ok := index[rb.Label]
		if !ok {
			continue
		}
		b := m.Blocks[bi]
		for _, s := range rb.Successors {
			si, ok := index[s]
			if !ok {
				return internalf("block %d: successor %d missing", rb.Label, s)
			}
			b.Succs = append(b.Succs, si)
			if !slices.Contains(m.Blocks[si].Preds, bi) {
				m.Blocks[si].Preds = append(m.Blocks[si].Preds, bi)
			}
		}
		if rb.Primary >= 0 {
			b.Primary = index[rb.Primary]
		}
	}
	return nil
}

// splitCriticalEdges puts a goto block on every edge from a block with
// several successors into a block with several predecessors.
func (m *Method) splitCriticalEdges() {
	label := m.maxRopLabel()
	for _, b := range slices.Clone(m.Blocks) {
		if len(b.Succs) < 2 {
			continue
		}
		for i, s := range b.Succs {
			succ := m.Blocks[s]
			if len(succ.Preds) < 2 {
				continue
			}
			label++
			n := m.addBlock(label)
			n.Insns = []*Insn{newNormal(rop.NewGoto(b.Last().Pos))}
			n.Succs = []int{s}
			n.Primary = s
			n.Preds = []int{b.Index}
			if b.Primary == s && !slices.Contains(b.Succs[:i], s) {
				b.Primary = n.Index
			}
			b.Succs[i] = n.Index
			succ.Preds = append(succ.Preds, n.Index)
		}
	}
	// Drop predecessor entries for edges that were rerouted.
	for _, b := range m.Blocks {
		b.Preds = slices.DeleteFunc(b.Preds, func(p int) bool {
			return !slices.Contains(m.Blocks[p].Succs, b.Index)
		})
	}
}

// makeExitBlock adds the virtual exit when some block leaves the method.
func (m *Method) makeExitBlock() {
	var exits []*BasicBlock
	for _, b := range m.Blocks {
		if len(b.Succs) == 0 {
			exits = append(exits, b)
		}
	}
	if len(exits) == 0 {
		return
	}
	exit := m.addBlock(m.maxRopLabel() + 1)
	m.ExitIndex = exit.Index
	for _, b := range exits {
		b.Succs = []int{exit.Index}
		exit.Preds = append(exit.Preds, b.Index)
	}
}

// liveIns computes, per block, the original registers live on entry.
func (m *Method) liveIns() []map[int]bool {
	n := len(m.Blocks)
	use := make([]map[int]bool, n)
	def := make([]map[int]bool, n)
	for i, b := range m.Blocks {
		use[i], def[i] = map[int]bool{}, map[int]bool{}
		for _, insn := range b.Insns {
			for _, s := range insn.Sources {
				if !def[i][s.Reg] {
					use[i][s.Reg] = true
				}
			}
			if insn.Result != nil {
				def[i][insn.Result.Reg] = true
			}
		}
	}
	in := make([]map[int]bool, n)
	for i := range in {
		in[i] = map[int]bool{}
	}
	for changed := true; changed; {
		changed = false
		for i := n - 1; i >= 0; i-- {
			next := map[int]bool{}
			for r := range use[i] {
				next[r] = true
			}
			for _, s := range m.Blocks[i].Succs {
				for r := range in[s] {
					if !def[i][r] {
						next[r] = true
					}
				}
			}
			if len(next) != len(in[i]) {
				in[i] = next
				changed = true
			}
		}
	}
	return in
}

// placePhis inserts a phi for each register at every frontier block where it
// is live, and returns the original register of each phi.
func (m *Method) placePhis(df [][]int) map[*Insn]int {
	live := m.liveIns()
	defSites := map[int][]int{}
	for _, b := range m.Blocks {
		for _, insn := range b.Insns {
			if insn.Result != nil && !slices.Contains(defSites[insn.Result.Reg], b.Index) {
				defSites[insn.Result.Reg] = append(defSites[insn.Result.Reg], b.Index)
			}
		}
	}
	regs := make([]int, 0, len(defSites))
	for r := range defSites {
		regs = append(regs, r)
	}
	slices.Sort(regs)

	phiOrig := map[*Insn]int{}
	for _, reg := range regs {
		hasPhi := map[int]bool{}
		work := slices.Clone(defSites[reg])
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			for _, d := range df[b] {
				if hasPhi[d] || !live[d][reg] {
					continue
				}
				hasPhi[d] = true
				blk := m.Blocks[d]
				phi := &Insn{Insn: rop.Insn{Op: rop.OpPhi, Pos: rop.NoPosition}}
				phiOrig[phi] = reg
				blk.Insns = slices.Insert(blk.Insns, len(blk.Phis()), phi)
				if !slices.Contains(defSites[reg], d) {
					work = append(work, d)
				}
			}
		}
	}
	return phiOrig
}

type renamer struct {
	m        *Method
	children [][]int
	phiOrig  map[*Insn]int
	stacks   map[int][]rop.RegisterSpec
	next     int
}

func (r *renamer) fresh(t cst.Type, category int) rop.RegisterSpec {
	spec := rop.Spec(r.next, t)
	r.next += category
	return spec
}

func (r *renamer) current(reg int) (rop.RegisterSpec, bool) {
	s := r.stacks[reg]
	if len(s) == 0 {
		return rop.RegisterSpec{}, false
	}
	return s[len(s)-1], true
}

func (r *renamer) rename(bi int) error {
	b := r.m.Blocks[bi]
	var pushed []int
	push := func(orig int, spec rop.RegisterSpec) {
		r.stacks[orig] = append(r.stacks[orig], spec)
		pushed = append(pushed, orig)
	}

	for _, phi := range b.Phis() {
		// Phi types are resolved after renaming; reserve a wide slot.
		res := r.fresh(cst.Type{}, 2)
		phi.Result = &res
		push(r.phiOrig[phi], res)
	}
	np := len(b.Phis())
	for i, insn := range b.Normal() {
		renamed := newNormal(&insn.Insn)
		if len(insn.Sources) > 0 {
			renamed.Sources = make(rop.RegisterSpecList, len(insn.Sources))
			for j, src := range insn.Sources {
				cur, ok := r.current(src.Reg)
				if !ok {
					return fmt.Errorf("ssa: block %d: v%d: %w", b.RopLabel, src.Reg, ErrUndefinedRegister)
				}
				renamed.Sources[j] = rop.Spec(cur.Reg, src.Type)
			}
		}
		if insn.Result != nil {
			res := r.fresh(insn.Result.Type, insn.Result.Category())
			renamed.Result = &res
			push(insn.Result.Reg, res)
		}
		b.Insns[np+i] = renamed
	}

	succs := slices.Clone(b.Succs)
	slices.Sort(succs)
	for _, s := range slices.Compact(succs) {
		for _, phi := range r.m.Blocks[s].Phis() {
			cur, ok := r.current(r.phiOrig[phi])
			if !ok {
				return fmt.Errorf("ssa: block %d: v%d on the edge from block %d: %w",
					r.m.Blocks[s].RopLabel, r.phiOrig[phi], b.RopLabel, ErrUndefinedRegister)
			}
			phi.Sources = append(phi.Sources, cur)
			phi.PhiPreds = append(phi.PhiPreds, bi)
		}
	}

	for _, c := range r.children[bi] {
		if err := r.rename(c); err != nil {
			return err
		}
	}
	for _, orig := range pushed {
		r.stacks[orig] = r.stacks[orig][:len(r.stacks[orig])-1]
	}
	return nil
}

// resolvePhiTypes gives every phi the type of its first typed source.
func resolvePhiTypes(m *Method) error {
	types := map[int]cst.Type{}
	var phis []*Insn
	for _, b := range m.Blocks {
		phis = append(phis, b.Phis()...)
	}
	for changed := true; changed; {
		changed = false
		for _, phi := range phis {
			if phi.Result.Type.Descriptor != "" {
				continue
			}
			for _, s := range phi.Sources {
				t := s.Type
				if t.Descriptor == "" {
					t = types[s.Reg]
				}
				if t.Descriptor != "" {
					phi.Result.Type = t
					types[phi.Result.Reg] = t
					changed = true
					break
				}
			}
		}
	}
	for _, phi := range phis {
		if phi.Result.Type.Descriptor == "" {
			return internalf("phi %s has no typed source", phi.Result)
		}
	}
	for _, phi := range phis {
		for i, s := range phi.Sources {
			if s.Type.Descriptor == "" {
				phi.Sources[i].Type = types[s.Reg]
			}
		}
	}
	return nil
}
