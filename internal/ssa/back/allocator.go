package back

import (
	"slices"

	"classdex/internal/cst"
	"classdex/internal/rop"
	"classdex/internal/ssa"
)

// Allocator assigns physical registers to the SSA registers of one method.
type Allocator interface {
	Allocate() (*rop.BasicRegisterMapper, error)
	// WantsParamsMovedHigh reports whether the parameters should end up in
	// the top registers of the frame once allocation is applied.
	WantsParamsMovedHigh() bool
}

// FirstFitLocalCombiningAllocator gives parameters their incoming slots,
// then tries to colocate every phi with its operands and every move with its
// source, and finally places whatever is left at the lowest register above
// the parameters that none of its neighbours overlap.
type FirstFitLocalCombiningAllocator struct {
	m          *ssa.Method
	g          *InterferenceGraph
	paramsHigh bool

	mapper     *rop.BasicRegisterMapper
	categories map[int]int
	params     map[int]bool
}

// NewFirstFitLocalCombiningAllocator prepares allocation of m against g.
func NewFirstFitLocalCombiningAllocator(m *ssa.Method, g *InterferenceGraph, paramsHigh bool) *FirstFitLocalCombiningAllocator {
	return &FirstFitLocalCombiningAllocator{m: m, g: g, paramsHigh: paramsHigh}
}

func (a *FirstFitLocalCombiningAllocator) WantsParamsMovedHigh() bool { return a.paramsHigh }

// Allocate builds the old-to-new register mapping.
func (a *FirstFitLocalCombiningAllocator) Allocate() (*rop.BasicRegisterMapper, error) {
	a.mapper = rop.NewBasicRegisterMapper(a.m.RegCount)
	a.categories = map[int]int{}
	a.params = map[int]bool{}
	var defined []int
	a.m.ForEachInsn(func(_ *ssa.BasicBlock, insn *ssa.Insn) {
		if insn.Result != nil {
			a.categories[insn.Result.Reg] = insn.Result.Category()
			defined = append(defined, insn.Result.Reg)
		}
	})
	slices.Sort(defined)

	if err := a.handleParams(); err != nil {
		return nil, err
	}
	a.handlePhis()
	a.handleMoves()
	for _, r := range defined {
		if !a.isMapped(r) {
			a.mapGroup([]int{r}, a.firstFit([]int{r}))
		}
	}
	return a.mapper, nil
}

func (a *FirstFitLocalCombiningAllocator) handleParams() error {
	for _, insn := range a.m.Entry().Normal() {
		if !insn.IsParam() {
			continue
		}
		slot, ok := insn.Constant.(cst.Integer)
		if !ok {
			return internalf(StageAllocated, "move-param %s without a slot", insn.Result)
		}
		reg := insn.Result.Reg
		cat := a.categories[reg]
		if int(slot.Value) < 0 || int(slot.Value)+cat > a.m.ParamWidth {
			return internalf(StageAllocated, "parameter slot %d outside width %d", slot.Value, a.m.ParamWidth)
		}
		a.params[reg] = true
		a.mapper.AddMapping(reg, int(slot.Value), cat)
	}
	return nil
}

func (a *FirstFitLocalCombiningAllocator) handlePhis() {
	for _, b := range a.m.Blocks {
		for _, phi := range b.Phis() {
			regs := []int{phi.Result.Reg}
			for _, s := range phi.Sources {
				regs = append(regs, s.Reg)
			}
			a.combine(regs)
		}
	}
}

func (a *FirstFitLocalCombiningAllocator) handleMoves() {
	for _, b := range a.m.Blocks {
		for _, insn := range b.Normal() {
			if insn.IsMove() {
				a.combine([]int{insn.Result.Reg, insn.Sources[0].Reg})
			}
		}
	}
}

// combine places as many of regs as possible in one register. regs[0]
// always takes part; the others join unless they interfere with a member,
// have a different width, or already live somewhere else.
func (a *FirstFitLocalCombiningAllocator) combine(regs []int) {
	lead := regs[0]
	if a.params[lead] {
		return
	}
	cat := a.categories[lead]
	group := []int{lead}
	target := -1
	if r, ok := a.mapper.Mapped(lead); ok {
		target = r
	}
	for _, r := range regs[1:] {
		if slices.Contains(group, r) || a.params[r] || a.categories[r] != cat {
			continue
		}
		if slices.ContainsFunc(group, func(m int) bool { return a.g.Interferes(m, r) }) {
			continue
		}
		if mr, ok := a.mapper.Mapped(r); ok {
			if target >= 0 && mr != target {
				continue
			}
			target = mr
		}
		group = append(group, r)
	}

	var pending []int
	for _, r := range group {
		if !a.isMapped(r) {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return
	}
	if target >= 0 && a.fitsAll(pending, target) {
		a.mapGroup(pending, target)
		return
	}
	// The rest stay together even when a mapped member pins a register
	// they cannot use.
	a.mapGroup(pending, a.firstFit(pending))
}

func (a *FirstFitLocalCombiningAllocator) isMapped(r int) bool {
	_, ok := a.mapper.Mapped(r)
	return ok
}

// fits reports whether r can live at physical register at without
// overlapping a mapped neighbour or the parameter range.
func (a *FirstFitLocalCombiningAllocator) fits(r, at int) bool {
	if at < a.m.ParamWidth {
		return false
	}
	end := at + a.categoryOf(r)
	for _, n := range a.g.Neighbors(r) {
		nr, ok := a.mapper.Mapped(n)
		if !ok {
			continue
		}
		if at < nr+a.categoryOf(n) && nr < end {
			return false
		}
	}
	return true
}

func (a *FirstFitLocalCombiningAllocator) fitsAll(regs []int, at int) bool {
	for _, r := range regs {
		if !a.fits(r, at) {
			return false
		}
	}
	return true
}

func (a *FirstFitLocalCombiningAllocator) firstFit(regs []int) int {
	at := a.m.ParamWidth
	for !a.fitsAll(regs, at) {
		at++
	}
	return at
}

func (a *FirstFitLocalCombiningAllocator) mapGroup(regs []int, at int) {
	for _, r := range regs {
		a.mapper.AddMapping(r, at, a.categoryOf(r))
	}
}

func (a *FirstFitLocalCombiningAllocator) categoryOf(r int) int {
	if c, ok := a.categories[r]; ok {
		return c
	}
	return 1
}
