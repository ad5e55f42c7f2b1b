package rop

import (
	"fmt"
	"strings"

	"classdex/internal/cst"
)

// RegisterSpec names a register and the type of the value it holds. Wide
// values occupy Reg and Reg+1.
type RegisterSpec struct {
	Reg  int
	Type cst.Type
}

// Spec is shorthand for RegisterSpec{reg, t}.
func Spec(reg int, t cst.Type) RegisterSpec { return RegisterSpec{Reg: reg, Type: t} }

// Category is the number of register slots the value needs.
func (r RegisterSpec) Category() int {
	if c := r.Type.Category(); c > 0 {
		return c
	}
	return 1
}

// NextReg is the first register after this spec.
func (r RegisterSpec) NextReg() int { return r.Reg + r.Category() }

// WithReg returns the spec moved to reg.
func (r RegisterSpec) WithReg(reg int) RegisterSpec {
	r.Reg = reg
	return r
}

// Overlaps reports whether the two specs share a register slot.
func (r RegisterSpec) Overlaps(o RegisterSpec) bool {
	return r.Reg < o.NextReg() && o.Reg < r.NextReg()
}

func (r RegisterSpec) String() string {
	return fmt.Sprintf("v%d:%s", r.Reg, r.Type.Descriptor)
}

// RegisterSpecList is an ordered list of source registers.
type RegisterSpecList []RegisterSpec

// WordCount is the total number of slots used by the list.
func (l RegisterSpecList) WordCount() int {
	n := 0
	for _, s := range l {
		n += s.Category()
	}
	return n
}

// Equal reports whether both lists hold the same specs in the same order.
func (l RegisterSpecList) Equal(o RegisterSpecList) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

func (l RegisterSpecList) String() string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = s.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// RegisterMapper renumbers registers.
type RegisterMapper interface {
	NewRegisterCount() int
	Map(RegisterSpec) RegisterSpec
}

// BasicRegisterMapper is an explicit old-to-new table. Unmapped registers
// keep their number.
type BasicRegisterMapper struct {
	oldToNew []int
	count    int
}

// NewBasicRegisterMapper returns an empty mapper sized for countOld registers.
func NewBasicRegisterMapper(countOld int) *BasicRegisterMapper {
	m := &BasicRegisterMapper{oldToNew: make([]int, countOld)}
	for i := range m.oldToNew {
		m.oldToNew[i] = -1
	}
	return m
}

// AddMapping maps oldReg to newReg; category grows the new register count.
func (m *BasicRegisterMapper) AddMapping(oldReg, newReg, category int) {
	for oldReg >= len(m.oldToNew) {
		m.oldToNew = append(m.oldToNew, -1)
	}
	m.oldToNew[oldReg] = newReg
	if m.count < newReg+category {
		m.count = newReg + category
	}
}

// Mapped reports the new register for oldReg.
func (m *BasicRegisterMapper) Mapped(oldReg int) (int, bool) {
	if oldReg < 0 || oldReg >= len(m.oldToNew) || m.oldToNew[oldReg] < 0 {
		return 0, false
	}
	return m.oldToNew[oldReg], true
}

func (m *BasicRegisterMapper) NewRegisterCount() int { return m.count }

func (m *BasicRegisterMapper) Map(r RegisterSpec) RegisterSpec {
	if n, ok := m.Mapped(r.Reg); ok {
		return r.WithReg(n)
	}
	return r
}

// MapList applies m to every spec in l.
func MapList(m RegisterMapper, l RegisterSpecList) RegisterSpecList {
	if len(l) == 0 {
		return l
	}
	out := make(RegisterSpecList, len(l))
	for i, s := range l {
		out[i] = m.Map(s)
	}
	return out
}
