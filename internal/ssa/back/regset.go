package back

import (
	"maps"
	"slices"
)

// regSet is a set of SSA register numbers.
type regSet map[int]struct{}

func (s regSet) add(r int)      { s[r] = struct{}{} }
func (s regSet) remove(r int)   { delete(s, r) }
func (s regSet) has(r int) bool { _, ok := s[r]; return ok }
func (s regSet) sorted() []int  { return slices.Sorted(maps.Keys(s)) }

// cloneSet creates a copy of a regSet.
func cloneSet(s regSet) regSet {
	out := make(regSet, len(s))
	for r := range s {
		out.add(r)
	}
	return out
}

// unionSet merges src into dst and returns dst.
func unionSet(dst, src regSet) regSet {
	if dst == nil {
		dst = regSet{}
	}
	for r := range src {
		dst.add(r)
	}
	return dst
}

// setEqual checks if two regSets contain the same elements.
func setEqual(a, b regSet) bool {
	if len(a) != len(b) {
		return false
	}
	for r := range a {
		if !b.has(r) {
			return false
		}
	}
	return true
}
