package ssa

import "slices"

// reversePostorder lists the blocks reachable from the entry.
func reversePostorder(m *Method) []int {
	seen := make([]bool, len(m.Blocks))
	order := make([]int, 0, len(m.Blocks))
	var visit func(int)
	visit = func(i int) {
		seen[i] = true
		for _, s := range m.Blocks[i].Succs {
			if !seen[s] {
				visit(s)
			}
		}
		order = append(order, i)
	}
	visit(m.EntryIndex)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// dominators computes immediate dominators with the Cooper-Harvey-Kennedy
// iteration. The entry is its own dominator; unreachable blocks get -1.
func dominators(m *Method) []int {
	rpo := reversePostorder(m)
	pos := make([]int, len(m.Blocks))
	for i := range pos {
		pos[i] = -1
	}
	for i, b := range rpo {
		pos[b] = i
	}
	idom := make([]int, len(m.Blocks))
	for i := range idom {
		idom[i] = -1
	}
	idom[m.EntryIndex] = m.EntryIndex

	intersect := func(a, b int) int {
		for a != b {
			for pos[a] > pos[b] {
				a = idom[a]
			}
			for pos[b] > pos[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			newIdom := -1
			for _, p := range m.Blocks[b].Preds {
				if idom[p] < 0 {
					continue
				}
				if newIdom < 0 {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != idom[b] {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

// dominanceFrontiers returns, per block, the blocks in its frontier.
func dominanceFrontiers(m *Method, idom []int) [][]int {
	df := make([][]int, len(m.Blocks))
	for _, b := range m.Blocks {
		if len(b.Preds) < 2 || idom[b.Index] < 0 {
			continue
		}
		for _, p := range b.Preds {
			for runner := p; runner >= 0 && runner != idom[b.Index]; runner = idom[runner] {
				if !slices.Contains(df[runner], b.Index) {
					df[runner] = append(df[runner], b.Index)
				}
				if runner == idom[runner] {
					break
				}
			}
		}
	}
	return df
}

// domChildren inverts idom into a dominator tree.
func domChildren(m *Method, idom []int) [][]int {
	children := make([][]int, len(m.Blocks))
	for b, d := range idom {
		if d >= 0 && d != b {
			children[d] = append(children[d], b)
		}
	}
	return children
}
