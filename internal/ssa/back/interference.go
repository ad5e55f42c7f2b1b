package back

import (
	"classdex/internal/ssa"
)

// InterferenceGraph is the symmetric relation of SSA registers whose live
// ranges overlap.
type InterferenceGraph struct {
	adj []regSet
}

// NewInterferenceGraph returns an empty graph over regCount registers.
func NewInterferenceGraph(regCount int) *InterferenceGraph {
	g := &InterferenceGraph{adj: make([]regSet, regCount)}
	for i := range g.adj {
		g.adj[i] = regSet{}
	}
	return g
}

// Size is the number of registers the graph covers.
func (g *InterferenceGraph) Size() int { return len(g.adj) }

// Add records that a and b interfere.
func (g *InterferenceGraph) Add(a, b int) {
	if a == b {
		return
	}
	g.grow(max(a, b) + 1)
	g.adj[a].add(b)
	g.adj[b].add(a)
}

// Interferes reports whether a and b interfere.
func (g *InterferenceGraph) Interferes(a, b int) bool {
	if a < 0 || a >= len(g.adj) {
		return false
	}
	return g.adj[a].has(b)
}

// Neighbors returns the registers that interfere with r, ascending.
func (g *InterferenceGraph) Neighbors(r int) []int {
	if r < 0 || r >= len(g.adj) {
		return nil
	}
	return g.adj[r].sorted()
}

func (g *InterferenceGraph) grow(n int) {
	for len(g.adj) < n {
		g.adj = append(g.adj, regSet{})
	}
}

// BuildInterferenceGraph walks every block backwards from its live-out set.
// A definition interferes with everything live across it, except that a move
// does not interfere with its own source. Phi results interfere with each
// other and with every register live into their block.
func BuildInterferenceGraph(m *ssa.Method) *InterferenceGraph {
	lv := AnalyzeLiveness(m)
	g := NewInterferenceGraph(m.RegCount)
	for i, b := range m.Blocks {
		live := cloneSet(lv.blocks[i].out)
		normal := b.Normal()
		for j := len(normal) - 1; j >= 0; j-- {
			insn := normal[j]
			if insn.Result != nil {
				res := insn.Result.Reg
				skip := -1
				if insn.IsMove() {
					skip = insn.Sources[0].Reg
				}
				for _, x := range live.sorted() {
					if x != skip {
						g.Add(res, x)
					}
				}
				live.remove(res)
			}
			for _, s := range insn.Sources {
				live.add(s.Reg)
			}
		}

		phis := b.Phis()
		results := regSet{}
		for _, phi := range phis {
			results.add(phi.Result.Reg)
		}
		for _, phi := range phis {
			p := phi.Result.Reg
			for x := range live {
				if !results.has(x) {
					g.Add(p, x)
				}
			}
			for q := range results {
				g.Add(p, q)
			}
		}
	}
	return g
}
