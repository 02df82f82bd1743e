package optimize

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

// A pointMatch ties a point local to its owning node to a point local to
// another node; under perfect models both land on the same spot.
type pointMatch struct {
	p, q   []float64
	other  *node
	weight float64
	pair   *tiles.Pair
}

func (m *pointMatch) distance(owner *node) float64 {
	return emath.Distance(owner.tile.Model.Apply(m.p), m.other.tile.Model.Apply(m.q))
}

type node struct {
	tile    *tiles.Tile
	matches []pointMatch
}

// fit refits the node's model against the current position of its
// neighbours. If `only` is non-nil, matches to other nodes are skipped.
func (n *node) fit(only map[*node]bool) error {
	matches := make([]emath.Match, 0, len(n.matches))
	for _, m := range n.matches {
		if only != nil && !only[m.other] {
			continue
		}
		matches = append(matches, emath.Match{P: m.p, Q: m.other.tile.Model.Apply(m.q), Weight: m.weight})
	}
	return n.tile.Model.Fit(matches)
}

// tileGraph holds the tiles connected by usable pairs. It is rebuilt
// from scratch for every optimization attempt.
type tileGraph struct {
	nodes []*node // Sorted by tile index
	byID  map[int64]*node
	g     *simple.WeightedUndirectedGraph
	edges int
}

// buildGraph adds two point matches for every valid pair whose
// correlation reaches the threshold, and marks every other pair invalid.
func buildGraph(pairs []*tiles.Pair, regThreshold float64, ignoreZ bool) *tileGraph {
	tg := &tileGraph{
		byID: map[int64]*node{},
		g:    simple.NewWeightedUndirectedGraph(0, 0),
	}

	nodeFor := func(t *tiles.Tile) *node {
		id := int64(t.Index)
		if n, exists := tg.byID[id]; exists {
			return n
		}
		if t.Model == nil {
			t.SetOffset(make([]float64, t.NumDims))
		}
		n := &node{tile: t}
		tg.byID[id] = n
		tg.nodes = append(tg.nodes, n)
		return n
	}

	for _, p := range pairs {
		if !p.Valid || p.Correlation < regThreshold || p.A == p.B {
			p.Invalidate()
			continue
		}

		// B's origin sits at shift in A, so A's origin is at -shift in B
		zero := make([]float64, len(p.Shift))
		neg := make([]float64, len(p.Shift))
		for d, s := range p.Shift {
			if ignoreZ && d == 2 {
				continue
			}
			neg[d] = -s
		}

		a, b := nodeFor(p.A), nodeFor(p.B)
		a.matches = append(a.matches, pointMatch{p: zero, q: neg, other: b, weight: p.Correlation, pair: p})
		b.matches = append(b.matches, pointMatch{p: neg, q: zero, other: a, weight: p.Correlation, pair: p})

		tg.g.SetWeightedEdge(tg.g.NewWeightedEdge(simple.Node(p.A.Index), simple.Node(p.B.Index), p.Correlation))
		tg.edges++
	}

	sort.Slice(tg.nodes, func(i, j int) bool { return tg.nodes[i].tile.Index < tg.nodes[j].tile.Index })
	return tg
}

// fixedNode is the anchor if it is connected, else the lowest indexed
// connected tile.
func (tg *tileGraph) fixedNode(anchor *tiles.Tile) *node {
	if anchor != nil {
		if n, exists := tg.byID[int64(anchor.Index)]; exists && n.tile == anchor {
			return n
		}
	}
	return tg.nodes[0]
}

func (tg *tileGraph) components() int {
	return len(topo.ConnectedComponents(tg.g))
}

// neighbours returns the nodes sharing an edge with n, by tile index.
func (tg *tileGraph) neighbours(n *node) []*node {
	out := []*node{}
	it := tg.g.From(int64(n.tile.Index))
	for it.Next() {
		out = append(out, tg.byID[it.Node().ID()])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tile.Index < out[j].tile.Index })
	return out
}

// preAlign walks outwards from the fixed node, breadth first, placing
// each newly reached tile against the tiles already placed.
func (tg *tileGraph) preAlign(fixed *node) error {
	placed := map[*node]bool{fixed: true}
	queue := []*node{fixed}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, nb := range tg.neighbours(n) {
			if placed[nb] {
				continue
			}
			if err := nb.fit(placed); err != nil {
				return err
			}
			placed[nb] = true
			queue = append(queue, nb)
		}
	}
	return nil
}

func (tg *tileGraph) tiles() []*tiles.Tile {
	out := make([]*tiles.Tile, len(tg.nodes))
	for i, n := range tg.nodes {
		out[i] = n.tile
	}
	return out
}

func (tg *tileGraph) snapshot() []emath.Model {
	out := make([]emath.Model, len(tg.nodes))
	for i, n := range tg.nodes {
		out[i] = n.tile.Model.Copy()
	}
	return out
}

func (tg *tileGraph) restore(models []emath.Model) {
	for i, n := range tg.nodes {
		n.tile.Model = models[i]
	}
}
