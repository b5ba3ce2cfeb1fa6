package mapgraph

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrNoPath is returned when no route respects the type mask.
var ErrNoPath = errors.New("no path between map nodes")

// PathFinder computes shortest paths over a SimMap with Dijkstra. Edge
// weights are the Euclidean lengths of the road segments.
//
// The search graph is directed: u->v exists only when v passes the mask,
// so every node after the source (destination included) is acceptable.
type PathFinder struct {
	m    *SimMap
	mask TypeMask
	g    *simple.WeightedDirectedGraph
}

// NewPathFinder builds the search graph of m under mask.
func NewPathFinder(m *SimMap, mask TypeMask) *PathFinder {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, n := range m.Nodes() {
		g.AddNode(simple.Node(n.ID))
	}
	for _, u := range m.Nodes() {
		for _, v := range u.Neighbors() {
			if !v.IsType(mask) {
				continue
			}
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(u.ID), simple.Node(v.ID), u.Location.Distance(v.Location)))
		}
	}
	return &PathFinder{m: m, mask: mask, g: g}
}

// Mask returns the type mask the finder honours.
func (pf *PathFinder) Mask() TypeMask {
	return pf.mask
}

// Map returns the map the finder searches.
func (pf *PathFinder) Map() *SimMap {
	return pf.m
}

// ShortestPath returns the nodes of a shortest from -> to route, both ends
// included. A zero-length route holds only from.
func (pf *PathFinder) ShortestPath(from, to *MapNode) ([]*MapNode, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: nil endpoint", ErrNoPath)
	}
	if from == to {
		return []*MapNode{from}, nil
	}

	shortest := path.DijkstraFrom(simple.Node(from.ID), pf.g)
	nodes, weight := shortest.To(int64(to.ID))
	if len(nodes) == 0 || math.IsInf(weight, 1) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoPath, from, to)
	}

	out := make([]*MapNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, pf.m.Node(int(n.ID())))
	}
	return out, nil
}

// PathLength sums the segment lengths of nodes.
func PathLength(nodes []*MapNode) float64 {
	var total float64
	for i := 1; i < len(nodes); i++ {
		total += nodes[i-1].Location.Distance(nodes[i].Location)
	}
	return total
}
