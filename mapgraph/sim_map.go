package mapgraph

import (
	"math"

	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// SimMap is the union of all loaded map layers. Nodes are deduplicated by
// exact coordinate, so layers sharing a point share the node.
type SimMap struct {
	nodes   []*MapNode
	byCoord map[model.Coord]*MapNode
}

// NewSimMap returns an empty map.
func NewSimMap() *SimMap {
	return &SimMap{byCoord: make(map[model.Coord]*MapNode)}
}

// Nodes returns every node in insertion order.
func (m *SimMap) Nodes() []*MapNode {
	return m.nodes
}

// Len returns the node count.
func (m *SimMap) Len() int {
	return len(m.nodes)
}

// NodeAt returns the node at exactly c, or nil.
func (m *SimMap) NodeAt(c model.Coord) *MapNode {
	return m.byCoord[c]
}

// Node returns the node with the given ID, or nil.
func (m *SimMap) Node(id int) *MapNode {
	if id < 0 || id >= len(m.nodes) {
		return nil
	}
	return m.nodes[id]
}

// AddNode returns the node at c, creating it if needed, and tags it with
// layer t.
func (m *SimMap) AddNode(c model.Coord, t int) *MapNode {
	n, ok := m.byCoord[c]
	if !ok {
		n = &MapNode{ID: len(m.nodes), Location: c}
		m.nodes = append(m.nodes, n)
		m.byCoord[c] = n
	}
	n.AddType(t)
	return n
}

// AddEdge connects the nodes at a and b, creating them as needed.
func (m *SimMap) AddEdge(a, b model.Coord, t int) {
	na := m.AddNode(a, t)
	nb := m.AddNode(b, t)
	na.connect(nb)
}

// Bounds returns the smallest and largest coordinates of the map.
func (m *SimMap) Bounds() (lo, hi model.Coord) {
	if len(m.nodes) == 0 {
		return model.Coord{}, model.Coord{}
	}
	lo = model.Coord{X: math.Inf(1), Y: math.Inf(1)}
	hi = model.Coord{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, n := range m.nodes {
		lo.X = math.Min(lo.X, n.Location.X)
		lo.Y = math.Min(lo.Y, n.Location.Y)
		hi.X = math.Max(hi.X, n.Location.X)
		hi.Y = math.Max(hi.Y, n.Location.Y)
	}
	return lo, hi
}

// Nearest returns the node closest to c, or nil on an empty map.
func (m *SimMap) Nearest(c model.Coord) *MapNode {
	var best *MapNode
	bestDist := math.Inf(1)
	for _, n := range m.nodes {
		if d := n.Location.Distance(c); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}
