package mapgraph

import (
	"fmt"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// Map layer types are numbered like the map files that contribute them.
const (
	MinType = 1
	MaxType = 31
)

// TypeMask selects map layers. Bit t-1 stands for layer t. The zero mask
// places no restriction.
type TypeMask uint32

// AllTypes accepts every node.
const AllTypes TypeMask = 0

// MaskFromTypes builds a mask from layer indices. Every index must be in
// [MinType, MaxType] and not above nrofMapFiles.
func MaskFromTypes(types []int, nrofMapFiles int) (TypeMask, error) {
	var m TypeMask
	for _, t := range types {
		if t < MinType || t > MaxType {
			return 0, fmt.Errorf("%w: map type selection %d is out of range [%d,%d]", core.ErrConfig, t, MinType, MaxType)
		}
		if t > nrofMapFiles {
			return 0, fmt.Errorf("%w: can't use map type selection %d because only %d map files are read",
				core.ErrConfig, t, nrofMapFiles)
		}
		m |= TypeMask(1) << (t - 1)
	}
	return m, nil
}

// Accepts reports whether a node of type nodeType passes the mask.
func (m TypeMask) Accepts(nodeType TypeMask) bool {
	return m == AllTypes || m&nodeType != 0
}

// MapNode is a vertex of the simulation map.
type MapNode struct {
	ID       int
	Location model.Coord
	Type     TypeMask

	neighbors []*MapNode
}

// Neighbors returns the adjacent nodes in insertion order.
func (n *MapNode) Neighbors() []*MapNode {
	return n.neighbors
}

// AddType marks the node as contributed by layer t.
func (n *MapNode) AddType(t int) {
	if t < MinType || t > MaxType {
		return
	}
	n.Type |= TypeMask(1) << (t - 1)
}

// IsType reports whether the node belongs to a layer selected by mask.
func (n *MapNode) IsType(mask TypeMask) bool {
	return mask.Accepts(n.Type)
}

// connect adds other as an undirected neighbour. Duplicates and self
// loops are ignored.
func (n *MapNode) connect(other *MapNode) {
	if other == n {
		return
	}
	for _, cur := range n.neighbors {
		if cur == other {
			return
		}
	}
	n.neighbors = append(n.neighbors, other)
	other.neighbors = append(other.neighbors, n)
}

func (n *MapNode) String() string {
	return fmt.Sprintf("N%d@%s", n.ID, n.Location)
}
