package movement

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/mapgraph"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// Default path length bounds, in map nodes, of a MapBased random walk.
const (
	DefaultMinPathLength = 10
	DefaultMaxPathLength = 100
)

// MapBasedConfig parameterises a MapBased walk.
type MapBasedConfig struct {
	Mask          mapgraph.TypeMask
	MinPathLength int
	MaxPathLength int
	BackAllowed   bool
	Speed         Range
	Wait          Range
}

// MapBased walks randomly along the edges of a SimMap, restricted to the
// nodes selected by the type mask.
type MapBased struct {
	m   *mapgraph.SimMap
	cfg MapBasedConfig
	rng *rand.Rand

	lastNode *mapgraph.MapNode
}

// NewMapBased validates cfg against m and returns a walk prototype.
func NewMapBased(m *mapgraph.SimMap, cfg MapBasedConfig, rng *rand.Rand) (*MapBased, error) {
	if m == nil || m.Len() == 0 {
		return nil, fmt.Errorf("%w: map based movement needs a map", core.ErrConfig)
	}
	if cfg.MinPathLength == 0 && cfg.MaxPathLength == 0 {
		cfg.MinPathLength, cfg.MaxPathLength = DefaultMinPathLength, DefaultMaxPathLength
	}
	if cfg.MinPathLength < 1 || cfg.MaxPathLength < cfg.MinPathLength {
		return nil, fmt.Errorf("%w: path length bounds [%d,%d] are invalid",
			core.ErrConfig, cfg.MinPathLength, cfg.MaxPathLength)
	}
	if err := cfg.Speed.Validate("speed"); err != nil {
		return nil, err
	}
	if err := cfg.Wait.Validate("waitTime"); err != nil {
		return nil, err
	}
	if len(acceptedNodes(m, cfg.Mask)) == 0 {
		return nil, fmt.Errorf("%w: no map node matches type mask %#x", core.ErrConfig, uint32(cfg.Mask))
	}
	return &MapBased{m: m, cfg: cfg, rng: rng}, nil
}

func acceptedNodes(m *mapgraph.SimMap, mask mapgraph.TypeMask) []*mapgraph.MapNode {
	var out []*mapgraph.MapNode
	for _, n := range m.Nodes() {
		if n.IsType(mask) {
			out = append(out, n)
		}
	}
	return out
}

// InitialLocation places the host at a random point of an edge leaving a
// random acceptable node.
func (mb *MapBased) InitialLocation() (model.Coord, error) {
	nodes := acceptedNodes(mb.m, mb.cfg.Mask)
	if len(nodes) == 0 {
		return model.Coord{}, fmt.Errorf("%w: no map node matches type mask", core.ErrConfig)
	}
	n := nodes[mb.rng.IntN(len(nodes))]
	mb.lastNode = n

	neighbors := n.Neighbors()
	if len(neighbors) == 0 {
		return n.Location, nil
	}
	n2 := neighbors[mb.rng.IntN(len(neighbors))]
	f := mb.rng.Float64()
	return n.Location.Translate(f*(n2.Location.X-n.Location.X), f*(n2.Location.Y-n.Location.Y)), nil
}

// NextPath walks a random number of hops from the last node. The walk
// avoids the node it came from unless BackAllowed is set or no other
// neighbour passes the mask.
func (mb *MapBased) NextPath() (*model.Path, error) {
	if mb.lastNode == nil {
		if _, err := mb.InitialLocation(); err != nil {
			return nil, err
		}
	}

	p := model.NewPath(mb.cfg.Speed.Draw(mb.rng))
	cur := mb.lastNode
	var prev *mapgraph.MapNode
	p.AddWaypoint(cur.Location)

	hops := mb.cfg.MinPathLength
	if span := mb.cfg.MaxPathLength - mb.cfg.MinPathLength; span > 0 {
		hops += mb.rng.IntN(span)
	}
	for i := 0; i < hops; i++ {
		candidates := make([]*mapgraph.MapNode, 0, len(cur.Neighbors()))
		for _, n := range cur.Neighbors() {
			if !n.IsType(mb.cfg.Mask) {
				continue
			}
			if !mb.cfg.BackAllowed && n == prev {
				continue
			}
			candidates = append(candidates, n)
		}
		if len(candidates) == 0 {
			if prev == nil {
				break
			}
			candidates = append(candidates, prev)
		}
		next := candidates[mb.rng.IntN(len(candidates))]
		p.AddWaypoint(next.Location)
		prev, cur = cur, next
	}

	mb.lastNode = cur
	return p, nil
}

func (mb *MapBased) NextWaitTime() float64 {
	return mb.cfg.Wait.Draw(mb.rng)
}

// SetLocation snaps the walk to the map node nearest to c.
func (mb *MapBased) SetLocation(c model.Coord) {
	mb.lastNode = mb.m.Nearest(c)
}

// LastLocation returns the node the last path ended on.
func (mb *MapBased) LastLocation() (model.Coord, bool) {
	if mb.lastNode == nil {
		return model.Coord{}, false
	}
	return mb.lastNode.Location, true
}

func (mb *MapBased) Replicate(rng *rand.Rand) Model {
	return &MapBased{m: mb.m, cfg: mb.cfg, rng: rng}
}
