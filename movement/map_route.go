package movement

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/mapgraph"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// MapRouteMovement follows a predetermined route, taking the shortest
// path on the map between consecutive stops.
//
// The value built by NewMapRouteMovement is a prototype: every Replicate
// call hands out the next route of the set, round robin.
type MapRouteMovement struct {
	routes    []*mapgraph.MapRoute
	finder    *mapgraph.PathFinder
	firstStop int
	speed     Range
	wait      Range
	rng       *rand.Rand

	nextRoute int
	route     *mapgraph.MapRoute
	lastNode  *mapgraph.MapNode
}

// NewMapRouteMovement returns a prototype over routes. A negative
// firstStop starts every replica at a random stop.
func NewMapRouteMovement(routes []*mapgraph.MapRoute, finder *mapgraph.PathFinder, firstStop int, speed, wait Range, rng *rand.Rand) (*MapRouteMovement, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: map route movement needs at least one route", core.ErrConfig)
	}
	if finder == nil {
		return nil, fmt.Errorf("%w: map route movement needs a path finder", core.ErrConfig)
	}
	for i, r := range routes {
		if firstStop >= r.NrofStops() {
			return nil, fmt.Errorf("%w: first stop %d is out of range for route %d with %d stops",
				core.ErrConfig, firstStop, i, r.NrofStops())
		}
	}
	if err := speed.Validate("speed"); err != nil {
		return nil, err
	}
	if err := wait.Validate("waitTime"); err != nil {
		return nil, err
	}
	mr := &MapRouteMovement{
		routes:    routes,
		finder:    finder,
		firstStop: firstStop,
		speed:     speed,
		wait:      wait,
		rng:       rng,
	}
	mr.route = mr.assignRoute(rng)
	// The prototype's own route does not count towards the rotation.
	mr.nextRoute = 0
	return mr, nil
}

// assignRoute hands out the next route of the set with its cursor placed
// on the first stop.
func (mr *MapRouteMovement) assignRoute(rng *rand.Rand) *mapgraph.MapRoute {
	r := mr.routes[mr.nextRoute%len(mr.routes)].Replicate()
	mr.nextRoute++

	switch {
	case mr.firstStop >= 0:
		r.SetNextIndex(mr.firstStop)
	case r.NrofStops() > 1 && rng != nil:
		r.SetNextIndex(rng.IntN(r.NrofStops() - 1))
	}
	return r
}

// Route returns the route this instance follows.
func (mr *MapRouteMovement) Route() *mapgraph.MapRoute {
	return mr.route
}

func (mr *MapRouteMovement) InitialLocation() (model.Coord, error) {
	if mr.lastNode == nil {
		mr.lastNode = mr.route.NextStop()
	}
	return mr.lastNode.Location, nil
}

// NextPath returns the shortest path from the last stop to the next one.
func (mr *MapRouteMovement) NextPath() (*model.Path, error) {
	if mr.lastNode == nil {
		mr.lastNode = mr.route.NextStop()
	}
	to := mr.route.NextStop()
	nodes, err := mr.finder.ShortestPath(mr.lastNode, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvariantViolation, err)
	}

	p := model.NewPath(mr.speed.Draw(mr.rng))
	for _, n := range nodes {
		p.AddWaypoint(n.Location)
	}
	mr.lastNode = to
	return p, nil
}

func (mr *MapRouteMovement) NextWaitTime() float64 {
	return mr.wait.Draw(mr.rng)
}

// SetLocation snaps the route walk to the map node nearest to c.
func (mr *MapRouteMovement) SetLocation(c model.Coord) {
	mr.lastNode = mr.finder.Map().Nearest(c)
}

func (mr *MapRouteMovement) LastLocation() (model.Coord, bool) {
	if mr.lastNode == nil {
		return model.Coord{}, false
	}
	return mr.lastNode.Location, true
}

// Replicate advances the prototype's route counter and returns an
// instance bound to that route.
func (mr *MapRouteMovement) Replicate(rng *rand.Rand) Model {
	return &MapRouteMovement{
		routes:    mr.routes,
		finder:    mr.finder,
		firstStop: mr.firstStop,
		speed:     mr.speed,
		wait:      mr.wait,
		rng:       rng,
		route:     mr.assignRoute(rng),
	}
}
