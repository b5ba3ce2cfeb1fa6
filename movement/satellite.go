package movement

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/mapgraph"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// DefaultTimePerStep is the time in seconds a satellite takes between two
// consecutive route stops.
const DefaultTimePerStep = 30.0

// SatelliteMovement moves a satellite along a sequence of ground-track
// routes, one route per path, at one stop per time step. Route 0 of the
// set is a header and is never flown, and every route is joined at stop 1.
type SatelliteMovement struct {
	routes      []*mapgraph.MapRoute
	finder      *mapgraph.PathFinder
	timePerStep float64

	nextRoute int
	lastNode  *mapgraph.MapNode
}

// NewSatelliteMovement validates the route set. firstStop is checked
// against every route but the walk always starts at stop 1.
func NewSatelliteMovement(routes []*mapgraph.MapRoute, finder *mapgraph.PathFinder, timePerStep float64, firstStop int) (*SatelliteMovement, error) {
	if len(routes) < 2 {
		return nil, fmt.Errorf("%w: satellite movement needs at least two routes, got %d", core.ErrConfig, len(routes))
	}
	if finder == nil {
		return nil, fmt.Errorf("%w: satellite movement needs a path finder", core.ErrConfig)
	}
	if timePerStep <= 0 {
		return nil, fmt.Errorf("%w: timePerStep must be positive, got %g", core.ErrConfig, timePerStep)
	}
	for i, r := range routes[1:] {
		if r.NrofStops() < 2 {
			return nil, fmt.Errorf("%w: satellite route %d has %d stops, need at least 2", core.ErrConfig, i+1, r.NrofStops())
		}
		if firstStop >= r.NrofStops() {
			return nil, fmt.Errorf("%w: first stop %d is out of range for route %d with %d stops",
				core.ErrConfig, firstStop, i+1, r.NrofStops())
		}
	}
	return &SatelliteMovement{
		routes:      routes,
		finder:      finder,
		timePerStep: timePerStep,
		nextRoute:   1,
	}, nil
}

// InitialLocation is stop 1 of route 1.
func (sm *SatelliteMovement) InitialLocation() (model.Coord, error) {
	n := sm.routes[1].Stops()[1]
	if sm.lastNode == nil {
		sm.lastNode = n
	}
	return n.Location, nil
}

// NextPath flies the next route from its second stop to its last stop.
// Every segment, including the hop onto the route, takes one
// time step.
func (sm *SatelliteMovement) NextPath() (*model.Path, error) {
	if sm.nextRoute >= len(sm.routes) {
		sm.nextRoute = 1
	}
	stops := sm.routes[sm.nextRoute].Stops()
	sm.nextRoute++

	from := stops[1]
	to := stops[len(stops)-1]
	nodes, err := sm.finder.ShortestPath(from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvariantViolation, err)
	}

	start := from.Location
	if sm.lastNode != nil {
		start = sm.lastNode.Location
	}
	p := model.NewPath(start.Distance(from.Location) / sm.timePerStep)
	p.AddWaypoint(from.Location)
	prev := from.Location
	for _, n := range nodes[1:] {
		p.AddWaypointWithSpeed(n.Location, prev.Distance(n.Location)/sm.timePerStep)
		prev = n.Location
	}
	sm.lastNode = to
	return p, nil
}

func (sm *SatelliteMovement) NextWaitTime() float64 {
	return sm.timePerStep
}

func (sm *SatelliteMovement) Replicate(*rand.Rand) Model {
	return &SatelliteMovement{
		routes:      sm.routes,
		finder:      sm.finder,
		timePerStep: sm.timePerStep,
		nextRoute:   1,
	}
}
