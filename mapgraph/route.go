package mapgraph

import (
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/dtn-contact-sim/core"
)

// RouteType is the traversal policy of a MapRoute.
type RouteType int

const (
	// RouteCircular restarts from the first stop after the last one.
	RouteCircular RouteType = 1
	// RoutePingPong walks back the same way after the last stop.
	RoutePingPong RouteType = 2
	// RouteOnce stays on the last stop once it is reached.
	RouteOnce RouteType = 3
)

func (t RouteType) String() string {
	switch t {
	case RouteCircular:
		return "circular"
	case RoutePingPong:
		return "pingpong"
	case RouteOnce:
		return "once"
	default:
		return fmt.Sprintf("RouteType(%d)", int(t))
	}
}

// ParseRouteType validates a configured route type.
func ParseRouteType(v int) (RouteType, error) {
	switch t := RouteType(v); t {
	case RouteCircular, RoutePingPong, RouteOnce:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: unknown route type %d", core.ErrConfig, v)
	}
}

// MapRoute is a list of stops with a cursor. Stops are shared between
// replicas; the cursor is not.
type MapRoute struct {
	stops      []*MapNode
	typ        RouteType
	index      int
	comingBack bool
}

// NewMapRoute returns a route positioned at its first stop.
func NewMapRoute(typ RouteType, stops []*MapNode) (*MapRoute, error) {
	if len(stops) == 0 {
		return nil, fmt.Errorf("%w: route without stops", core.ErrConfig)
	}
	if _, err := ParseRouteType(int(typ)); err != nil {
		return nil, err
	}
	return &MapRoute{stops: stops, typ: typ}, nil
}

// Type returns the traversal policy.
func (r *MapRoute) Type() RouteType { return r.typ }

// Stops returns the stop list. Callers must not modify it.
func (r *MapRoute) Stops() []*MapNode { return r.stops }

// NrofStops returns the number of stops.
func (r *MapRoute) NrofStops() int { return len(r.stops) }

// SetNextIndex positions the cursor so that NextStop returns stop i.
func (r *MapRoute) SetNextIndex(i int) {
	if i < 0 {
		i = 0
	}
	if i >= len(r.stops) {
		i = len(r.stops) - 1
	}
	r.index = i
	r.comingBack = false
}

// NextStop returns the stop under the cursor and moves the cursor
// according to the route type.
func (r *MapRoute) NextStop() *MapNode {
	next := r.stops[r.index]
	if len(r.stops) == 1 {
		return next
	}

	if r.comingBack {
		r.index--
	} else {
		r.index++
	}
	if r.index < 0 {
		r.index = 1
		r.comingBack = false
	}
	if r.index >= len(r.stops) {
		switch r.typ {
		case RoutePingPong:
			r.index = len(r.stops) - 2
			r.comingBack = true
		case RouteOnce:
			r.index = len(r.stops) - 1
		default:
			r.index = 0
		}
	}
	return next
}

// Replicate returns a copy sharing the stops with an independent cursor.
func (r *MapRoute) Replicate() *MapRoute {
	cp := *r
	return &cp
}

func (r *MapRoute) String() string {
	return fmt.Sprintf("MapRoute(%s, %d stops)", r.typ, len(r.stops))
}

// ReadRoutes reads one route per LINESTRING or MULTIPOINT geometry of r.
// Every stop must be a node of m.
func ReadRoutes(r io.Reader, typ RouteType, m *SimMap) ([]*MapRoute, error) {
	var routes []*MapRoute
	err := readGeometries(r, func(line int, g orb.Geometry) error {
		var pts []orb.Point
		switch geom := g.(type) {
		case orb.LineString:
			pts = geom
		case orb.MultiPoint:
			pts = geom
		case orb.Point:
			pts = []orb.Point{geom}
		default:
			return fmt.Errorf("%w: line %d: route must be a LINESTRING or MULTIPOINT, got %s",
				core.ErrConfig, line, g.GeoJSONType())
		}

		stops := make([]*MapNode, 0, len(pts))
		for _, p := range pts {
			n := m.NodeAt(toCoord(p))
			if n == nil {
				return fmt.Errorf("%w: line %d: route stop %s is not a map node", core.ErrConfig, line, toCoord(p))
			}
			stops = append(stops, n)
		}
		route, err := NewMapRoute(typ, stops)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		routes = append(routes, route)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no routes", core.ErrConfig)
	}
	return routes, nil
}

// ReadRouteFile opens path and reads its routes.
func ReadRouteFile(path string, typ RouteType, m *SimMap) ([]*MapRoute, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: route file %q: %v", core.ErrIO, path, err)
	}
	defer f.Close()

	routes, err := ReadRoutes(f, typ, m)
	if err != nil {
		return nil, fmt.Errorf("route file %q: %w", path, err)
	}
	return routes, nil
}
