package scenario

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/internal/logging"
	"github.com/signalsfoundry/dtn-contact-sim/internal/settings"
	"github.com/signalsfoundry/dtn-contact-sim/mapgraph"
	"github.com/signalsfoundry/dtn-contact-sim/model"
	"github.com/signalsfoundry/dtn-contact-sim/movement"
)

// Movement model names accepted by the "movementModel" group key.
const (
	StationaryMovement = "StationaryMovement"
	MapBasedMovement   = "MapBasedMovement"
	MapRouteMovement   = "MapRouteMovement"
	SatelliteMovement  = "SatelliteMovement"
	OrbitMovement      = "OrbitMovement"
)

// buildMovement returns the movement prototype of a group. Every host of
// the group gets a replica.
func (sc *SimulationContext) buildMovement(ctx context.Context, name string, sec *settings.Section) (movement.Model, error) {
	switch name {
	case StationaryMovement:
		loc, err := sec.CSVFloats("nodeLocation", 2)
		if err != nil {
			return nil, err
		}
		return &movement.Stationary{Location: model.Coord{X: loc[0], Y: loc[1]}}, nil

	case MapBasedMovement:
		m, mask, err := sc.groupMap(ctx, sec)
		if err != nil {
			return nil, err
		}
		speed, wait, err := speedAndWait(sec)
		if err != nil {
			return nil, err
		}
		back, err := sec.BoolOr("backAllowed", false)
		if err != nil {
			return nil, err
		}
		minLen, err := sec.IntOr("minPathLength", 0)
		if err != nil {
			return nil, err
		}
		maxLen, err := sec.IntOr("maxPathLength", 0)
		if err != nil {
			return nil, err
		}
		return movement.NewMapBased(m, movement.MapBasedConfig{
			Mask:          mask,
			MinPathLength: minLen,
			MaxPathLength: maxLen,
			BackAllowed:   back,
			Speed:         speed,
			Wait:          wait,
		}, movement.Fork(sc.RNG))

	case MapRouteMovement:
		finder, routes, err := sc.groupRoutes(ctx, sec)
		if err != nil {
			return nil, err
		}
		speed, wait, err := speedAndWait(sec)
		if err != nil {
			return nil, err
		}
		first, err := sec.IntOr("routeFirstStop", -1)
		if err != nil {
			return nil, err
		}
		return movement.NewMapRouteMovement(routes, finder, first, speed, wait, movement.Fork(sc.RNG))

	case SatelliteMovement:
		finder, routes, err := sc.groupRoutes(ctx, sec)
		if err != nil {
			return nil, err
		}
		tps, err := sec.FloatOr("timePerStep", movement.DefaultTimePerStep)
		if err != nil {
			return nil, err
		}
		first, err := sec.IntOr("routeFirstStop", 0)
		if err != nil {
			return nil, err
		}
		return movement.NewSatelliteMovement(routes, finder, tps, first)

	case OrbitMovement:
		line1, err := sec.String("tle1")
		if err != nil {
			return nil, err
		}
		line2, err := sec.String("tle2")
		if err != nil {
			return nil, err
		}
		tps, err := sec.FloatOr("timePerStep", movement.DefaultTimePerStep)
		if err != nil {
			return nil, err
		}
		samples, err := sec.IntOr("orbitSamples", movement.DefaultOrbitSamples)
		if err != nil {
			return nil, err
		}
		return movement.NewOrbitMovement(line1, line2, tps, samples, sc.World)

	default:
		return nil, fmt.Errorf("%w: %s.movementModel %q is not a known movement model", core.ErrConfig, sec.Namespace(), name)
	}
}

func speedAndWait(sec *settings.Section) (speed, wait movement.Range, err error) {
	s, err := sec.CSVFloats("speed", 2)
	if err != nil {
		return speed, wait, err
	}
	w, err := sec.CSVFloatsOr("waitTime", 2, []float64{0, 0})
	if err != nil {
		return speed, wait, err
	}
	return movement.Range{Min: s[0], Max: s[1]}, movement.Range{Min: w[0], Max: w[1]}, nil
}

// simMap loads the map files named in the MapBasedMovement namespace.
func (sc *SimulationContext) simMap(ctx context.Context) (*mapgraph.SimMap, error) {
	ns := sc.Settings.Sub("MapBasedMovement", "")
	n, err := ns.Int("nrofMapFiles")
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: MapBasedMovement.nrofMapFiles must be at least 1, got %d", core.ErrConfig, n)
	}
	files := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		f, err := ns.String(fmt.Sprintf("mapFile%d", i))
		if err != nil {
			return nil, err
		}
		files = append(files, sc.resolve(f))
	}
	m, err := sc.Maps.GetSimMap(ctx, files, sc.World)
	if err != nil {
		return nil, err
	}
	sc.mapNodes = m.Len()
	sc.Log.Debug(ctx, "map ready", logging.Int("nodes", m.Len()), logging.Int("files", n))
	return m, nil
}

// groupMap returns the map and the okMaps type mask of a group.
func (sc *SimulationContext) groupMap(ctx context.Context, sec *settings.Section) (*mapgraph.SimMap, mapgraph.TypeMask, error) {
	m, err := sc.simMap(ctx)
	if err != nil {
		return nil, 0, err
	}
	types, err := sec.CSVIntsOr("okMaps", 0, nil)
	if err != nil {
		return nil, 0, err
	}
	mask, err := mapgraph.MaskFromTypes(types, sc.Maps.NrofMapFilesRead())
	if err != nil {
		return nil, 0, fmt.Errorf("%s.okMaps: %w", sec.Namespace(), err)
	}
	return m, mask, nil
}

// groupRoutes reads the route file of a group and builds a path finder
// restricted to its okMaps.
func (sc *SimulationContext) groupRoutes(ctx context.Context, sec *settings.Section) (*mapgraph.PathFinder, []*mapgraph.MapRoute, error) {
	m, mask, err := sc.groupMap(ctx, sec)
	if err != nil {
		return nil, nil, err
	}
	file, err := sec.String("routeFile")
	if err != nil {
		return nil, nil, err
	}
	rt, err := sec.Int("routeType")
	if err != nil {
		return nil, nil, err
	}
	typ, err := mapgraph.ParseRouteType(rt)
	if err != nil {
		return nil, nil, fmt.Errorf("%s.routeType: %w", sec.Namespace(), err)
	}
	routes, err := mapgraph.ReadRouteFile(sc.resolve(file), typ, m)
	if err != nil {
		return nil, nil, err
	}
	return mapgraph.NewPathFinder(m, mask), routes, nil
}
