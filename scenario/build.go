package scenario

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/internal/logging"
	"github.com/signalsfoundry/dtn-contact-sim/movement"
)

// group is one parsed Group<i> namespace.
type group struct {
	id         string
	nrofHosts  int
	model      movement.Model
	interfaces []*core.NetworkInterface
}

// Build creates every host group described by the settings: movement
// models, hosts and interfaces. Interfaces are registered with the grid
// of their technology at the hosts' initial locations. Grids are sized
// with the largest transmit range of their technology before any
// interface is attached.
//
// A failed Build leaves a partial world behind; Reset before retrying.
func (sc *SimulationContext) Build(ctx context.Context) (err error) {
	if sc.built {
		return fmt.Errorf("%w: scenario %q is already built; reset it first", core.ErrInvariantViolation, sc.name)
	}
	start := time.Now()
	ctx, span := sc.tracer.Start(ctx, "scenario.build", trace.WithAttributes(attribute.String("scenario", sc.name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	nrofGroups, err := sc.Settings.Sub("Scenario", "").IntOr("nrofHostGroups", 1)
	if err != nil {
		return err
	}
	if nrofGroups < 1 {
		return fmt.Errorf("%w: Scenario.nrofHostGroups must be at least 1, got %d", core.ErrConfig, nrofGroups)
	}

	groups := make([]*group, 0, nrofGroups)
	var protos []*core.NetworkInterface
	for i := 1; i <= nrofGroups; i++ {
		g, err := sc.readGroup(ctx, i)
		if err != nil {
			return err
		}
		groups = append(groups, g)
		protos = append(protos, g.interfaces...)
	}

	ranges := maxRanges(protos)
	for _, tech := range sortedKeys(ranges) {
		grid, err := sc.Grids.GetOrCreate(tech, ranges[tech])
		if err != nil {
			return err
		}
		sc.Log.Debug(ctx, "connectivity grid created",
			logging.String("technology", tech),
			logging.Float("max_range", ranges[tech]),
			logging.Int("cell_size", grid.CellSize()),
			logging.Bool("disabled", grid.Disabled()),
		)
	}

	for _, g := range groups {
		if err := sc.createHosts(ctx, g, ranges); err != nil {
			return err
		}
	}
	sc.built = true

	sc.runMetrics.ObserveBuild(time.Since(start))
	sc.runMetrics.SetWorld(sc.Hosts.Len(), sc.mapNodes)
	sc.publish(sc.Clock.Now())

	span.SetAttributes(attribute.Int("hosts", sc.Hosts.Len()), attribute.Int("groups", len(groups)))
	sc.Log.Info(ctx, "scenario built",
		logging.String("scenario", sc.name),
		logging.Int("groups", len(groups)),
		logging.Int("hosts", sc.Hosts.Len()),
		logging.Int("interfaces", len(protos)),
		logging.Any("world", sc.World),
	)
	return nil
}

// readGroup parses Group<i>, falling back to the Group namespace.
func (sc *SimulationContext) readGroup(ctx context.Context, i int) (*group, error) {
	sec := sc.Settings.Sub(fmt.Sprintf("Group%d", i), "Group")
	id, err := sec.String("groupID")
	if err != nil {
		return nil, err
	}
	n, err := sec.Int("nrofHosts")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s.nrofHosts must not be negative, got %d", core.ErrConfig, sec.Namespace(), n)
	}

	modelName := sec.StringOr("movementModel", StationaryMovement)
	m, err := sc.buildMovement(ctx, modelName, sec)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", id, err)
	}

	nrofIfaces, err := sec.IntOr("nrofInterfaces", 0)
	if err != nil {
		return nil, err
	}
	_, orbiting := m.(*movement.OrbitMovement)
	g := &group{id: id, nrofHosts: n, model: m}
	for j := 1; j <= nrofIfaces; j++ {
		ns, err := sec.String(fmt.Sprintf("interface%d", j))
		if err != nil {
			return nil, err
		}
		ni, err := sc.buildInterface(ns, orbiting)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", id, err)
		}
		g.interfaces = append(g.interfaces, ni)
	}

	sc.Log.Debug(ctx, "host group read",
		logging.String("group", id),
		logging.Int("hosts", n),
		logging.String("movement", modelName),
		logging.Int("interfaces", len(g.interfaces)),
	)
	return g, nil
}

// createHosts replicates the group's movement and interfaces onto
// nrofHosts new hosts. Host names are the group ID followed by the host
// address.
func (sc *SimulationContext) createHosts(ctx context.Context, g *group, ranges map[string]float64) error {
	for k := 0; k < g.nrofHosts; k++ {
		addr := sc.nextAddress
		sc.nextAddress++

		d, err := movement.NewDriver(g.model.Replicate(movement.Fork(sc.RNG)))
		if err != nil {
			return fmt.Errorf("group %s host %d: %w", g.id, addr, err)
		}
		h := core.NewHost(addr, fmt.Sprintf("%s%d", g.id, addr), d.Location())
		h.Group = g.id
		h.Mover = d
		if alt, ok := d.Altitude(); ok {
			h.Altitude = alt
		}
		if !sc.World.Contains(h.Location) {
			return fmt.Errorf("%w: host %s starts at %s", core.ErrOutOfWorld, h, h.Location)
		}

		for _, proto := range g.interfaces {
			h.AddInterface(proto.Replicate(sc.nextIfaceID))
			sc.nextIfaceID++
		}
		if err := sc.Hosts.AddHost(h); err != nil {
			return err
		}
		for _, ni := range h.Interfaces {
			if err := sc.Scheduler.AttachInterface(ni, ranges[ni.Technology]); err != nil {
				return err
			}
		}
	}
	sc.Log.Debug(ctx, "hosts created", logging.String("group", g.id), logging.Int("hosts", g.nrofHosts))
	return nil
}
