package movement

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// maxPathsPerAdvance bounds how many zero-wait paths one Advance call may
// chain, so that a model emitting empty paths cannot stall a tick.
const maxPathsPerAdvance = 64

// Driver walks a host along the paths of its Model. It implements
// core.Mover, and core.AltitudeReporter for models that track altitude.
//
// Travel is time based: each Advance spends dt seconds of budget moving
// through waypoints at their own speeds. When a path is finished the host
// waits NextWaitTime seconds before asking for the next one. A zero wait
// lets the remaining budget carry over into the next path.
type Driver struct {
	model Model

	loc        model.Coord
	path       *model.Path
	next       int
	dest       model.Coord
	speed      float64
	hasDest    bool
	nextMoveAt float64

	alt    float64
	hasAlt bool
}

// NewDriver places a driver at the model's initial location.
func NewDriver(m Model) (*Driver, error) {
	loc, err := m.InitialLocation()
	if err != nil {
		return nil, err
	}
	d := &Driver{model: m, loc: loc}
	if ap, ok := m.(AltitudeProvider); ok {
		alt, err := ap.AltitudeAt(0)
		if err != nil {
			return nil, err
		}
		d.alt, d.hasAlt = alt, true
	}
	return d, nil
}

// Model returns the driven model.
func (d *Driver) Model() Model {
	return d.model
}

// Location returns the current location.
func (d *Driver) Location() model.Coord {
	return d.loc
}

// Altitude implements core.AltitudeReporter.
func (d *Driver) Altitude() (float64, bool) {
	return d.alt, d.hasAlt
}

// Advance implements core.Mover. now is the simulation time after the
// step of dt seconds.
func (d *Driver) Advance(now, dt float64) (model.Coord, error) {
	if err := d.walk(now, dt); err != nil {
		return d.loc, err
	}
	if ap, ok := d.model.(AltitudeProvider); ok {
		alt, err := ap.AltitudeAt(now)
		if err != nil {
			return d.loc, err
		}
		d.alt, d.hasAlt = alt, true
	}
	return d.loc, nil
}

func (d *Driver) walk(now, dt float64) error {
	if now < d.nextMoveAt {
		return nil
	}
	budget := dt

	for fetched := 0; ; {
		if !d.hasDest {
			if d.path == nil {
				if fetched == maxPathsPerAdvance {
					return nil
				}
				p, err := d.model.NextPath()
				if err != nil {
					return err
				}
				if p == nil {
					p = &model.Path{}
				}
				d.path, d.next = p, 0
				fetched++
			}
			if d.next >= d.path.Len() {
				d.path = nil
				wait := d.model.NextWaitTime()
				d.nextMoveAt = now + wait
				if wait > 0 || budget <= 0 {
					return nil
				}
				continue
			}
			wp := d.path.Waypoints[d.next]
			d.next++
			d.dest, d.speed, d.hasDest = wp.Location, wp.Speed, true
		}

		dist := d.loc.Distance(d.dest)
		switch {
		case dist == 0 || math.IsInf(d.speed, 1):
			d.loc = d.dest
		case d.speed <= 0 || math.IsNaN(d.speed):
			return fmt.Errorf("%w: waypoint %s has speed %g", core.ErrInvariantViolation, d.dest, d.speed)
		default:
			need := dist / d.speed
			if need > budget {
				f := budget / need
				d.loc = d.loc.Translate(f*(d.dest.X-d.loc.X), f*(d.dest.Y-d.loc.Y))
				return nil
			}
			budget -= need
			d.loc = d.dest
		}
		d.hasDest = false
	}
}
