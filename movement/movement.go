// Package movement holds the mobility models that feed hosts with paths,
// and the Driver that walks a host along them in simulation time.
package movement

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// Model generates successive paths for one host.
//
// NextPath returns the next path, whose speeds are per waypoint, and
// NextWaitTime the dwell time once a path has been walked. Replicate
// returns an independent instance that shares immutable state (map,
// routes, path finder) but has its own cursor and random stream.
type Model interface {
	InitialLocation() (model.Coord, error)
	NextPath() (*model.Path, error)
	NextWaitTime() float64
	Replicate(rng *rand.Rand) Model
}

// AltitudeProvider is implemented by models that know the host altitude
// (metres over the ellipsoid) at a simulation time.
type AltitudeProvider interface {
	AltitudeAt(now float64) (float64, error)
}

// LocationSetter is implemented by models that can resume from an
// arbitrary location, e.g. when a host switches models.
type LocationSetter interface {
	SetLocation(c model.Coord)
	LastLocation() (model.Coord, bool)
}

// Range is a closed interval values are drawn from uniformly.
type Range struct {
	Min float64
	Max float64
}

// Fixed returns the degenerate range [v, v].
func Fixed(v float64) Range {
	return Range{Min: v, Max: v}
}

// Validate rejects negative or inverted ranges.
func (r Range) Validate(name string) error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("%w: %s range [%g,%g] is invalid", core.ErrConfig, name, r.Min, r.Max)
	}
	return nil
}

// Draw returns a uniform value in [Min, Max]. A nil rng yields Max.
func (r Range) Draw(rng *rand.Rand) float64 {
	if rng == nil || r.Max == r.Min {
		return r.Max
	}
	return r.Min + (r.Max-r.Min)*rng.Float64()
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Fork derives an independent generator from parent. Forking in a fixed
// order keeps a scenario reproducible under one seed.
func Fork(parent *rand.Rand) *rand.Rand {
	return rand.New(rand.NewPCG(parent.Uint64(), parent.Uint64()))
}
