package movement

import (
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// Stationary keeps a host at a fixed location.
type Stationary struct {
	Location model.Coord
}

func (s *Stationary) InitialLocation() (model.Coord, error) {
	return s.Location, nil
}

func (s *Stationary) NextPath() (*model.Path, error) {
	p := model.NewPath(0)
	p.AddWaypoint(s.Location)
	return p, nil
}

// NextWaitTime is infinite: a stationary host never asks for another path.
func (s *Stationary) NextWaitTime() float64 {
	return math.Inf(1)
}

func (s *Stationary) Replicate(*rand.Rand) Model {
	cp := *s
	return &cp
}
