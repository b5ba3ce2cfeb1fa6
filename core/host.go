package core

import "github.com/signalsfoundry/dtn-contact-sim/model"

// Mover advances a host along its movement model. Implementations own
// the path interpolation; the scheduler only asks for the new location.
type Mover interface {
	Advance(now, dt float64) (model.Coord, error)
}

// AltitudeReporter is implemented by movers whose model tracks the
// host's height over the ellipsoid (orbiting satellites).
type AltitudeReporter interface {
	Altitude() (float64, bool)
}

// Host is an addressable simulation node. Hosts own their interfaces;
// each interface keeps a back-reference to the host it is mounted on.
type Host struct {
	Address  int
	Name     string
	Group    string
	Location model.Coord
	// Altitude is the current height (metres) over the WGS-84 ellipsoid.
	// It is only meaningful for hosts carrying satellite interfaces.
	Altitude float64

	Interfaces []*NetworkInterface
	Mover      Mover
}

// NewHost creates a host at loc.
func NewHost(address int, name string, loc model.Coord) *Host {
	return &Host{
		Address:  address,
		Name:     name,
		Location: loc,
	}
}

// AddInterface mounts ni on h.
func (h *Host) AddInterface(ni *NetworkInterface) {
	ni.Host = h
	h.Interfaces = append(h.Interfaces, ni)
}

// RemoveInterface unmounts ni. It returns false when ni is not mounted on h.
func (h *Host) RemoveInterface(ni *NetworkInterface) bool {
	for i, cur := range h.Interfaces {
		if cur == ni {
			h.Interfaces = append(h.Interfaces[:i], h.Interfaces[i+1:]...)
			return true
		}
	}
	return false
}

// Move advances the host with its mover, if any, and records the new
// location and altitude.
func (h *Host) Move(now, dt float64) error {
	if h.Mover == nil {
		return nil
	}
	loc, err := h.Mover.Advance(now, dt)
	if err != nil {
		return err
	}
	h.Location = loc
	if ar, ok := h.Mover.(AltitudeReporter); ok {
		if alt, ok := ar.Altitude(); ok {
			h.Altitude = alt
		}
	}
	return nil
}

// String returns the host name. Scripted contact tables are keyed by it.
func (h *Host) String() string {
	return h.Name
}
