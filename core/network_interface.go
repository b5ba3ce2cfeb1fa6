package core

import (
	"fmt"

	"github.com/signalsfoundry/dtn-contact-sim/model"
	"github.com/signalsfoundry/dtn-contact-sim/timectrl"
)

// InterfaceKind tags the range model variant of an interface.
type InterfaceKind int

const (
	KindSimpleBroadcast InterfaceKind = iota
	KindInternet
	KindForcedConnection
	KindGroundStation
	KindSatellite
)

func (k InterfaceKind) String() string {
	switch k {
	case KindSimpleBroadcast:
		return "SimpleBroadcastInterface"
	case KindInternet:
		return "InternetInterface"
	case KindForcedConnection:
		return "ForcedConnectionInterface"
	case KindGroundStation:
		return "GroundStationInterface"
	case KindSatellite:
		return "SatelliteInterface"
	default:
		return fmt.Sprintf("InterfaceKind(%d)", int(k))
	}
}

// RangeEnv carries the world-wide state range models read: the world
// dimensions (for the map to ECEF projection) and the simulation clock.
type RangeEnv struct {
	World model.WorldSize
	Clock timectrl.SimClock
}

// Now returns the current simulation time, or 0 without a clock.
func (e RangeEnv) Now() float64 {
	if e.Clock == nil {
		return 0
	}
	return e.Clock.Now()
}

// RangeModel decides whether two interfaces are in contact.
//
// Accepts is the symbolic pair filter: it is evaluated before any
// geometry so that mixed neighbourhoods returned by the grid are rejected
// by type. InRange is only called for accepted pairs.
type RangeModel interface {
	Kind() InterfaceKind
	Accepts(self, other *NetworkInterface) bool
	InRange(env RangeEnv, self, other *NetworkInterface) bool
	// RangeBased reports whether TransmitRange bounds the contact
	// distance on the 2D world plane. Grids of technologies with
	// non-range-based models run unoptimised.
	RangeBased() bool
}

// NetworkInterface is a radio mounted on a host.
type NetworkInterface struct {
	ID   int
	Name string
	Host *Host
	// Technology selects the connectivity grid the interface lives in.
	Technology    string
	TransmitRange float64
	Model         RangeModel
}

// NewNetworkInterface builds an interface that is not yet mounted on a host.
func NewNetworkInterface(id int, name, technology string, transmitRange float64, m RangeModel) *NetworkInterface {
	return &NetworkInterface{
		ID:            id,
		Name:          name,
		Technology:    technology,
		TransmitRange: transmitRange,
		Model:         m,
	}
}

// Location returns the current location of the owning host.
func (ni *NetworkInterface) Location() model.Coord {
	if ni.Host == nil {
		return model.Coord{}
	}
	return ni.Host.Location
}

// IsWithinRange evaluates ni's range model against other. Pairs the model
// does not accept are never in range.
func (ni *NetworkInterface) IsWithinRange(env RangeEnv, other *NetworkInterface) bool {
	if other == nil || ni == other || ni.Model == nil {
		return false
	}
	if !ni.Model.Accepts(ni, other) {
		return false
	}
	return ni.Model.InRange(env, ni, other)
}

// CanConnect reports whether both endpoints accept the pair.
func (ni *NetworkInterface) CanConnect(other *NetworkInterface) bool {
	if other == nil || ni == other || ni.Model == nil || other.Model == nil {
		return false
	}
	if ni.Host != nil && ni.Host == other.Host {
		return false
	}
	return ni.Model.Accepts(ni, other) && other.Model.Accepts(other, ni)
}

// Replicate returns a copy of ni with a new identity, unmounted. Range
// model state is shared; all variants are immutable once built.
func (ni *NetworkInterface) Replicate(id int) *NetworkInterface {
	return NewNetworkInterface(id, ni.Name, ni.Technology, ni.TransmitRange, ni.Model)
}

func (ni *NetworkInterface) String() string {
	host := "<unmounted>"
	if ni.Host != nil {
		host = ni.Host.String()
	}
	return fmt.Sprintf("%s/%s#%d", host, ni.Name, ni.ID)
}
