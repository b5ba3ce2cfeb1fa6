package core

import "math"

// SimpleBroadcast is the terrestrial radio rule: two interfaces are in
// contact while their hosts are within the smaller of both transmit ranges.
type SimpleBroadcast struct{}

func (SimpleBroadcast) Kind() InterfaceKind { return KindSimpleBroadcast }

func (SimpleBroadcast) Accepts(_, other *NetworkInterface) bool {
	return kindOf(other) == KindSimpleBroadcast
}

func (SimpleBroadcast) InRange(_ RangeEnv, self, other *NetworkInterface) bool {
	r := math.Min(self.TransmitRange, other.TransmitRange)
	return self.Location().Distance(other.Location()) <= r
}

func (SimpleBroadcast) RangeBased() bool { return true }

// Internet is an always-on backhaul: every pair of Internet interfaces is
// in contact regardless of location.
type Internet struct{}

func (Internet) Kind() InterfaceKind { return KindInternet }

func (Internet) Accepts(_, other *NetworkInterface) bool {
	return kindOf(other) == KindInternet
}

func (Internet) InRange(RangeEnv, *NetworkInterface, *NetworkInterface) bool { return true }

func (Internet) RangeBased() bool { return false }

// ForcedConnection replays scripted contacts. A row tx,rx only puts the
// pair in range when evaluated from the tx side.
type ForcedConnection struct {
	Contacts *ContactTable
}

func (ForcedConnection) Kind() InterfaceKind { return KindForcedConnection }

func (ForcedConnection) Accepts(_, other *NetworkInterface) bool {
	return kindOf(other) == KindForcedConnection
}

func (f ForcedConnection) InRange(env RangeEnv, self, other *NetworkInterface) bool {
	if f.Contacts == nil || self.Host == nil || other.Host == nil {
		return false
	}
	return f.Contacts.InContact(self.Host.String(), other.Host.String(), env.Now())
}

func (ForcedConnection) RangeBased() bool { return false }

// GroundStation pairs only with satellites that rise at least
// MinElevationDeg over its horizon.
type GroundStation struct {
	MinElevationDeg float64
}

func (GroundStation) Kind() InterfaceKind { return KindGroundStation }

func (GroundStation) Accepts(_, other *NetworkInterface) bool {
	return kindOf(other) == KindSatellite
}

func (g GroundStation) InRange(env RangeEnv, self, other *NetworkInterface) bool {
	sat, ok := other.Model.(*Satellite)
	if !ok {
		return false
	}
	return SatelliteVisible(other.Location(), sat.AltitudeOf(other), self.Location(), g.MinElevationDeg, env.World)
}

func (GroundStation) RangeBased() bool { return false }

// Satellite is a LEO satellite radio. It talks to ground stations that
// see it above their minimum elevation and, when ISLActive, to other
// ISL-capable satellites within the smaller of both ISL ranges.
//
// Altitude is metres over the ellipsoid. When AltitudeFromHost is set the
// host's current altitude is used instead (orbit-propagated hosts).
type Satellite struct {
	Altitude         float64
	AltitudeFromHost bool
	ISLActive        bool
	ISLRange         float64
}

func (*Satellite) Kind() InterfaceKind { return KindSatellite }

func (s *Satellite) Accepts(_, other *NetworkInterface) bool {
	switch kindOf(other) {
	case KindGroundStation:
		return true
	case KindSatellite:
		peer, ok := other.Model.(*Satellite)
		return ok && s.ISLActive && peer.ISLActive
	default:
		return false
	}
}

func (s *Satellite) InRange(env RangeEnv, self, other *NetworkInterface) bool {
	switch m := other.Model.(type) {
	case GroundStation:
		return SatelliteVisible(self.Location(), s.AltitudeOf(self), other.Location(), m.MinElevationDeg, env.World)
	case *GroundStation:
		return SatelliteVisible(self.Location(), s.AltitudeOf(self), other.Location(), m.MinElevationDeg, env.World)
	case *Satellite:
		if !s.ISLActive || !m.ISLActive {
			return false
		}
		return WithinISLRange(self.Location(), s.AltitudeOf(self), s.ISLRange,
			other.Location(), m.AltitudeOf(other), m.ISLRange, env.World)
	default:
		return false
	}
}

func (*Satellite) RangeBased() bool { return false }

// AltitudeOf returns the altitude of the satellite interface ni.
func (s *Satellite) AltitudeOf(ni *NetworkInterface) float64 {
	if s.AltitudeFromHost && ni != nil && ni.Host != nil {
		return ni.Host.Altitude
	}
	return s.Altitude
}

func kindOf(ni *NetworkInterface) InterfaceKind {
	if ni == nil || ni.Model == nil {
		return -1
	}
	return ni.Model.Kind()
}
