package scenario

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/internal/settings"
)

// Interface type names accepted by the "type" key of an interface
// namespace.
const (
	SimpleBroadcastInterface  = "SimpleBroadcastInterface"
	InternetInterface         = "InternetInterface"
	ForcedConnectionInterface = "ForcedConnectionInterface"
	GroundStationInterface    = "GroundStationInterface"
	SatelliteInterface        = "SatelliteInterface"
)

// defaultNominalRange is the transmit range given to interfaces whose
// contacts do not depend on distance.
const defaultNominalRange = 1.0

// buildInterface reads the interface namespace ns into an unmounted
// prototype. orbiting reports whether hosts of the group follow an orbit,
// which lets satellite interfaces take their altitude from the host.
func (sc *SimulationContext) buildInterface(ns string, orbiting bool) (*core.NetworkInterface, error) {
	sec := sc.Settings.Sub(ns, "")
	typ, err := sec.String("type")
	if err != nil {
		return nil, err
	}
	tech := sec.StringOr("technology", ns)

	var (
		rm      core.RangeModel
		txRange float64
	)
	switch typ {
	case SimpleBroadcastInterface:
		txRange, err = sec.Float("transmitRange")
		if err != nil {
			return nil, err
		}
		rm = core.SimpleBroadcast{}
	case InternetInterface:
		txRange, err = sec.FloatOr("transmitRange", defaultNominalRange)
		if err != nil {
			return nil, err
		}
		rm = core.Internet{}
	case ForcedConnectionInterface:
		txRange, err = sec.FloatOr("transmitRange", defaultNominalRange)
		if err != nil {
			return nil, err
		}
		path, err := sec.String("contactsCsv")
		if err != nil {
			return nil, err
		}
		table, err := sc.contactTable(path)
		if err != nil {
			return nil, err
		}
		rm = core.ForcedConnection{Contacts: table}
	case GroundStationInterface:
		txRange, err = sec.FloatOr("transmitRange", 0)
		if err != nil {
			return nil, err
		}
		minEl, err := sec.FloatOr("minElevation", 0)
		if err != nil {
			return nil, err
		}
		if minEl < -90 || minEl > 90 {
			return nil, fmt.Errorf("%w: %s.minElevation %g is not in [-90,90]", core.ErrConfig, ns, minEl)
		}
		rm = core.GroundStation{MinElevationDeg: minEl}
	case SatelliteInterface:
		txRange, err = sec.FloatOr("transmitRange", 0)
		if err != nil {
			return nil, err
		}
		sat, err := satelliteModel(sec, ns, orbiting)
		if err != nil {
			return nil, err
		}
		rm = sat
	default:
		return nil, fmt.Errorf("%w: %s.type %q is not a known interface type", core.ErrConfig, ns, typ)
	}

	if txRange < 0 || math.IsNaN(txRange) || math.IsInf(txRange, 0) {
		return nil, fmt.Errorf("%w: %s.transmitRange %g is invalid", core.ErrConfig, ns, txRange)
	}
	return core.NewNetworkInterface(-1, ns, tech, txRange, rm), nil
}

func satelliteModel(sec *settings.Section, ns string, orbiting bool) (*core.Satellite, error) {
	sat := &core.Satellite{}
	switch {
	case sec.Contains("altitude"):
		alt, err := sec.Float("altitude")
		if err != nil {
			return nil, err
		}
		if alt < 0 {
			return nil, fmt.Errorf("%w: %s.altitude %g must not be negative", core.ErrConfig, ns, alt)
		}
		sat.Altitude = alt
	case orbiting:
		sat.AltitudeFromHost = true
	default:
		return nil, fmt.Errorf("%w: satellite altitude missing: set %s.altitude", core.ErrConfig, ns)
	}

	var err error
	if sat.ISLActive, err = sec.BoolOr("islActive", false); err != nil {
		return nil, err
	}
	if sat.ISLRange, err = sec.FloatOr("islRange", 0); err != nil {
		return nil, err
	}
	if sat.ISLRange < 0 {
		return nil, fmt.Errorf("%w: %s.islRange %g must not be negative", core.ErrConfig, ns, sat.ISLRange)
	}
	return sat, nil
}

// contactTable loads a scripted contacts file once per context.
func (sc *SimulationContext) contactTable(path string) (*core.ContactTable, error) {
	path = sc.resolve(path)
	if t, ok := sc.contacts[path]; ok {
		return t, nil
	}
	t, err := core.LoadContactsFile(path)
	if err != nil {
		return nil, err
	}
	sc.contacts[path] = t
	return t, nil
}

// maxRanges returns the grid range of every technology used by protos.
// A technology with any interface whose model is not range based gets 0,
// which yields an unoptimised grid.
func maxRanges(protos []*core.NetworkInterface) map[string]float64 {
	out := make(map[string]float64)
	unbounded := make(map[string]bool)
	for _, p := range protos {
		if !p.Model.RangeBased() {
			unbounded[p.Technology] = true
		}
		if cur, ok := out[p.Technology]; !ok || p.TransmitRange > cur {
			out[p.Technology] = p.TransmitRange
		}
	}
	for tech := range unbounded {
		out[tech] = 0
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
