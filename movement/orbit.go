package movement

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// DefaultOrbitSamples is the number of propagation steps per orbit path.
const DefaultOrbitSamples = 20

// OrbitMovement flies the SGP4-propagated ground track of a TLE. Sim time
// zero is the TLE epoch. Paths are sampled every timePerStep seconds and
// the host altitude comes straight from the propagator.
//
// A ground track leaving one side of the map re-enters on the other. The
// path ends at the last sample before the crossing, the host waits one
// step there and the next path opens with a jump waypoint (infinite
// speed) on the far side.
type OrbitMovement struct {
	sat     satellite.Satellite
	epoch   time.Time
	step    float64
	samples int
	world   model.WorldSize

	next    int
	wrapped bool
}

// NewOrbitMovement parses a two-line element set.
func NewOrbitMovement(line1, line2 string, timePerStep float64, samples int, world model.WorldSize) (*OrbitMovement, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") || len(line1) < 64 || len(line2) < 63 {
		return nil, fmt.Errorf("%w: malformed TLE", core.ErrConfig)
	}
	if timePerStep <= 0 {
		return nil, fmt.Errorf("%w: timePerStep must be positive, got %g", core.ErrConfig, timePerStep)
	}
	if samples <= 0 {
		samples = DefaultOrbitSamples
	}
	if !world.Valid() {
		return nil, fmt.Errorf("%w: invalid world size %dx%d", core.ErrConfig, world.W, world.H)
	}
	epoch, err := tleEpoch(line1)
	if err != nil {
		return nil, err
	}
	return &OrbitMovement{
		sat:     satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		epoch:   epoch,
		step:    timePerStep,
		samples: samples,
		world:   world,
	}, nil
}

// tleEpoch decodes columns 19-32 of line 1 ("YYDDD.DDDDDDDD").
func tleEpoch(line1 string) (time.Time, error) {
	field := strings.TrimSpace(line1[18:32])
	if len(field) < 5 {
		return time.Time{}, fmt.Errorf("%w: TLE epoch %q", core.ErrConfig, field)
	}
	yy, err := strconv.Atoi(field[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: TLE epoch year %q", core.ErrConfig, field[:2])
	}
	doy, err := strconv.ParseFloat(field[2:], 64)
	if err != nil || doy < 1 || doy >= 367 {
		return time.Time{}, fmt.Errorf("%w: TLE epoch day %q", core.ErrConfig, field[2:])
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((doy - 1) * 24 * float64(time.Hour))), nil
}

// Epoch returns the instant sim time zero stands for.
func (om *OrbitMovement) Epoch() time.Time {
	return om.epoch
}

// propagate returns the map location and altitude (metres) of the
// satellite at sim time t.
func (om *OrbitMovement) propagate(t float64) (model.Coord, float64, error) {
	at := om.epoch.Add(time.Duration(t * float64(time.Second)))
	year, month, day := at.Date()
	hour, minute, sec := at.Clock()

	posECI, _ := satellite.Propagate(om.sat, year, int(month), day, hour, minute, sec)
	if math.IsNaN(posECI.X) || math.IsNaN(posECI.Y) || math.IsNaN(posECI.Z) {
		return model.Coord{}, 0, fmt.Errorf("%w: orbit propagation failed at %s", core.ErrInvariantViolation, at.Format(time.RFC3339))
	}
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, minute, sec))
	posECEF := satellite.ECIToECEF(posECI, gmst)

	// go-satellite works in kilometres
	const kmToM = 1000.0
	lat, lon, alt := core.Geodetic(r3.Vec{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM})
	return core.LatLonToMap(lat, lon, om.world), alt, nil
}

func (om *OrbitMovement) InitialLocation() (model.Coord, error) {
	c, _, err := om.propagate(0)
	return c, err
}

// NextPath samples up to samples steps of ground track.
func (om *OrbitMovement) NextPath() (*model.Path, error) {
	cur, _, err := om.propagate(float64(om.next) * om.step)
	if err != nil {
		return nil, err
	}
	p := model.NewPath(math.Inf(1))
	p.AddWaypoint(cur)
	om.wrapped = false

	half := float64(om.world.W) / 2
	for i := 1; i <= om.samples; i++ {
		nxt, _, err := om.propagate(float64(om.next+i) * om.step)
		if err != nil {
			return nil, err
		}
		if math.Abs(nxt.X-cur.X) > half {
			om.next += i
			om.wrapped = true
			return p, nil
		}
		p.AddWaypointWithSpeed(nxt, cur.Distance(nxt)/om.step)
		cur = nxt
	}
	om.next += om.samples
	return p, nil
}

// NextWaitTime is zero, or one step when the last path stopped at the map
// edge.
func (om *OrbitMovement) NextWaitTime() float64 {
	if om.wrapped {
		return om.step
	}
	return 0
}

// AltitudeAt returns the propagated altitude at sim time now.
func (om *OrbitMovement) AltitudeAt(now float64) (float64, error) {
	_, alt, err := om.propagate(now)
	return alt, err
}

func (om *OrbitMovement) Replicate(*rand.Rand) Model {
	return &OrbitMovement{
		sat:     om.sat,
		epoch:   om.epoch,
		step:    om.step,
		samples: om.samples,
		world:   om.world,
	}
}
