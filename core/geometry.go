package core

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// WGS-84 ellipsoid constants.
const (
	WGS84SemiMajorAxis = 6378137.0
	WGS84Flattening    = 1 / 298.257223563

	// wgs84EccentricitySq is the first eccentricity squared, 2f - f².
	wgs84EccentricitySq = 2*WGS84Flattening - WGS84Flattening*WGS84Flattening
)

// MapToLatLon interprets a world coordinate as latitude/longitude in
// radians. The top edge of the world is the north pole and x = 0 is the
// antimeridian.
func MapToLatLon(c model.Coord, world model.WorldSize) (lat, lon float64) {
	lat = math.Pi/2 - (c.Y/float64(world.H))*math.Pi
	lon = (c.X/float64(world.W))*2*math.Pi - math.Pi
	return lat, lon
}

// LatLonToMap is the inverse of MapToLatLon. Longitudes are normalised to
// [-π, π) and latitudes clamped to [-π/2, π/2].
func LatLonToMap(lat, lon float64, world model.WorldSize) model.Coord {
	lon = math.Mod(lon+math.Pi, 2*math.Pi)
	if lon < 0 {
		lon += 2 * math.Pi
	}
	lat = math.Max(-math.Pi/2, math.Min(math.Pi/2, lat))
	return model.Coord{
		X: lon / (2 * math.Pi) * float64(world.W),
		Y: (math.Pi/2 - lat) / math.Pi * float64(world.H),
	}
}

// ECEF returns the Earth-centred Earth-fixed position (metres) of a world
// coordinate at height h over the WGS-84 ellipsoid.
func ECEF(c model.Coord, world model.WorldSize, h float64) r3.Vec {
	lat, lon := MapToLatLon(c, world)
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// radius of curvature in the prime vertical
	n := WGS84SemiMajorAxis / math.Sqrt(1-wgs84EccentricitySq*sinLat*sinLat)

	return r3.Vec{
		X: (n + h) * cosLat * cosLon,
		Y: (n + h) * cosLat * sinLon,
		Z: (n*(1-wgs84EccentricitySq) + h) * sinLat,
	}
}

// Geodetic converts an ECEF position (metres) to geodetic latitude and
// longitude (radians) and height over the WGS-84 ellipsoid.
func Geodetic(v r3.Vec) (lat, lon, h float64) {
	const a = WGS84SemiMajorAxis
	const e2 = wgs84EccentricitySq

	lon = math.Atan2(v.Y, v.X)
	p := math.Hypot(v.X, v.Y)
	if p < 1e-6 {
		lat = math.Copysign(math.Pi/2, v.Z)
		return lat, lon, math.Abs(v.Z) - a*(1-WGS84Flattening)
	}

	lat = math.Atan2(v.Z, p*(1-e2))
	for i := 0; i < 8; i++ {
		sinLat := math.Sin(lat)
		n := a / math.Sqrt(1-e2*sinLat*sinLat)
		h = p/math.Cos(lat) - n
		lat = math.Atan2(v.Z, p*(1-e2*n/(n+h)))
	}
	sinLat := math.Sin(lat)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	h = p/math.Cos(lat) - n
	return lat, lon, h
}

// ElevationOverHorizon returns the elevation (radians) of sat above the
// horizon of gs, both in ECEF. It uses the law of cosines on the triangle
// earth centre, ground station, satellite:
//
//	s = |sat|, g = |gs|, d = |sat - gs|
//	elevation = asin((s² - d² - g²) / (2gd))
func ElevationOverHorizon(sat, gs r3.Vec) float64 {
	s := r3.Norm(sat)
	g := r3.Norm(gs)
	d := r3.Norm(r3.Sub(sat, gs))
	if g == 0 || d == 0 {
		return math.Pi / 2
	}
	v := (s*s - d*d - g*g) / (2 * g * d)
	// rounding can push |v| marginally above 1
	v = math.Max(-1, math.Min(1, v))
	return math.Asin(v)
}

// SatelliteElevation returns the elevation of a satellite at satC/satAlt
// over a ground station at gsC on the ellipsoid surface.
func SatelliteElevation(satC model.Coord, satAlt float64, gsC model.Coord, world model.WorldSize) float64 {
	return ElevationOverHorizon(ECEF(satC, world, satAlt), ECEF(gsC, world, 0))
}

// SatelliteVisible reports whether the satellite reaches at least
// minElevationDeg over the ground station's horizon.
func SatelliteVisible(satC model.Coord, satAlt float64, gsC model.Coord, minElevationDeg float64, world model.WorldSize) bool {
	return SatelliteElevation(satC, satAlt, gsC, world) >= minElevationDeg*math.Pi/180
}

// WithinISLRange reports whether two satellites can hold an inter-satellite
// link. The smaller of the two ranges governs the pair.
func WithinISLRange(c1 model.Coord, alt1, range1 float64, c2 model.Coord, alt2, range2 float64, world model.WorldSize) bool {
	d := r3.Norm(r3.Sub(ECEF(c1, world, alt1), ECEF(c2, world, alt2)))
	return d <= math.Min(range1, range2)
}
