package core

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/dtn-contact-sim/model"
)

var testWorld = model.WorldSize{W: 36000, H: 18000}

func relErr(got, want float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-want) / math.Abs(want)
}

func TestECEFOnEllipsoidSurface(t *testing.T) {
	for _, y := range []float64{0, 1000, 4500, 9000, 12345, 18000} {
		c := model.Coord{X: 7000, Y: y}
		lat, _ := MapToLatLon(c, testWorld)
		sinLat, cosLat := math.Sincos(lat)
		n := WGS84SemiMajorAxis / math.Sqrt(1-wgs84EccentricitySq*sinLat*sinLat)
		want := math.Hypot(n*cosLat, n*(1-wgs84EccentricitySq)*sinLat)

		got := r3.Norm(ECEF(c, testWorld, 0))
		if relErr(got, want) > 1e-6 {
			t.Errorf("y=%v: |ECEF| = %.3f, want %.3f", y, got, want)
		}
	}
}

func TestECEFEquatorAndPoles(t *testing.T) {
	eq := r3.Norm(ECEF(model.Coord{X: 100, Y: float64(testWorld.H) / 2}, testWorld, 0))
	if relErr(eq, WGS84SemiMajorAxis) > 1e-9 {
		t.Fatalf("equator radius = %.3f, want %.3f", eq, WGS84SemiMajorAxis)
	}

	polar := WGS84SemiMajorAxis * (1 - WGS84Flattening)
	np := ECEF(model.Coord{X: 100, Y: 0}, testWorld, 0)
	if relErr(np.Z, polar) > 1e-9 {
		t.Fatalf("north pole Z = %.3f, want %.3f", np.Z, polar)
	}
	sp := ECEF(model.Coord{X: 100, Y: float64(testWorld.H)}, testWorld, 0)
	if relErr(sp.Z, -polar) > 1e-9 {
		t.Fatalf("south pole Z = %.3f, want %.3f", sp.Z, -polar)
	}
}

func TestLatLonRoundTrip(t *testing.T) {
	for _, c := range []model.Coord{{X: 0, Y: 1}, {X: 18000, Y: 9000}, {X: 35999, Y: 17999}, {X: 1234.5, Y: 6789.25}} {
		lat, lon := MapToLatLon(c, testWorld)
		got := LatLonToMap(lat, lon, testWorld)
		if got.Distance(c) > 1e-6 {
			t.Errorf("round trip of %v gave %v", c, got)
		}
	}
}

func TestGeodeticInvertsECEF(t *testing.T) {
	for _, c := range []model.Coord{{X: 100, Y: 9000}, {X: 20000, Y: 3000}, {X: 30000, Y: 15000}} {
		for _, h := range []float64{0, 550e3, 20200e3} {
			lat, lon, gotH := Geodetic(ECEF(c, testWorld, h))
			got := LatLonToMap(lat, lon, testWorld)
			if got.Distance(c) > 1e-3 {
				t.Errorf("%v at %.0f m: location %v", c, h, got)
			}
			if math.Abs(gotH-h) > 1e-3 {
				t.Errorf("%v: height %.4f, want %.0f", c, gotH, h)
			}
		}
	}
}

func TestElevationDegenerateIsZenith(t *testing.T) {
	gs := ECEF(model.Coord{X: 100, Y: 100}, testWorld, 0)
	if got := ElevationOverHorizon(gs, gs); got != math.Pi/2 {
		t.Fatalf("zero distance elevation = %v, want π/2", got)
	}
	if got := ElevationOverHorizon(gs, r3.Vec{}); got != math.Pi/2 {
		t.Fatalf("origin ground station elevation = %v, want π/2", got)
	}
}

func TestSatelliteVisibility(t *testing.T) {
	gs := model.Coord{X: float64(testWorld.W) / 2, Y: float64(testWorld.H) / 2}

	if !SatelliteVisible(gs, 550e3, gs, 10, testWorld) {
		t.Fatalf("satellite overhead should be visible")
	}
	if el := SatelliteElevation(gs, 550e3, gs, testWorld); math.Abs(el-math.Pi/2) > 1e-6 {
		t.Fatalf("overhead elevation = %v, want π/2", el)
	}

	antipode := model.Coord{X: 10, Y: float64(testWorld.H) / 2}
	if SatelliteVisible(antipode, 550e3, gs, 10, testWorld) {
		t.Fatalf("satellite near the antipode should not be visible")
	}
	// far side of the planet: well below the horizon
	if el := SatelliteElevation(antipode, 550e3, gs, testWorld); el > -1 {
		t.Fatalf("antipode elevation = %v, expected strongly negative", el)
	}
}

// islPair places two satellites on the equator so that their ECEF distance
// at altitude h is exactly chord metres.
func islPair(h, chord float64) (model.Coord, model.Coord) {
	dLon := 2 * math.Asin(chord/2/(WGS84SemiMajorAxis+h))
	y := float64(testWorld.H) / 2
	x1 := float64(testWorld.W) / 2
	x2 := x1 + dLon/(2*math.Pi)*float64(testWorld.W)
	return model.Coord{X: x1, Y: y}, model.Coord{X: x2, Y: y}
}

func TestWithinISLRange(t *testing.T) {
	const h = 550e3
	c1, c2 := islPair(h, 2000e3)

	d := r3.Norm(r3.Sub(ECEF(c1, testWorld, h), ECEF(c2, testWorld, h)))
	if relErr(d, 2000e3) > 1e-6 {
		t.Fatalf("test geometry distance = %v, want 2000 km", d)
	}

	if !WithinISLRange(c1, h, 2500e3, c2, h, 2500e3, testWorld) {
		t.Fatalf("2000 km apart with 2500 km ranges should be in range")
	}
	if WithinISLRange(c1, h, 2500e3, c2, h, 1500e3, testWorld) {
		t.Fatalf("the smaller 1500 km range should govern the pair")
	}
}

func TestWithinISLRangeSymmetric(t *testing.T) {
	const h = 550e3
	for _, chord := range []float64{500e3, 1499e3, 1501e3, 2000e3, 3000e3} {
		c1, c2 := islPair(h, chord)
		for _, ranges := range [][2]float64{{1500e3, 2500e3}, {2500e3, 1500e3}, {3000e3, 3000e3}} {
			ab := WithinISLRange(c1, h, ranges[0], c2, h, ranges[1], testWorld)
			ba := WithinISLRange(c2, h, ranges[1], c1, h, ranges[0], testWorld)
			if ab != ba {
				t.Errorf("chord %v ranges %v: A->B=%v B->A=%v", chord, ranges, ab, ba)
			}
		}
	}
}
