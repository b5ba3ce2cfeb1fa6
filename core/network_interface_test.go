package core

import (
	"strings"
	"testing"

	"github.com/signalsfoundry/dtn-contact-sim/model"
	"github.com/signalsfoundry/dtn-contact-sim/timectrl"
)

var nextTestID int

// mount creates a host named name at loc carrying one interface.
func mount(name string, loc model.Coord, tech string, rng float64, m RangeModel) *NetworkInterface {
	nextTestID++
	h := NewHost(nextTestID, name, loc)
	ni := NewNetworkInterface(nextTestID, "iface", tech, rng, m)
	h.AddInterface(ni)
	return ni
}

func TestSimpleBroadcastUsesSmallerRange(t *testing.T) {
	env := RangeEnv{World: model.WorldSize{W: 1000, H: 1000}}
	a := mount("a", model.Coord{X: 100, Y: 100}, "wifi", 10, SimpleBroadcast{})
	b := mount("b", model.Coord{X: 105, Y: 100}, "wifi", 10, SimpleBroadcast{})
	if !a.IsWithinRange(env, b) || !b.IsWithinRange(env, a) {
		t.Fatalf("5 m apart with 10 m radios should be in range")
	}

	c := mount("c", model.Coord{X: 108, Y: 100}, "wifi", 5, SimpleBroadcast{})
	if a.IsWithinRange(env, c) {
		t.Fatalf("8 m apart with min range 5 should be out of range")
	}
}

func TestIsWithinRangeRejectsSelf(t *testing.T) {
	a := mount("a", model.Coord{}, "net", 1, Internet{})
	if a.IsWithinRange(RangeEnv{}, a) {
		t.Fatalf("an interface is never in range of itself")
	}
	if a.CanConnect(a) {
		t.Fatalf("an interface never connects to itself")
	}
}

func TestInternetAlwaysInRange(t *testing.T) {
	env := RangeEnv{World: model.WorldSize{W: 1000, H: 1000}}
	a := mount("a", model.Coord{X: 0, Y: 0}, "net", 1, Internet{})
	b := mount("b", model.Coord{X: 1000, Y: 1000}, "net", 1, Internet{})
	if !a.CanConnect(b) || !a.IsWithinRange(env, b) {
		t.Fatalf("internet interfaces should always be in contact")
	}

	radio := mount("r", model.Coord{X: 0, Y: 0}, "net", 100, SimpleBroadcast{})
	if a.CanConnect(radio) || a.IsWithinRange(env, radio) {
		t.Fatalf("internet must not pair with a broadcast radio")
	}
}

func TestForcedConnectionFollowsTable(t *testing.T) {
	table, err := LoadContactsCSV(strings.NewReader("A,B,10.0,20.0\n"))
	if err != nil {
		t.Fatalf("LoadContactsCSV: %v", err)
	}
	m := ForcedConnection{Contacts: table}
	a := mount("A", model.Coord{}, "forced", 1, m)
	b := mount("B", model.Coord{X: 999}, "forced", 1, m)

	clock := timectrl.NewClock()
	env := RangeEnv{World: model.WorldSize{W: 1000, H: 1000}, Clock: clock}

	cases := []struct {
		now  float64
		want bool
	}{
		{5, false},
		{10, true},
		{15, true},
		{20, true},
		{25, false},
	}
	for _, tc := range cases {
		if err := clock.SetTime(tc.now); err != nil {
			t.Fatalf("SetTime: %v", err)
		}
		if got := a.IsWithinRange(env, b); got != tc.want {
			t.Errorf("t=%v: A->B in range = %v, want %v", tc.now, got, tc.want)
		}
		if b.IsWithinRange(env, a) {
			t.Errorf("t=%v: B->A must not be in range for a one-directional row", tc.now)
		}
	}
}

func TestGroundStationPairing(t *testing.T) {
	gs := mount("gs", model.Coord{}, "sat", 0, GroundStation{MinElevationDeg: 10})
	sat := mount("sat", model.Coord{}, "sat", 0, &Satellite{Altitude: 550e3})
	gs2 := mount("gs2", model.Coord{}, "sat", 0, GroundStation{})
	radio := mount("radio", model.Coord{}, "sat", 10, SimpleBroadcast{})

	if !gs.CanConnect(sat) || !sat.CanConnect(gs) {
		t.Fatalf("ground station and satellite should pair")
	}
	if gs.CanConnect(gs2) {
		t.Fatalf("two ground stations must not pair")
	}
	if gs.CanConnect(radio) || sat.CanConnect(radio) {
		t.Fatalf("satellite radios must not pair with broadcast radios")
	}
}

func TestSatelliteISLRequiresBothActive(t *testing.T) {
	a := mount("a", model.Coord{}, "sat", 0, &Satellite{Altitude: 550e3, ISLActive: true, ISLRange: 1e6})
	b := mount("b", model.Coord{}, "sat", 0, &Satellite{Altitude: 550e3, ISLActive: true, ISLRange: 1e6})
	c := mount("c", model.Coord{}, "sat", 0, &Satellite{Altitude: 550e3})

	if !a.CanConnect(b) {
		t.Fatalf("two ISL-active satellites should pair")
	}
	if a.CanConnect(c) || c.CanConnect(a) {
		t.Fatalf("ISL needs both satellites active")
	}
}

func TestSatelliteScenarios(t *testing.T) {
	world := testWorld
	env := RangeEnv{World: world}
	center := model.Coord{X: float64(world.W) / 2, Y: float64(world.H) / 2}

	gs := mount("gs", center, "sat", 0, GroundStation{MinElevationDeg: 10})
	overhead := mount("s1", center, "sat", 0, &Satellite{Altitude: 550e3})
	far := mount("s2", model.Coord{X: 10, Y: center.Y}, "sat", 0, &Satellite{Altitude: 550e3})

	if !gs.IsWithinRange(env, overhead) || !overhead.IsWithinRange(env, gs) {
		t.Fatalf("overhead satellite should be in range of the ground station")
	}
	if gs.IsWithinRange(env, far) || far.IsWithinRange(env, gs) {
		t.Fatalf("satellite near the antipode should be out of range")
	}

	c1, c2 := islPair(550e3, 2000e3)
	s1 := mount("isl1", c1, "sat", 0, &Satellite{Altitude: 550e3, ISLActive: true, ISLRange: 2500e3})
	s2 := mount("isl2", c2, "sat", 0, &Satellite{Altitude: 550e3, ISLActive: true, ISLRange: 2500e3})
	if !s1.IsWithinRange(env, s2) || !s2.IsWithinRange(env, s1) {
		t.Fatalf("ISL 2000 km apart with 2500 km ranges should be in range")
	}
	s3 := mount("isl3", c2, "sat", 0, &Satellite{Altitude: 550e3, ISLActive: true, ISLRange: 1500e3})
	if s1.IsWithinRange(env, s3) || s3.IsWithinRange(env, s1) {
		t.Fatalf("ISL with a 1500 km peer should be out of range")
	}
}

func TestElevationSameFromBothEnds(t *testing.T) {
	env := RangeEnv{World: testWorld}
	gsModel := GroundStation{MinElevationDeg: 25}
	satModel := &Satellite{Altitude: 800e3}

	for x := 0.0; x <= float64(testWorld.W); x += 1500 {
		for y := 0.0; y <= float64(testWorld.H); y += 1500 {
			gs := mount("gs", model.Coord{X: 18000, Y: 6000}, "sat", 0, gsModel)
			sat := mount("sat", model.Coord{X: x, Y: y}, "sat", 0, satModel)
			if gs.IsWithinRange(env, sat) != sat.IsWithinRange(env, gs) {
				t.Fatalf("asymmetric visibility at %v", sat.Location())
			}
		}
	}
}

func TestSatelliteAltitudeFromHost(t *testing.T) {
	m := &Satellite{Altitude: 1, AltitudeFromHost: true}
	ni := mount("sat", model.Coord{}, "sat", 0, m)
	ni.Host.Altitude = 420e3
	if got := m.AltitudeOf(ni); got != 420e3 {
		t.Fatalf("AltitudeOf = %v, want host altitude", got)
	}
	if got := (&Satellite{Altitude: 7}).AltitudeOf(ni); got != 7 {
		t.Fatalf("AltitudeOf = %v, want configured altitude", got)
	}
}

func TestReplicateKeepsParameters(t *testing.T) {
	orig := mount("a", model.Coord{}, "wifi", 12.5, SimpleBroadcast{})
	dup := orig.Replicate(9999)
	if dup.ID != 9999 || dup.Host != nil {
		t.Fatalf("replica should have a fresh identity and no host, got %+v", dup)
	}
	if dup.Technology != "wifi" || dup.TransmitRange != 12.5 || dup.Model.Kind() != KindSimpleBroadcast {
		t.Fatalf("replica lost parameters: %+v", dup)
	}
	if !dup.Location().Equal(model.Coord{}) {
		t.Fatalf("unmounted interface location should be the zero value, got %v", dup.Location())
	}
}

func TestInterfaceKindString(t *testing.T) {
	if got := KindGroundStation.String(); got != "GroundStationInterface" {
		t.Fatalf("String() = %q", got)
	}
	if got := InterfaceKind(42).String(); got != "InterfaceKind(42)" {
		t.Fatalf("String() = %q", got)
	}
}
