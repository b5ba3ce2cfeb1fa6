package core

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/dtn-contact-sim/model"
)

var gridWorld = model.WorldSize{W: 1000, H: 1000}

func newTestGrid(t *testing.T, maxRange float64) *ConnectivityGrid {
	t.Helper()
	g, err := NewConnectivityGrid("wifi", gridWorld, maxRange, DefaultCellSizeMult, false)
	if err != nil {
		t.Fatalf("NewConnectivityGrid: %v", err)
	}
	return g
}

func contains(list []*NetworkInterface, ni *NetworkInterface) bool {
	for _, cur := range list {
		if cur == ni {
			return true
		}
	}
	return false
}

func TestGridDimensions(t *testing.T) {
	g := newTestGrid(t, 10)
	if g.CellSize() != 50 {
		t.Fatalf("cellSize = %d, want 50", g.CellSize())
	}
	rows, cols := g.Dimensions()
	if rows != 21 || cols != 21 {
		t.Fatalf("dimensions = %dx%d, want 21x21", rows, cols)
	}
	if len(g.cells) != rows+2 || len(g.cells[0]) != cols+2 {
		t.Fatalf("halo missing: %dx%d cells", len(g.cells), len(g.cells[0]))
	}

	g2 := newTestGrid(t, 0.3)
	if g2.CellSize() != 2 {
		t.Fatalf("cellSize = %d, want ceil(0.3*5) = 2", g2.CellSize())
	}
}

func TestGridNeighbourhood(t *testing.T) {
	g := newTestGrid(t, 10)
	a := mount("a", model.Coord{X: 100, Y: 100}, "wifi", 10, SimpleBroadcast{})
	b := mount("b", model.Coord{X: 105, Y: 100}, "wifi", 10, SimpleBroadcast{})
	for _, ni := range []*NetworkInterface{a, b} {
		if err := g.AddInterface(ni); err != nil {
			t.Fatalf("AddInterface: %v", err)
		}
	}

	near := g.NearInterfaces(a)
	if !contains(near, a) || !contains(near, b) {
		t.Fatalf("NearInterfaces(a) = %v, want both a and b", near)
	}
	if !a.IsWithinRange(RangeEnv{World: gridWorld}, b) {
		t.Fatalf("a and b should be in contact")
	}

	// move b to a non-adjacent cell
	b.Host.Location = model.Coord{X: 500, Y: 500}
	if err := g.UpdateLocation(b); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	if contains(g.NearInterfaces(a), b) {
		t.Fatalf("b at (500,500) should not be near a")
	}
	if a.IsWithinRange(RangeEnv{World: gridWorld}, b) {
		t.Fatalf("a and b should not be in contact")
	}
}

func TestGridNearInterfacesOrderedByID(t *testing.T) {
	g := newTestGrid(t, 10)
	var added []*NetworkInterface
	for i := 0; i < 6; i++ {
		ni := mount("n", model.Coord{X: 100 + float64(i), Y: 100}, "wifi", 10, SimpleBroadcast{})
		added = append(added, ni)
	}
	for i := len(added) - 1; i >= 0; i-- {
		if err := g.AddInterface(added[i]); err != nil {
			t.Fatalf("AddInterface: %v", err)
		}
	}
	near := g.NearInterfaces(added[0])
	for i := 1; i < len(near); i++ {
		if near[i-1].ID >= near[i].ID {
			t.Fatalf("NearInterfaces not ordered by ID: %v", near)
		}
	}
}

func TestGridOutOfWorld(t *testing.T) {
	g := newTestGrid(t, 10)
	ni := mount("a", model.Coord{X: -1, Y: 10}, "wifi", 10, SimpleBroadcast{})
	if err := g.AddInterface(ni); !errors.Is(err, ErrOutOfWorld) {
		t.Fatalf("AddInterface err = %v, want ErrOutOfWorld", err)
	}
	if g.Len() != 0 {
		t.Fatalf("rejected interface must not be registered")
	}

	ni.Host.Location = model.Coord{X: 1000, Y: 1000}
	if err := g.AddInterface(ni); err != nil {
		t.Fatalf("world corner should be inside: %v", err)
	}
	ni.Host.Location = model.Coord{X: 1000.5, Y: 1000}
	if err := g.UpdateLocation(ni); !errors.Is(err, ErrOutOfWorld) {
		t.Fatalf("UpdateLocation err = %v, want ErrOutOfWorld", err)
	}
}

func TestGridAddIsIdempotent(t *testing.T) {
	g := newTestGrid(t, 10)
	ni := mount("a", model.Coord{X: 10, Y: 10}, "wifi", 10, SimpleBroadcast{})
	if err := g.AddInterface(ni); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	ni.Host.Location = model.Coord{X: 900, Y: 900}
	if err := g.AddInterface(ni); err != nil {
		t.Fatalf("AddInterface again: %v", err)
	}
	if n := len(g.AllInterfaces()); n != 1 {
		t.Fatalf("AllInterfaces has %d entries, want 1", n)
	}
	checkPartition(t, g)
}

func TestGridRemoveAndUpdateUnknown(t *testing.T) {
	g := newTestGrid(t, 10)
	ni := mount("a", model.Coord{X: 10, Y: 10}, "wifi", 10, SimpleBroadcast{})

	g.RemoveInterface(ni)
	if err := g.UpdateLocation(ni); err != nil {
		t.Fatalf("UpdateLocation of unknown interface: %v", err)
	}
	if g.NearInterfaces(ni) != nil {
		t.Fatalf("unknown interface should have no neighbours")
	}

	if err := g.AddInterface(ni); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	g.RemoveInterface(ni)
	if g.Len() != 0 || g.CellOf(ni) != nil {
		t.Fatalf("interface still registered after RemoveInterface")
	}
	checkPartition(t, g)
}

func TestGridCellMoveAssertion(t *testing.T) {
	from := &GridCell{row: 1, col: 1}
	to := &GridCell{row: 1, col: 2}
	ni := mount("a", model.Coord{}, "wifi", 10, SimpleBroadcast{})
	if err := from.moveInterface(ni, to); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("moveInterface err = %v, want ErrInvariantViolation", err)
	}
	if len(to.Interfaces()) != 0 {
		t.Fatalf("failed move left %v in the target cell", to.Interfaces())
	}
}

func TestDisabledGridReturnsEverything(t *testing.T) {
	g, err := NewConnectivityGrid("wifi", gridWorld, 10, 1, true)
	if err != nil {
		t.Fatalf("NewConnectivityGrid: %v", err)
	}
	a := mount("a", model.Coord{X: 0, Y: 0}, "wifi", 10, SimpleBroadcast{})
	b := mount("b", model.Coord{X: 1000, Y: 1000}, "wifi", 10, SimpleBroadcast{})
	for _, ni := range []*NetworkInterface{a, b} {
		if err := g.AddInterface(ni); err != nil {
			t.Fatalf("AddInterface: %v", err)
		}
	}
	if !g.Disabled() {
		t.Fatalf("grid should be disabled")
	}
	if near := g.NearInterfaces(a); len(near) != 2 {
		t.Fatalf("disabled grid NearInterfaces = %v, want both", near)
	}
}

func TestDisabledGridKeepsIDOrder(t *testing.T) {
	g, err := NewConnectivityGrid("net", gridWorld, 0, DefaultCellSizeMult, false)
	if err != nil {
		t.Fatalf("NewConnectivityGrid: %v", err)
	}
	var added []*NetworkInterface
	for i := 0; i < 5; i++ {
		added = append(added, mount("n", model.Coord{X: float64(100 * i)}, "net", 0, Internet{}))
	}
	for _, i := range []int{3, 0, 4, 1, 2} {
		if err := g.AddInterface(added[i]); err != nil {
			t.Fatalf("AddInterface: %v", err)
		}
	}
	if err := g.AddInterface(added[1]); err != nil {
		t.Fatalf("AddInterface again: %v", err)
	}

	near := g.NearInterfaces(added[2])
	if len(near) != 5 {
		t.Fatalf("NearInterfaces = %v, want all 5", near)
	}
	for i, ni := range near {
		if ni != added[i] {
			t.Fatalf("NearInterfaces[%d] = %v, want %v", i, ni, added[i])
		}
	}
	if again := g.NearInterfaces(added[0]); &again[0] != &near[0] {
		t.Fatalf("NearInterfaces rebuilt the registry between calls")
	}

	all := g.AllInterfaces()
	all[0] = nil
	if g.NearInterfaces(added[0])[0] != added[0] {
		t.Fatalf("AllInterfaces shares storage with the grid")
	}

	g.RemoveInterface(added[2])
	near = g.NearInterfaces(added[0])
	want := []*NetworkInterface{added[0], added[1], added[3], added[4]}
	if len(near) != len(want) {
		t.Fatalf("after remove NearInterfaces = %v, want %v", near, want)
	}
	for i := range want {
		if near[i] != want[i] {
			t.Fatalf("after remove NearInterfaces[%d] = %v, want %v", i, near[i], want[i])
		}
	}
}

func TestGridUpdateLeavesStateOnFailedMove(t *testing.T) {
	g := newTestGrid(t, 10)
	ni := mount("a", model.Coord{X: 10, Y: 10}, "wifi", 10, SimpleBroadcast{})
	if err := g.AddInterface(ni); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	old := g.CellOf(ni)
	old.remove(ni)

	ni.Host.Location = model.Coord{X: 900, Y: 900}
	if err := g.UpdateLocation(ni); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("UpdateLocation err = %v, want ErrInvariantViolation", err)
	}
	if g.CellOf(ni) != old {
		t.Fatalf("failed move remapped the interface to %v", g.CellOf(ni))
	}
	target, err := g.cellFor(ni.Location())
	if err != nil {
		t.Fatalf("cellFor: %v", err)
	}
	if contains(target.Interfaces(), ni) {
		t.Fatalf("failed move left the interface in the target cell")
	}
}

func TestNonRangeBasedGridIsDisabled(t *testing.T) {
	g, err := NewConnectivityGrid("net", gridWorld, 0, DefaultCellSizeMult, false)
	if err != nil {
		t.Fatalf("NewConnectivityGrid: %v", err)
	}
	if !g.Disabled() || g.CellSize() != 0 {
		t.Fatalf("zero range grid should be disabled, got %v", g)
	}
}

// checkPartition asserts that every registered interface sits in exactly
// one cell, that cell matches its location, and no cell holds strangers.
func checkPartition(t *testing.T, g *ConnectivityGrid) {
	t.Helper()
	seen := make(map[*NetworkInterface]int)
	for r := range g.cells {
		for c := range g.cells[r] {
			for _, ni := range g.cells[r][c].interfaces {
				seen[ni]++
				if g.interfaces[ni] != g.cells[r][c] {
					t.Fatalf("%s found in cell (%d,%d) but mapped elsewhere", ni, r, c)
				}
			}
		}
	}
	if len(seen) != len(g.interfaces) {
		t.Fatalf("cells hold %d interfaces, registry holds %d", len(seen), len(g.interfaces))
	}
	for ni, n := range seen {
		if n != 1 {
			t.Fatalf("%s appears in %d cells", ni, n)
		}
		want, err := g.cellFor(ni.Location())
		if err != nil {
			t.Fatalf("cellFor(%s): %v", ni, err)
		}
		if g.interfaces[ni] != want {
			t.Fatalf("%s is in the wrong cell for %v", ni, ni.Location())
		}
	}
}

func TestGridInvariantsUnderRandomMoves(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	g := newTestGrid(t, 10)

	var all []*NetworkInterface
	for i := 0; i < 200; i++ {
		c := model.Coord{X: rng.Float64() * 1000, Y: rng.Float64() * 1000}
		ni := mount("n", c, "wifi", rng.Float64()*10, SimpleBroadcast{})
		if err := g.AddInterface(ni); err != nil {
			t.Fatalf("AddInterface: %v", err)
		}
		all = append(all, ni)
	}

	for step := 0; step < 50; step++ {
		for _, ni := range all {
			loc := ni.Location()
			nx := min(1000, max(0, loc.X+rng.NormFloat64()*30))
			ny := min(1000, max(0, loc.Y+rng.NormFloat64()*30))
			ni.Host.Location = model.Coord{X: nx, Y: ny}
			if err := g.UpdateLocation(ni); err != nil {
				t.Fatalf("UpdateLocation: %v", err)
			}
		}
		checkPartition(t, g)

		env := RangeEnv{World: gridWorld}
		for _, a := range all {
			near := g.NearInterfaces(a)
			for _, b := range all {
				d := a.Location().Distance(b.Location())
				if d <= float64(g.CellSize()) && !contains(near, b) {
					t.Fatalf("step %d: %s and %s are %.2f apart but not neighbours", step, a, b, d)
				}
				if a.IsWithinRange(env, b) && !contains(near, b) {
					t.Fatalf("step %d: %s in range of %s but missed by the grid", step, b, a)
				}
			}
		}
	}
}

func TestGridRegistry(t *testing.T) {
	if _, err := NewGridRegistry(GridConfig{World: gridWorld, CellSizeMult: 0}); !errors.Is(err, ErrConfig) {
		t.Fatalf("cellSizeMult 0 err = %v, want ErrConfig", err)
	}
	if _, err := NewGridRegistry(GridConfig{World: model.WorldSize{}, CellSizeMult: 1}); !errors.Is(err, ErrConfig) {
		t.Fatalf("empty world err = %v, want ErrConfig", err)
	}

	reg, err := NewGridRegistry(GridConfig{World: gridWorld, CellSizeMult: 5})
	if err != nil {
		t.Fatalf("NewGridRegistry: %v", err)
	}
	first, err := reg.GetOrCreate("wifi", 10)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	again, err := reg.GetOrCreate("wifi", 1000)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first != again || again.CellSize() != 50 {
		t.Fatalf("second GetOrCreate should return the same grid and ignore maxRange")
	}
	if _, err := reg.GetOrCreate("bt", 2); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got := reg.Technologies(); len(got) != 2 || got[0] != "bt" || got[1] != "wifi" {
		t.Fatalf("Technologies = %v", got)
	}
	if s := reg.Summaries(); len(s) != 2 || s[1].CellSize != 50 {
		t.Fatalf("Summaries = %+v", s)
	}

	if err := reg.Reset(GridConfig{World: gridWorld, CellSizeMult: 2}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok := reg.Get("wifi"); ok {
		t.Fatalf("Reset should drop grids")
	}
	g, _ := reg.GetOrCreate("wifi", 10)
	if g.CellSize() != 20 {
		t.Fatalf("cellSize after Reset = %d, want 20", g.CellSize())
	}
}
