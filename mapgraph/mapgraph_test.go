package mapgraph

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

var world = model.WorldSize{W: 1000, H: 1000}

func c(x, y float64) model.Coord { return model.Coord{X: x, Y: y} }

func locations(nodes []*MapNode) []model.Coord {
	out := make([]model.Coord, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Location)
	}
	return out
}

func loadRoads(t *testing.T, files ...string) *SimMap {
	t.Helper()
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, filepath.Join("testdata", f))
	}
	m, err := NewLoader(nil).GetSimMap(context.Background(), paths, world)
	require.NoError(t, err)
	return m
}

func TestReadWKT(t *testing.T) {
	m := loadRoads(t, "roads.wkt")
	require.Equal(t, 6, m.Len())

	n := m.NodeAt(c(100, 0))
	require.NotNil(t, n)
	assert.ElementsMatch(t, []model.Coord{c(0, 0), c(200, 0), c(100, 100)}, locations(n.Neighbors()))

	lo, hi := m.Bounds()
	assert.Equal(t, c(0, 0), lo)
	assert.Equal(t, c(200, 100), hi)
	assert.Equal(t, c(100, 100), m.Nearest(c(110, 90)).Location)
}

func TestReadWKTLayers(t *testing.T) {
	m := loadRoads(t, "roads.wkt", "tram.wkt")
	require.Equal(t, 8, m.Len())

	roads, err := MaskFromTypes([]int{1}, 2)
	require.NoError(t, err)
	tram, err := MaskFromTypes([]int{2}, 2)
	require.NoError(t, err)

	shared := m.NodeAt(c(200, 100))
	assert.True(t, shared.IsType(roads))
	assert.True(t, shared.IsType(tram))
	assert.False(t, m.NodeAt(c(300, 200)).IsType(roads))
	assert.True(t, m.NodeAt(c(300, 200)).IsType(AllTypes))
}

func TestReadWKTErrors(t *testing.T) {
	cases := map[string]string{
		"unbalanced":   "LINESTRING (0 0, 1 1))",
		"unterminated": "LINESTRING (0 0,\n 1 1",
		"garbage":      "LINESTRING (a b, c d)",
		"polygon":      "POLYGON ((0 0, 1 0, 1 1, 0 0))",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			err := ReadWKT(strings.NewReader(in), 1, NewSimMap())
			require.ErrorIs(t, err, core.ErrConfig)
		})
	}
}

func TestMaskFromTypes(t *testing.T) {
	m, err := MaskFromTypes([]int{1, 3}, 3)
	require.NoError(t, err)
	assert.Equal(t, TypeMask(0b101), m)

	_, err = MaskFromTypes([]int{0}, 3)
	assert.ErrorIs(t, err, core.ErrConfig)
	_, err = MaskFromTypes([]int{32}, 31)
	assert.ErrorIs(t, err, core.ErrConfig)
	_, err = MaskFromTypes([]int{2}, 1)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestLoaderCache(t *testing.T) {
	l := NewLoader(nil)
	ctx := context.Background()
	roads := []string{filepath.Join("testdata", "roads.wkt")}
	both := append(append([]string{}, roads...), filepath.Join("testdata", "tram.wkt"))

	first, err := l.GetSimMap(ctx, roads, world)
	require.NoError(t, err)
	again, err := l.GetSimMap(ctx, roads, world)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, l.NrofMapFilesRead())

	other, err := l.GetSimMap(ctx, both, world)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, l.NrofMapFilesRead())

	back, err := l.GetSimMap(ctx, roads, world)
	require.NoError(t, err)
	assert.NotSame(t, first, back, "a miss must have invalidated the first map")

	l.Reset()
	assert.Equal(t, 0, l.NrofMapFilesRead())
}

func TestLoaderRejectsBadMaps(t *testing.T) {
	ctx := context.Background()

	_, err := NewLoader(nil).GetSimMap(ctx, []string{filepath.Join("testdata", "missing.wkt")}, world)
	assert.ErrorIs(t, err, core.ErrIO)

	_, err = NewLoader(nil).GetSimMap(ctx, []string{filepath.Join("testdata", "island.wkt")}, world)
	require.ErrorIs(t, err, core.ErrConfig)
	assert.Contains(t, err.Error(), "only 2 out of 4")

	_, err = NewLoader(nil).GetSimMap(ctx, []string{filepath.Join("testdata", "roads.wkt")}, model.WorldSize{W: 150, H: 150})
	require.ErrorIs(t, err, core.ErrConfig)
	assert.Contains(t, err.Error(), "out of world bounds")

	empty := filepath.Join(t.TempDir(), "empty.wkt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o644))
	_, err = NewLoader(nil).GetSimMap(ctx, []string{empty}, world)
	require.ErrorIs(t, err, core.ErrConfig)
	assert.Contains(t, err.Error(), "no map nodes")
}

func TestCheckConnectedMatchesBFS(t *testing.T) {
	m := NewSimMap()
	m.AddEdge(c(0, 0), c(1, 0), 1)
	m.AddEdge(c(1, 0), c(2, 0), 1)
	require.NoError(t, CheckConnected(m))

	m.AddNode(c(5, 5), 1)
	require.ErrorIs(t, CheckConnected(m), core.ErrConfig)

	m.AddEdge(c(2, 0), c(5, 5), 1)
	require.NoError(t, CheckConnected(m))
}

func lineMap(t *testing.T) *SimMap {
	t.Helper()
	// five nodes in a line; the middle one only belongs to layer 2
	m := NewSimMap()
	for i := 0; i < 4; i++ {
		m.AddEdge(c(float64(i*10), 0), c(float64((i+1)*10), 0), 1)
	}
	mid := m.NodeAt(c(20, 0))
	mid.Type = 0
	mid.AddType(2)
	return m
}

func TestShortestPathMaskBlocksRoute(t *testing.T) {
	m := lineMap(t)
	from, to := m.NodeAt(c(0, 0)), m.NodeAt(c(40, 0))

	all := NewPathFinder(m, AllTypes)
	nodes, err := all.ShortestPath(from, to)
	require.NoError(t, err)
	assert.Len(t, nodes, 5)
	assert.InDelta(t, 40, PathLength(nodes), 1e-9)

	layer1, err := MaskFromTypes([]int{1}, 2)
	require.NoError(t, err)
	_, err = NewPathFinder(m, layer1).ShortestPath(from, to)
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestShortestPathSameNode(t *testing.T) {
	m := lineMap(t)
	n := m.NodeAt(c(10, 0))
	nodes, err := NewPathFinder(m, AllTypes).ShortestPath(n, n)
	require.NoError(t, err)
	assert.Equal(t, []*MapNode{n}, nodes)
}

func TestShortestPathPrefersShorterRoad(t *testing.T) {
	m := loadRoads(t, "roads.wkt")
	pf := NewPathFinder(m, AllTypes)
	nodes, err := pf.ShortestPath(m.NodeAt(c(0, 100)), m.NodeAt(c(200, 0)))
	require.NoError(t, err)
	assert.InDelta(t, 300, PathLength(nodes), 1e-9)
}

// floydWarshall returns all-pairs shortest distances under the same edge
// rule as PathFinder.
func floydWarshall(m *SimMap, mask TypeMask) [][]float64 {
	n := m.Len()
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			if i != j {
				d[i][j] = math.Inf(1)
			}
		}
	}
	for _, u := range m.Nodes() {
		for _, v := range u.Neighbors() {
			if v.IsType(mask) {
				d[u.ID][v.ID] = u.Location.Distance(v.Location)
			}
		}
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if d[i][k]+d[k][j] < d[i][j] {
					d[i][j] = d[i][k] + d[k][j]
				}
			}
		}
	}
	return d
}

func TestShortestPathIsMinimal(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	m := NewSimMap()
	var pts []model.Coord
	for i := 0; i < 25; i++ {
		p := c(math.Round(rng.Float64()*900), math.Round(rng.Float64()*900))
		if m.NodeAt(p) != nil {
			continue
		}
		pts = append(pts, p)
		m.AddNode(p, 1+rng.IntN(2))
	}
	for i := 1; i < len(pts); i++ {
		m.AddEdge(pts[i-1], pts[i], 1)
	}
	for i := 0; i < 30; i++ {
		a, b := pts[rng.IntN(len(pts))], pts[rng.IntN(len(pts))]
		m.AddEdge(a, b, 1+rng.IntN(2))
	}

	for _, mask := range []TypeMask{AllTypes, 0b01, 0b10} {
		pf := NewPathFinder(m, mask)
		want := floydWarshall(m, mask)
		for _, from := range m.Nodes() {
			for _, to := range m.Nodes() {
				nodes, err := pf.ShortestPath(from, to)
				if math.IsInf(want[from.ID][to.ID], 1) {
					require.ErrorIs(t, err, ErrNoPath, "%s -> %s", from, to)
					continue
				}
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, from, nodes[0])
				require.Equal(t, to, nodes[len(nodes)-1])
				for i := 1; i < len(nodes); i++ {
					require.Contains(t, nodes[i-1].Neighbors(), nodes[i], "path uses a non-edge")
					require.True(t, nodes[i].IsType(mask), "path crosses a filtered node")
				}
				require.InDelta(t, want[from.ID][to.ID], PathLength(nodes), 1e-6)
			}
		}
	}
}

func stopSequence(r *MapRoute, n int) []model.Coord {
	var out []model.Coord
	for i := 0; i < n; i++ {
		out = append(out, r.NextStop().Location)
	}
	return out
}

func TestMapRouteTraversal(t *testing.T) {
	m := loadRoads(t, "roads.wkt")
	stops := []*MapNode{m.NodeAt(c(0, 0)), m.NodeAt(c(100, 0)), m.NodeAt(c(200, 0))}
	a, b, d := c(0, 0), c(100, 0), c(200, 0)

	circ, err := NewMapRoute(RouteCircular, stops)
	require.NoError(t, err)
	if diff := cmp.Diff([]model.Coord{a, b, d, a, b}, stopSequence(circ, 5)); diff != "" {
		t.Fatalf("circular (-want +got):\n%s", diff)
	}

	pp, err := NewMapRoute(RoutePingPong, stops)
	require.NoError(t, err)
	if diff := cmp.Diff([]model.Coord{a, b, d, b, a, b, d}, stopSequence(pp, 7)); diff != "" {
		t.Fatalf("pingpong (-want +got):\n%s", diff)
	}

	once, err := NewMapRoute(RouteOnce, stops)
	require.NoError(t, err)
	if diff := cmp.Diff([]model.Coord{a, b, d, d, d}, stopSequence(once, 5)); diff != "" {
		t.Fatalf("once (-want +got):\n%s", diff)
	}

	_, err = NewMapRoute(RouteType(9), stops)
	assert.ErrorIs(t, err, core.ErrConfig)
	_, err = NewMapRoute(RouteCircular, nil)
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestMapRouteReplicateHasOwnCursor(t *testing.T) {
	m := loadRoads(t, "roads.wkt")
	r, err := NewMapRoute(RouteCircular, m.Nodes()[:3])
	require.NoError(t, err)
	r.SetNextIndex(2)

	cp := r.Replicate()
	r.NextStop()
	assert.Equal(t, m.Nodes()[2], cp.NextStop(), "replica cursor must not move with the original")
	assert.Equal(t, m.Nodes()[0], r.NextStop())
}

func TestReadRoutes(t *testing.T) {
	m := loadRoads(t, "roads.wkt")
	routes, err := ReadRouteFile(filepath.Join("testdata", "routes.wkt"), RoutePingPong, m)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, 4, routes[0].NrofStops())
	assert.Equal(t, RoutePingPong, routes[1].Type())
	assert.Equal(t, []model.Coord{c(0, 100), c(100, 100), c(200, 100)}, locations(routes[1].Stops()))

	_, err = ReadRoutes(strings.NewReader("LINESTRING (0 0, 55 55)"), RouteCircular, m)
	require.ErrorIs(t, err, core.ErrConfig)
	assert.Contains(t, err.Error(), "not a map node")

	_, err = ReadRouteFile(filepath.Join("testdata", "nope.wkt"), RouteCircular, m)
	assert.ErrorIs(t, err, core.ErrIO)
}
