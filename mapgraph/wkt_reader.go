package mapgraph

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// readGeometries splits r into WKT statements and decodes each of them. A
// statement may span several lines; it ends when its parentheses balance.
func readGeometries(r io.Reader, fn func(line int, g orb.Geometry) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		buf   strings.Builder
		depth int
		start int
		line  int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if buf.Len() == 0 {
			start = line
		} else {
			buf.WriteByte(' ')
		}
		buf.WriteString(text)
		depth += strings.Count(text, "(") - strings.Count(text, ")")
		if depth < 0 {
			return fmt.Errorf("%w: line %d: unbalanced ')'", core.ErrConfig, line)
		}
		if depth > 0 {
			continue
		}

		stmt := strings.ToUpper(buf.String())
		buf.Reset()
		g, err := wkt.Unmarshal(stmt)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", core.ErrConfig, start, err)
		}
		if err := fn(start, g); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	if buf.Len() > 0 {
		return fmt.Errorf("%w: line %d: unterminated WKT statement", core.ErrConfig, start)
	}
	return nil
}

func toCoord(p orb.Point) model.Coord {
	return model.Coord{X: p[0], Y: p[1]}
}

// ReadWKT adds the road segments of r to m as layer t. LINESTRING and
// MULTILINESTRING geometries become chains of edges between consecutive
// points; POINT and MULTIPOINT add isolated nodes.
func ReadWKT(r io.Reader, t int, m *SimMap) error {
	return readGeometries(r, func(line int, g orb.Geometry) error {
		return addGeometry(m, g, t, line)
	})
}

func addGeometry(m *SimMap, g orb.Geometry, t, line int) error {
	switch geom := g.(type) {
	case orb.LineString:
		addLineString(m, geom, t)
	case orb.MultiLineString:
		for _, ls := range geom {
			addLineString(m, ls, t)
		}
	case orb.Point:
		m.AddNode(toCoord(geom), t)
	case orb.MultiPoint:
		for _, p := range geom {
			m.AddNode(toCoord(p), t)
		}
	case orb.Collection:
		for _, sub := range geom {
			if err := addGeometry(m, sub, t, line); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: line %d: unsupported geometry %s", core.ErrConfig, line, g.GeoJSONType())
	}
	return nil
}

func addLineString(m *SimMap, ls orb.LineString, t int) {
	if len(ls) == 1 {
		m.AddNode(toCoord(ls[0]), t)
		return
	}
	for i := 1; i < len(ls); i++ {
		m.AddEdge(toCoord(ls[i-1]), toCoord(ls[i]), t)
	}
}
