package model

// Waypoint is a single stop on a Path together with the speed used to
// reach it from the previous waypoint.
type Waypoint struct {
	Location Coord
	Speed    float64
}

// Path is an ordered list of waypoints produced by a movement model.
// The speed of the leading waypoint is the path's BaseSpeed; later
// waypoints may override it.
type Path struct {
	BaseSpeed float64
	Waypoints []Waypoint
}

// NewPath returns an empty path with the given base speed.
func NewPath(baseSpeed float64) *Path {
	return &Path{BaseSpeed: baseSpeed}
}

// AddWaypoint appends c using the path's base speed.
func (p *Path) AddWaypoint(c Coord) {
	p.Waypoints = append(p.Waypoints, Waypoint{Location: c, Speed: p.BaseSpeed})
}

// AddWaypointWithSpeed appends c reached with speed.
func (p *Path) AddWaypointWithSpeed(c Coord, speed float64) {
	p.Waypoints = append(p.Waypoints, Waypoint{Location: c, Speed: speed})
}

// Len returns the number of waypoints.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Waypoints)
}

// SpeedAt returns the speed used to travel towards waypoint i.
func (p *Path) SpeedAt(i int) float64 {
	if p == nil || i < 0 || i >= len(p.Waypoints) {
		return 0
	}
	return p.Waypoints[i].Speed
}

// Coords returns the waypoint locations in order.
func (p *Path) Coords() []Coord {
	if p == nil {
		return nil
	}
	out := make([]Coord, 0, len(p.Waypoints))
	for _, wp := range p.Waypoints {
		out = append(out, wp.Location)
	}
	return out
}

// ContactInterval is a closed time interval [Start, End] in simulation
// seconds during which a scripted contact exists.
type ContactInterval struct {
	Start float64
	End   float64
}

// Contains reports whether t falls inside the interval (inclusive).
func (ci ContactInterval) Contains(t float64) bool {
	return ci.Start <= t && t <= ci.End
}
