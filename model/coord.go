package model

import (
	"fmt"
	"math"
)

// Coord is a 2D point in world units. The world is the rectangle
// [0, W] x [0, H]; negative coordinates are never valid.
type Coord struct {
	X float64
	Y float64
}

// WorldSize holds the dimensions of the simulated world.
type WorldSize struct {
	W int
	H int
}

// Valid reports whether the world has positive dimensions.
func (w WorldSize) Valid() bool {
	return w.W > 0 && w.H > 0
}

// Contains reports whether c lies inside the world rectangle.
func (w WorldSize) Contains(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X <= float64(w.W) && c.Y <= float64(w.H)
}

// Translate returns c moved by (dx, dy).
func (c Coord) Translate(dx, dy float64) Coord {
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// Distance returns the Euclidean distance between two coordinates.
func (c Coord) Distance(other Coord) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

// Equal reports whether both coordinates are exactly the same point.
func (c Coord) Equal(other Coord) bool {
	return c.X == other.X && c.Y == other.Y
}

func (c Coord) String() string {
	return fmt.Sprintf("(%.2f,%.2f)", c.X, c.Y)
}
