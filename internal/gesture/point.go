// Package gesture synthesizes human-looking touch input: randomized press
// points and timings, curved or jittered drag paths, and speed profiles that
// ease into and out of a movement.
package gesture

import (
	"math"

	"github.com/holla2040/droidscript/internal/actuator"
)

// Point is a sub-pixel screen position used while building a path.
type Point struct {
	X, Y float64
}

// Pt converts a device coordinate.
func Pt(p actuator.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }

func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }

func (p Point) Mul(s float64) Point { return Point{X: p.X * s, Y: p.Y * s} }

// Mag is the vector length of p.
func (p Point) Mag() float64 { return math.Hypot(p.X, p.Y) }

// Dist is the Euclidean distance between p and o.
func (p Point) Dist(o Point) float64 { return math.Hypot(p.X-o.X, p.Y-o.Y) }

// Normalize returns the unit vector of p, or zero for a degenerate vector.
func (p Point) Normalize() Point {
	m := p.Mag()
	if m < 1e-9 {
		return Point{}
	}
	return p.Mul(1 / m)
}

// Perp rotates p by 90 degrees.
func (p Point) Perp() Point { return Point{X: -p.Y, Y: p.X} }

// Lerp interpolates between p and o.
func (p Point) Lerp(o Point, t float64) Point {
	return Point{X: p.X + (o.X-p.X)*t, Y: p.Y + (o.Y-p.Y)*t}
}

// Device rounds p to a pixel.
func (p Point) Device() actuator.Point {
	return actuator.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// DevicePath rounds every point of a path.
func DevicePath(points []Point) []actuator.Point {
	out := make([]actuator.Point, len(points))
	for i, p := range points {
		out[i] = p.Device()
	}
	return out
}

// Range is an inclusive interval sampled uniformly. Durations and delays are
// in seconds, offsets and jitter in pixels.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// R is shorthand for Range{lo, hi}.
func R(lo, hi float64) Range { return Range{Min: lo, Max: hi} }
