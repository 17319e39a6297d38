package navigation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Obstacle is a vertical cylinder, described by its footprint on the ground
type Obstacle struct {
	X      float64 `mapstructure:"x" yaml:"x"`
	Z      float64 `mapstructure:"z" yaml:"z"`
	Radius float64 `mapstructure:"radius" yaml:"radius"`
}

func (o Obstacle) center() r2.Vec {
	return r2.Vec{X: o.X, Y: o.Z}
}

// Arena is a square walled floor centred on the origin
type Arena struct {
	HalfSize  float64    `mapstructure:"half_size" yaml:"half_size"`
	Obstacles []Obstacle `mapstructure:"obstacles" yaml:"obstacles"`
}

// planar drops the height of a world vector
func planar(v r3.Vec) r2.Vec {
	return r2.Vec{X: v.X, Y: v.Z}
}

// turn rotates a ground plane direction the way a rotation of angle a about
// world up does
func turn(v r2.Vec, a float64) r2.Vec {
	s, c := math.Sincos(a)
	return r2.Vec{X: v.X*c + v.Y*s, Y: -v.X*s + v.Y*c}
}

// Cast returns the distance along dir from origin to the first wall or
// obstacle, or +Inf when nothing is hit within maxRange. dir must be a unit
// vector.
func (a Arena) Cast(origin, dir r2.Vec, maxRange float64) float64 {
	best := math.Inf(1)
	for _, o := range a.Obstacles {
		if t, ok := rayCircle(origin, dir, o.center(), o.Radius); ok && t < best {
			best = t
		}
	}
	if a.HalfSize > 0 {
		for _, t := range []float64{
			wall(origin.X, dir.X, a.HalfSize),
			wall(origin.Y, dir.Y, a.HalfSize),
		} {
			if t < best {
				best = t
			}
		}
	}
	if best > maxRange {
		return math.Inf(1)
	}
	return best
}

// wall is the distance along one axis to the wall in the direction of travel
func wall(o, d, h float64) float64 {
	switch {
	case d > 0:
		return math.Max(0, (h-o)/d)
	case d < 0:
		return math.Max(0, (-h-o)/d)
	}
	return math.Inf(1)
}

func rayCircle(origin, dir, center r2.Vec, radius float64) (float64, bool) {
	m := r2.Sub(origin, center)
	b := r2.Dot(m, dir)
	c := r2.Dot(m, m) - radius*radius
	if c <= 0 {
		// origin inside the circle
		return 0, true
	}
	if b > 0 {
		return 0, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	return -b - math.Sqrt(disc), true
}

// Collides reports whether a disc of the given radius at p overlaps an
// obstacle or leaves the arena
func (a Arena) Collides(p r2.Vec, radius float64) bool {
	if a.HalfSize > 0 && (math.Abs(p.X)+radius > a.HalfSize || math.Abs(p.Y)+radius > a.HalfSize) {
		return true
	}
	for _, o := range a.Obstacles {
		if r2.Norm(r2.Sub(p, o.center())) < o.Radius+radius {
			return true
		}
	}
	return false
}
