package physics

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrDegenerateShape  = errors.New("degenerate collision volume")
	ErrNonPositiveMass  = errors.New("mass must be positive")
	ErrUnknownShapeKind = errors.New("unknown shape kind")
)

// ShapeKind selects the collision volume of a body
type ShapeKind int

const (
	BoxShape ShapeKind = iota + 1
	SphereShape
)

func (k ShapeKind) String() string {
	switch k {
	case BoxShape:
		return "box"
	case SphereShape:
		return "sphere"
	}
	return "unknown"
}

// ParseShapeKind accepts "box" or "sphere", case insensitive
func ParseShapeKind(s string) (ShapeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "box":
		return BoxShape, nil
	case "sphere":
		return SphereShape, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownShapeKind, s)
}

// Shape is an axis aligned box (half extents) or a sphere (radius) in body space
type Shape struct {
	Kind        ShapeKind
	HalfExtents r3.Vec
	Radius      float64
}

func NewBox(halfExtents r3.Vec) Shape {
	return Shape{Kind: BoxShape, HalfExtents: halfExtents}
}

func NewSphere(radius float64) Shape {
	return Shape{Kind: SphereShape, Radius: radius}
}

// Validate rejects non-positive or non-finite dimensions
func (s Shape) Validate() error {
	switch s.Kind {
	case BoxShape:
		h := s.HalfExtents
		if !IsFinite(h) || h.X <= 0 || h.Y <= 0 || h.Z <= 0 {
			return fmt.Errorf("%w: box half extents %v", ErrDegenerateShape, h)
		}
	case SphereShape:
		if math.IsNaN(s.Radius) || math.IsInf(s.Radius, 0) || s.Radius <= 0 {
			return fmt.Errorf("%w: sphere radius %v", ErrDegenerateShape, s.Radius)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownShapeKind, s.Kind)
	}
	return nil
}

// Inertia returns the principal moments of inertia for a solid volume of the given mass
func (s Shape) Inertia(mass float64) r3.Vec {
	switch s.Kind {
	case BoxShape:
		h := s.HalfExtents
		return r3.Vec{
			X: mass / 3 * (h.Y*h.Y + h.Z*h.Z),
			Y: mass / 3 * (h.X*h.X + h.Z*h.Z),
			Z: mass / 3 * (h.X*h.X + h.Y*h.Y),
		}
	case SphereShape:
		i := 0.4 * mass * s.Radius * s.Radius
		return r3.Vec{X: i, Y: i, Z: i}
	}
	return r3.Vec{}
}

// corners of the box in body space
func (s Shape) corners() []r3.Vec {
	h := s.HalfExtents
	out := make([]r3.Vec, 0, 8)
	for _, x := range []float64{-h.X, h.X} {
		for _, y := range []float64{-h.Y, h.Y} {
			for _, z := range []float64{-h.Z, h.Z} {
				out = append(out, r3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}
