package physics

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// World axes. Y is up, Z is forward.
var (
	Up      = r3.Vec{Y: 1}
	Forward = r3.Vec{Z: 1}
	Right   = r3.Vec{X: 1}
)

// Identity is the orientation with no rotation
var Identity = quat.Number{Real: 1}

// Rotate returns v rotated by the unit quaternion q
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// InverseRotate applies the inverse of q to v
func InverseRotate(q quat.Number, v r3.Vec) r3.Vec {
	return Rotate(quat.Conj(q), v)
}

// AxisAngle builds the rotation of angle radians about axis
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	n := r3.Norm(axis)
	if n == 0 {
		return Identity
	}
	s := math.Sin(angle/2) / n
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// FromEulerDegrees composes yaw (Y), pitch (X) and roll (Z) in that order
func FromEulerDegrees(x, y, z float64) quat.Number {
	qy := AxisAngle(Up, y*math.Pi/180)
	qx := AxisAngle(Right, x*math.Pi/180)
	qz := AxisAngle(Forward, z*math.Pi/180)
	return Normalize(quat.Mul(quat.Mul(qy, qx), qz))
}

// Normalize scales q to unit length, returning Identity for the zero quaternion
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Unit returns v scaled to unit length; the zero vector is returned unchanged
func Unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return v
	}
	return r3.Scale(1/n, v)
}

// TwistAngle is the signed angle of q about the unit axis, from the
// swing-twist decomposition. The result lies in (-pi, pi].
func TwistAngle(q quat.Number, axis r3.Vec) float64 {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	proj := q.Imag*axis.X + q.Jmag*axis.Y + q.Kmag*axis.Z
	return WrapAngle(2 * math.Atan2(proj, q.Real))
}

// WrapAngle maps a onto (-pi, pi] without branching on revolutions
func WrapAngle(a float64) float64 {
	w := math.Atan2(math.Sin(a), math.Cos(a))
	if w == -math.Pi {
		return math.Pi
	}
	return w
}

// Orthonormal completes axis into a right handed basis (axis, u, v)
func Orthonormal(axis r3.Vec) (r3.Vec, r3.Vec, r3.Vec) {
	a := Unit(axis)
	ref := Up
	if math.Abs(r3.Dot(a, ref)) > 0.9 {
		ref = Right
	}
	u := Unit(r3.Cross(ref, a))
	v := r3.Cross(a, u)
	return a, u, v
}

// IsFinite reports whether every component of v is a finite number
func IsFinite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func mulElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}
