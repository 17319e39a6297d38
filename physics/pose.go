package physics

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a rigid transform
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

func NewPose(position r3.Vec, orientation quat.Number) Pose {
	return Pose{Position: position, Orientation: Normalize(orientation)}
}

// Compose returns p followed by local, i.e. local expressed in p's parent frame
func (p Pose) Compose(local Pose) Pose {
	return Pose{
		Position:    r3.Add(p.Position, Rotate(p.Orientation, local.Position)),
		Orientation: Normalize(quat.Mul(p.Orientation, local.Orientation)),
	}
}

func (p Pose) Inverse() Pose {
	inv := quat.Conj(p.Orientation)
	return Pose{
		Position:    Rotate(inv, r3.Scale(-1, p.Position)),
		Orientation: inv,
	}
}

// Apply transforms the point v
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Add(p.Position, Rotate(p.Orientation, v))
}

// PoseOf returns the current pose of b
func PoseOf(b *Body) Pose {
	return Pose{Position: b.Position, Orientation: b.Orientation}
}
