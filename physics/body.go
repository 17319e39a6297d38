package physics

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Body is a rigid body with a single collision volume centred on its origin
type Body struct {
	Name  string
	Shape Shape
	Mass  float64

	Position        r3.Vec
	Orientation     quat.Number
	LinearVelocity  r3.Vec
	AngularVelocity r3.Vec // world frame

	invMass    float64
	invInertia r3.Vec // body frame, principal axes

	force  r3.Vec
	torque r3.Vec
}

// NewBody validates the shape and mass and returns a body at rest at the origin
func NewBody(name string, shape Shape, mass float64) (*Body, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if !(mass > 0) {
		return nil, ErrNonPositiveMass
	}
	inertia := shape.Inertia(mass)
	return &Body{
		Name:        name,
		Shape:       shape,
		Mass:        mass,
		Orientation: Identity,
		invMass:     1 / mass,
		invInertia:  r3.Vec{X: 1 / inertia.X, Y: 1 / inertia.Y, Z: 1 / inertia.Z},
	}, nil
}

func (b *Body) InverseMass() float64 {
	return b.invMass
}

func (b *Body) AddForce(f r3.Vec) {
	b.force = r3.Add(b.force, f)
}

func (b *Body) AddTorque(t r3.Vec) {
	b.torque = r3.Add(b.torque, t)
}

// Torque returns the torque accumulated since the last step
func (b *Body) Torque() r3.Vec {
	return b.torque
}

// SetPose teleports the body
func (b *Body) SetPose(position r3.Vec, orientation quat.Number) {
	b.Position = position
	b.Orientation = Normalize(orientation)
}

// ZeroVelocity clears velocities and pending forces
func (b *Body) ZeroVelocity() {
	b.LinearVelocity = r3.Vec{}
	b.AngularVelocity = r3.Vec{}
	b.force = r3.Vec{}
	b.torque = r3.Vec{}
}

func (b *Body) ToWorld(local r3.Vec) r3.Vec {
	return r3.Add(b.Position, Rotate(b.Orientation, local))
}

func (b *Body) ToLocal(world r3.Vec) r3.Vec {
	return InverseRotate(b.Orientation, r3.Sub(world, b.Position))
}

func (b *Body) DirectionToWorld(local r3.Vec) r3.Vec {
	return Rotate(b.Orientation, local)
}

func (b *Body) DirectionToLocal(world r3.Vec) r3.Vec {
	return InverseRotate(b.Orientation, world)
}

// Up is the body's local +Y axis in world space
func (b *Body) Up() r3.Vec {
	return b.DirectionToWorld(Up)
}

// Forward is the body's local +Z axis in world space
func (b *Body) Forward() r3.Vec {
	return b.DirectionToWorld(Forward)
}

// VelocityAt is the world velocity of the material point at world position p
func (b *Body) VelocityAt(p r3.Vec) r3.Vec {
	return r3.Add(b.LinearVelocity, r3.Cross(b.AngularVelocity, r3.Sub(p, b.Position)))
}

// velocityAtArm is the velocity of the material point at arm r from the centre
func (b *Body) velocityAtArm(r r3.Vec) r3.Vec {
	return r3.Add(b.LinearVelocity, r3.Cross(b.AngularVelocity, r))
}

// applyInvInertia multiplies a world vector by the world inverse inertia tensor
func (b *Body) applyInvInertia(v r3.Vec) r3.Vec {
	return Rotate(b.Orientation, mulElem(b.invInertia, InverseRotate(b.Orientation, v)))
}

// applyImpulse applies p at arm r (world, relative to the centre)
func (b *Body) applyImpulse(p, r r3.Vec) {
	b.LinearVelocity = r3.Add(b.LinearVelocity, r3.Scale(b.invMass, p))
	b.AngularVelocity = r3.Add(b.AngularVelocity, b.applyInvInertia(r3.Cross(r, p)))
}

func (b *Body) applyAngularImpulse(l r3.Vec) {
	b.AngularVelocity = r3.Add(b.AngularVelocity, b.applyInvInertia(l))
}

func (b *Body) clearAccumulators() {
	b.force = r3.Vec{}
	b.torque = r3.Vec{}
}
