package physics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/spatial/r3"
)

// JointKind is the articulation type of a joint
type JointKind int

const (
	// Hinge limits one angular axis and locks the other two
	Hinge JointKind = iota + 1
	// Spherical limits up to three angular axes independently
	Spherical
)

func (k JointKind) String() string {
	switch k {
	case Hinge:
		return "hinge"
	case Spherical:
		return "spherical"
	}
	return "unknown"
}

// AxisMode is how the solver treats one angular axis of a joint
type AxisMode int

const (
	AxisFree AxisMode = iota
	AxisLimited
	AxisLocked
)

// AngularAxis is a unit axis in the parent's body frame with its limit in radians
type AngularAxis struct {
	Axis  r3.Vec
	Mode  AxisMode
	Limit r1.Interval
}

// Joint pins a point of the child to a point of the parent (all translational
// degrees of freedom locked) and constrains the relative rotation per axis.
// Axes[0] is the primary axis.
type Joint struct {
	Name   string
	Kind   JointKind
	Parent *Body
	Child  *Body

	LocalAnchorParent r3.Vec
	LocalAnchorChild  r3.Vec
	Axes              [3]AngularAxis

	restRel quat.Number

	// per step solver state
	rA, rB   r3.Vec
	bias     r3.Vec
	invK     *mat.Dense
	rows     []angularRow
	pointOff bool
}

type angularRow struct {
	axis    r3.Vec
	effMass float64
	bias    float64
	lower   float64
	upper   float64
	accum   float64
}

// NewJoint captures the current relative orientation of the two bodies as the
// joint's zero angle. Anchors are given in each body's local frame.
func NewJoint(name string, kind JointKind, parent, child *Body, anchorParent, anchorChild r3.Vec, axes [3]AngularAxis) *Joint {
	for i := range axes {
		axes[i].Axis = Unit(axes[i].Axis)
	}
	return &Joint{
		Name:              name,
		Kind:              kind,
		Parent:            parent,
		Child:             child,
		LocalAnchorParent: anchorParent,
		LocalAnchorChild:  anchorChild,
		Axes:              axes,
		restRel:           quat.Mul(quat.Conj(parent.Orientation), child.Orientation),
	}
}

// deviation is the rotation, in the parent's frame, from the rest pose to the current pose
func (j *Joint) deviation() quat.Number {
	rel := quat.Mul(quat.Conj(j.Parent.Orientation), j.Child.Orientation)
	return Normalize(quat.Mul(rel, quat.Conj(j.restRel)))
}

// Angle is the signed angle about axis i relative to the rest pose, in [-pi, pi]
func (j *Joint) Angle(i int) float64 {
	return TwistAngle(j.deviation(), j.Axes[i].Axis)
}

// AxisWorld is axis i expressed in world space
func (j *Joint) AxisWorld(i int) r3.Vec {
	return Rotate(j.Parent.Orientation, j.Axes[i].Axis)
}

// PrimaryAxisWorld is the actuated axis in world space
func (j *Joint) PrimaryAxisWorld() r3.Vec {
	return j.AxisWorld(0)
}

// Anchors returns the world position of the anchor on each side
func (j *Joint) Anchors() (parent, child r3.Vec) {
	return j.Parent.ToWorld(j.LocalAnchorParent), j.Child.ToWorld(j.LocalAnchorChild)
}

// Separation is the distance between the two anchors
func (j *Joint) Separation() float64 {
	p, c := j.Anchors()
	return r3.Norm(r3.Sub(c, p))
}

func (j *Joint) prepare(dt, beta float64) {
	p, c := j.Parent, j.Child

	j.rA = Rotate(p.Orientation, j.LocalAnchorParent)
	j.rB = Rotate(c.Orientation, j.LocalAnchorChild)
	errVec := r3.Sub(r3.Add(c.Position, j.rB), r3.Add(p.Position, j.rA))
	j.bias = r3.Scale(beta/dt, errVec)

	k := mat.NewDense(3, 3, nil)
	invM := p.invMass + c.invMass
	for col, e := range []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}} {
		kc := r3.Scale(invM, e)
		kc = r3.Add(kc, r3.Cross(p.applyInvInertia(r3.Cross(j.rA, e)), j.rA))
		kc = r3.Add(kc, r3.Cross(c.applyInvInertia(r3.Cross(j.rB, e)), j.rB))
		k.Set(0, col, kc.X)
		k.Set(1, col, kc.Y)
		k.Set(2, col, kc.Z)
	}
	if j.invK == nil {
		j.invK = mat.NewDense(3, 3, nil)
	}
	j.pointOff = j.invK.Inverse(k) != nil

	j.rows = j.rows[:0]
	d := j.deviation()
	for _, ax := range j.Axes {
		if ax.Mode == AxisFree {
			continue
		}
		w := Rotate(p.Orientation, ax.Axis)
		denom := r3.Dot(w, p.applyInvInertia(w)) + r3.Dot(w, c.applyInvInertia(w))
		if denom <= 0 {
			continue
		}
		angle := TwistAngle(d, ax.Axis)
		row := angularRow{axis: w, effMass: 1 / denom, lower: math.Inf(-1), upper: math.Inf(1)}
		switch ax.Mode {
		case AxisLocked:
			row.bias = beta / dt * angle
		case AxisLimited:
			switch {
			case angle < ax.Limit.Min:
				row.bias = beta / dt * (angle - ax.Limit.Min)
				row.lower = 0
			case angle > ax.Limit.Max:
				row.bias = beta / dt * (angle - ax.Limit.Max)
				row.upper = 0
			default:
				continue
			}
		}
		j.rows = append(j.rows, row)
	}
}

func (j *Joint) solve() {
	p, c := j.Parent, j.Child

	if !j.pointOff {
		vrel := r3.Sub(
			r3.Add(c.LinearVelocity, r3.Cross(c.AngularVelocity, j.rB)),
			r3.Add(p.LinearVelocity, r3.Cross(p.AngularVelocity, j.rA)),
		)
		rhs := r3.Scale(-1, r3.Add(vrel, j.bias))
		var lambda mat.VecDense
		lambda.MulVec(j.invK, mat.NewVecDense(3, []float64{rhs.X, rhs.Y, rhs.Z}))
		imp := r3.Vec{X: lambda.AtVec(0), Y: lambda.AtVec(1), Z: lambda.AtVec(2)}
		c.applyImpulse(imp, j.rB)
		p.applyImpulse(r3.Scale(-1, imp), j.rA)
	}

	for i := range j.rows {
		row := &j.rows[i]
		wrel := r3.Dot(r3.Sub(c.AngularVelocity, p.AngularVelocity), row.axis)
		lambda := -row.effMass * (wrel + row.bias)
		prev := row.accum
		row.accum = math.Min(math.Max(prev+lambda, row.lower), row.upper)
		lambda = row.accum - prev
		c.applyAngularImpulse(r3.Scale(lambda, row.axis))
		p.applyAngularImpulse(r3.Scale(-lambda, row.axis))
	}
}
